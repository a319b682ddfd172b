package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"

	"liquefier/internal/command"
	"liquefier/internal/config"
	"liquefier/pkg/log"
)

// Handler runs commands. Implemented by command.Dispatcher.
type Handler interface {
	Handle(ctx context.Context, req *command.Request) *command.Response
}

// Publisher sends replies. Implemented by *nsq.Producer.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// Consumer takes command requests from an NSQ topic one at a time, runs them
// and publishes the responses to the reply topic.
type Consumer struct {
	conf      config.NSQConfig
	ctx       context.Context
	cancel    context.CancelFunc
	consumer  *nsq.Consumer
	publisher Publisher
	handler   Handler
	wg        sync.WaitGroup
	logger    *logrus.Entry
}

type nsqLogger struct {
	logger *logrus.Entry
}

func (l nsqLogger) Output(_ int, s string) error {
	l.logger.Info(s)
	return nil
}

// NewConsumer builds the consumer. publisher may be nil, then no replies are
// sent.
func NewConsumer(conf config.NSQConfig, handler Handler, publisher Publisher) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	logger := log.GetLogger(ctx).WithField("component", "consumer")

	nsqConf := nsq.NewConfig()
	nsqConf.MsgTimeout = 10 * time.Minute
	nsqConf.MaxInFlight = 1
	nsqConf.MaxAttempts = 1
	if conf.PollInterval > 0 {
		nsqConf.LookupdPollInterval = conf.PollInterval
	}

	consumer, err := nsq.NewConsumer(conf.Topic, conf.Channel, nsqConf)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create NSQ consumer: %w", err)
	}
	consumer.SetLogger(nsqLogger{logger}, nsq.LogLevelWarning)

	c := &Consumer{
		conf:      conf,
		ctx:       ctx,
		cancel:    cancel,
		consumer:  consumer,
		publisher: publisher,
		handler:   handler,
		logger:    logger,
	}

	consumer.AddHandler(c)

	return c, nil
}

// NewReplyProducer connects the producer used for replies.
func NewReplyProducer(conf config.NSQConfig) (*nsq.Producer, error) {
	producer, err := nsq.NewProducer(conf.ProducerAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create NSQ producer: %w", err)
	}
	producer.SetLogger(nsqLogger{log.Component("producer")}, nsq.LogLevelWarning)
	return producer, nil
}

// HandleMessage never asks for a requeue. A request that fails is answered
// with its status and dropped.
func (c *Consumer) HandleMessage(message *nsq.Message) error {
	c.logger.Debugf("Received NSQ message: %s", string(message.Body))
	c.handle(message.Body)
	return nil
}

func (c *Consumer) handle(body []byte) *command.Response {
	var req command.Request
	var resp *command.Response
	if err := json.Unmarshal(body, &req); err != nil {
		c.logger.WithError(err).Warn("Failed to unmarshal command request")
		resp = &command.Response{
			Status:  command.StatusRejected,
			Message: fmt.Sprintf("%v: %v", command.ErrMalformed, err),
		}
	} else {
		ctx := c.ctx
		if req.Id != "" {
			ctx = log.WithRequestId(ctx, req.Id)
		}
		resp = c.handler.Handle(ctx, &req)
	}

	c.logger.WithFields(logrus.Fields{
		"id":      resp.Id,
		"command": req.Command,
		"status":  resp.Status.String(),
	}).Info("Processed command request")

	c.reply(resp)
	return resp
}

func (c *Consumer) reply(resp *command.Response) {
	if c.publisher == nil || c.conf.ReplyTopic == "" {
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal command response")
		return
	}
	if err := c.publisher.Publish(c.conf.ReplyTopic, body); err != nil {
		c.logger.WithError(err).Errorf("Failed to publish reply to %s", c.conf.ReplyTopic)
	}
}

func (c *Consumer) Start() error {
	c.logger.Info("Starting NSQ consumer...")

	var err error
	if len(c.conf.LookupdAddrs) > 0 {
		err = c.consumer.ConnectToNSQLookupds(c.conf.LookupdAddrs)
	} else {
		err = c.consumer.ConnectToNSQDs(c.conf.NSQDAddrs)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to NSQs: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		c.consumer.Stop()
		<-c.consumer.StopChan
	}()

	return nil
}

func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}

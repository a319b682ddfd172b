package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"liquefier/internal/command"
	"liquefier/internal/consumer"
	"liquefier/internal/server"
	"liquefier/internal/status"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve the recompute command over HTTP and NSQ",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	a, err := newApp(configFile)
	if err != nil {
		logrus.Fatal("initConfig error, ", err.Error())
	}
	defer a.Close()

	registry, err := status.Open(a.conf.Status.Dir, a.conf.Status.TTL)
	if err != nil {
		logrus.Fatal(err)
	}
	defer registry.Close()

	renderer, err := a.renderer()
	if err != nil {
		logrus.Fatal(err)
	}
	dispatcher := command.NewDispatcher(a.pipeline(), renderer, registry, a.loc, a.defaults())

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	srv, err := server.NewServer(ctx, a.conf, dispatcher, registry)
	if err != nil {
		logrus.Fatalf("newServer error, %s", err.Error())
	}
	go srv.Start()

	if a.conf.NSQ.Enabled {
		var pub consumer.Publisher
		if a.conf.NSQ.ReplyTopic != "" {
			producer, err := consumer.NewReplyProducer(a.conf.NSQ)
			if err != nil {
				logrus.Fatal(err)
			}
			defer producer.Stop()
			pub = producer
		}
		c, err := consumer.NewConsumer(a.conf.NSQ, dispatcher, pub)
		if err != nil {
			logrus.Fatal(err)
		}
		if err := c.Start(); err != nil {
			logrus.Fatal(err)
		}
		defer c.Stop()
	}

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)

	<-termChan
	logrus.Infof("server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("server forced to shutdown: %v", err)
	}
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liquefier/internal/command"
	"liquefier/internal/config"
)

type fakeHandler struct {
	requests []*command.Request
}

func (f *fakeHandler) Handle(_ context.Context, req *command.Request) *command.Response {
	f.requests = append(f.requests, req)
	if req.Command != "recompute" {
		return &command.Response{Id: req.Id, Status: command.StatusUnrecognized, Message: "unrecognized command"}
	}
	return &command.Response{Id: req.Id, Status: command.StatusSuccess, Payload: &command.Payload{Rows: 7}}
}

type fakePublisher struct {
	topics []string
	bodies [][]byte
	err    error
}

func (f *fakePublisher) Publish(topic string, body []byte) error {
	f.topics = append(f.topics, topic)
	f.bodies = append(f.bodies, body)
	return f.err
}

func newTestConsumer(t *testing.T, pub Publisher) (*Consumer, *fakeHandler) {
	conf := config.DefaultConfig().NSQ
	h := &fakeHandler{}
	c, err := NewConsumer(conf, h, pub)
	require.NoError(t, err)
	t.Cleanup(c.cancel)
	return c, h
}

func TestHandleRepliesWithResponse(t *testing.T) {
	pub := &fakePublisher{}
	c, h := newTestConsumer(t, pub)

	resp := c.handle([]byte(`{"id":"r1","command":"recompute","args":"{\"width\":5}"}`))
	assert.Equal(t, command.StatusSuccess, resp.Status)
	require.Len(t, h.requests, 1)
	assert.Equal(t, "r1", h.requests[0].Id)

	require.Len(t, pub.bodies, 1)
	assert.Equal(t, "liquefier_replies", pub.topics[0])
	var reply map[string]any
	require.NoError(t, json.Unmarshal(pub.bodies[0], &reply))
	assert.Equal(t, "r1", reply["id"])
	assert.Equal(t, "success", reply["status"])
}

func TestHandleMalformedAndUnknown(t *testing.T) {
	pub := &fakePublisher{}
	c, h := newTestConsumer(t, pub)

	resp := c.handle([]byte(`not json`))
	assert.Equal(t, command.StatusRejected, resp.Status)
	assert.Empty(t, h.requests)

	resp = c.handle([]byte(`{"command":"shutdown"}`))
	assert.Equal(t, command.StatusUnrecognized, resp.Status)
	assert.Len(t, pub.bodies, 2)
}

func TestHandleSurvivesPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nsqd down")}
	c, _ := newTestConsumer(t, pub)

	resp := c.handle([]byte(`{"command":"recompute"}`))
	assert.Equal(t, command.StatusSuccess, resp.Status)
}

func TestHandleWithoutPublisher(t *testing.T) {
	c, h := newTestConsumer(t, nil)
	c.handle([]byte(`{"command":"recompute"}`))
	assert.Len(t, h.requests, 1)
}

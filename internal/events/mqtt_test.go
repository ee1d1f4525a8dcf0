package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { <-t.done; return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

// pendingToken never completes.
type pendingToken struct{ doneToken }

func (t *pendingToken) Done() <-chan struct{} { return make(chan struct{}) }

type published struct {
	topic   string
	payload []byte
}

type fakeClient struct {
	mqtt.Client
	connected  bool
	publishErr error
	pending    bool
	published  []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() mqtt.Token {
	c.connected = true
	return newDoneToken(nil)
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if c.pending {
		return &pendingToken{}
	}
	c.published = append(c.published, published{topic: topic, payload: payload.([]byte)})
	return newDoneToken(c.publishErr)
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisherWithClient(client, "volume-patrol")
	require.NoError(t, p.Connect(context.Background()))

	e := New(KindSessionAdded, "1234:spotify.exe:render", "visible", "")
	require.NoError(t, p.Publish(context.Background(), e))

	require.Len(t, client.published, 1)
	assert.Equal(t, "volume-patrol/session_added", client.published[0].topic)
	var got Event
	require.NoError(t, json.Unmarshal(client.published[0].payload, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Target, got.Target)

	p.Close()
	assert.False(t, client.connected)
}

func TestMQTTPublisher_Errors(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisherWithClient(client, "vp")
	assert.Error(t, p.Publish(context.Background(), New(KindDeviceAdded, "spk", "", "")), "not connected")

	client.connected = true
	client.publishErr = errors.New("broker says no")
	assert.ErrorIs(t, p.Publish(context.Background(), New(KindDeviceAdded, "spk", "", "")), client.publishErr)

	client.publishErr = nil
	client.pending = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, New(KindDeviceAdded, "spk", "", "")), context.Canceled)
}

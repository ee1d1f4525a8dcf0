package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const publishTimeout = 10 * time.Second

// MQTTPublisher publishes events as JSON to <topic>/<kind>.
type MQTTPublisher struct {
	client mqtt.Client
	broker string
	topic  string
	logger *zap.SugaredLogger
}

// NewMQTTPublisher prepares a client for broker. Nothing is dialed until
// Connect.
func NewMQTTPublisher(broker, topic string, logger *zap.SugaredLogger) *MQTTPublisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &MQTTPublisher{broker: broker, topic: topic, logger: logger.Named("mqtt")}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("volume-patrol-" + ulid.Make().String())
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.logger.Infow("connected to broker", "broker", broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.logger.Warnw("connection to broker lost", "broker", broker, "error", err)
	})
	p.client = mqtt.NewClient(opts)
	return p
}

func newMQTTPublisherWithClient(client mqtt.Client, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, logger: zap.NewNop().Sugar()}
}

// Connect dials the broker and waits for the session or for ctx.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("connect %s: %w", p.broker, err)
	}
	return nil
}

// Publish sends e. Events are fire-and-forget (QoS 0, not retained).
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("not connected to MQTT broker")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := wait(ctx, p.client.Publish(p.Topic(e.Kind), 0, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", e.Kind, err)
	}
	return nil
}

// Topic returns the topic events of kind are published to.
func (p *MQTTPublisher) Topic(kind string) string {
	return p.topic + "/" + kind
}

func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

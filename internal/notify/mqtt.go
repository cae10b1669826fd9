// Package notify publishes adhan events to other devices.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/mirac/internal/trigger"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "mirac/adhan"

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	qos            = 1
)

// ErrPublishTimeout is returned when the broker does not acknowledge a
// message in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Event is the JSON payload published at each adhan.
type Event struct {
	Prayer  string    `json:"prayer"`
	Time    time.Time `json:"time"`
	Preview bool      `json:"preview,omitempty"`
}

// publisher is the part of mqtt.Client the notifier uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes an Event for every fired trigger, so speakers or home
// automation can play the adhan too. It implements trigger.Action.
type MQTT struct {
	client publisher
	topic  string
	log    zerolog.Logger
}

// Dial connects to broker (e.g. "tcp://localhost:1883").
func Dial(broker, topic string, logger zerolog.Logger) (*MQTT, error) {
	if broker == "" {
		return nil, errors.New("mqtt broker address is empty")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("mirac-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", broker).Msg("connected to mqtt broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to mqtt broker %s: %w", broker, err)
	}

	return &MQTT{client: client, topic: topic, log: logger}, nil
}

// Topic returns the topic events are published to.
func (m *MQTT) Topic() string {
	return m.topic
}

// Fire publishes the event carried by ctx, or a preview event when there
// is none.
func (m *MQTT) Fire(ctx context.Context) error {
	payload, err := json.Marshal(eventFrom(ctx, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt event: %w", err)
	}

	token := m.client.Publish(m.topic, qos, false, payload)
	select {
	case <-token.Done():
	case <-time.After(publishTimeout):
		return ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", m.topic, err)
	}
	m.log.Debug().Str("topic", m.topic).Msg("adhan event published")
	return nil
}

// Close disconnects, waiting briefly for in-flight messages.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}

func eventFrom(ctx context.Context, now time.Time) Event {
	ev, ok := trigger.EventFromContext(ctx)
	if !ok {
		return Event{Prayer: "Adhan", Time: now, Preview: true}
	}
	return Event{Prayer: ev.Label.String(), Time: ev.Instant}
}

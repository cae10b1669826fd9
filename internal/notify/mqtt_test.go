package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/smokyabdulrahman/mirac/internal/prayer"
	"github.com/smokyabdulrahman/mirac/internal/trigger"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	sent         []published
	err          error
	pending      bool
	disconnected uint
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	if c.pending {
		return &fakeToken{done: make(chan struct{})}
	}
	return completedToken(c.err)
}

func (c *fakeClient) Disconnect(quiesce uint) { c.disconnected = quiesce }

func TestMQTT_PublishesEvent(t *testing.T) {
	client := &fakeClient{}
	m := &MQTT{client: client, topic: "home/adhan", log: zerolog.Nop()}

	at := time.Date(2026, 3, 1, 18, 4, 0, 0, time.UTC)
	ctx := trigger.ContextWithEvent(context.Background(), prayer.NextEvent{Label: prayer.Maghrib, Instant: at})
	if err := m.Fire(ctx); err != nil {
		t.Fatal(err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(client.sent))
	}
	msg := client.sent[0]
	if msg.topic != "home/adhan" || msg.qos != 1 || msg.retained {
		t.Errorf("message = %+v", msg)
	}
	var ev Event
	if err := json.Unmarshal(msg.payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Prayer != "Maghrib" || !ev.Time.Equal(at) || ev.Preview {
		t.Errorf("event = %+v", ev)
	}
}

func TestMQTT_PreviewWithoutEvent(t *testing.T) {
	client := &fakeClient{}
	m := &MQTT{client: client, topic: DefaultTopic, log: zerolog.Nop()}

	if err := m.Fire(context.Background()); err != nil {
		t.Fatal(err)
	}
	var ev Event
	if err := json.Unmarshal(client.sent[0].payload, &ev); err != nil {
		t.Fatal(err)
	}
	if !ev.Preview || ev.Prayer != "Adhan" {
		t.Errorf("event = %+v", ev)
	}
}

func TestMQTT_PublishError(t *testing.T) {
	boom := errors.New("not connected")
	m := &MQTT{client: &fakeClient{err: boom}, topic: DefaultTopic, log: zerolog.Nop()}

	if err := m.Fire(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Fire error = %v, want wrapped %v", err, boom)
	}
}

func TestMQTT_ContextCancelled(t *testing.T) {
	m := &MQTT{client: &fakeClient{pending: true}, topic: DefaultTopic, log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Fire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Fire error = %v, want context.Canceled", err)
	}
}

func TestMQTT_Close(t *testing.T) {
	client := &fakeClient{}
	m := &MQTT{client: client, topic: DefaultTopic, log: zerolog.Nop()}
	m.Close()
	if client.disconnected != 250 {
		t.Errorf("Disconnect quiesce = %d, want 250", client.disconnected)
	}
}

func TestDial_EmptyBroker(t *testing.T) {
	if _, err := Dial("", "", zerolog.Nop()); err == nil {
		t.Error("expected an error for an empty broker")
	}
}

func TestMQTT_ImplementsAction(t *testing.T) {
	var _ trigger.Action = (*MQTT)(nil)
}

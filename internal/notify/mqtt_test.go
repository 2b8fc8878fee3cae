package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonglijing/clinisense/internal/dashboard"
	"github.com/gonglijing/clinisense/internal/models"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient 只实现发布相关方法
type fakeClient struct {
	mqtt.Client
	connected bool
	err       error
	sent      []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return newFakeToken(c.err)
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func event(clinic models.ID) dashboard.AlertEvent {
	return dashboard.AlertEvent{
		Scope:      "admin",
		DetectedAt: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
		Alert:      dashboard.AlertRow{ID: "12", Matricule: "TMP-1", ClinicID: clinic, Statut: "actif", Valeur: 31.5},
	}
}

func TestNew_EmptyBrokerIsNop(t *testing.T) {
	p := New(Config{}, nil)
	_, ok := p.(Nop)
	assert.True(t, ok)
	assert.NoError(t, p.PublishAlert(context.Background(), event("")))
	p.Close()
}

func TestPublishAlert_PayloadAndTopic(t *testing.T) {
	client := &fakeClient{connected: true}
	p := NewWithClient(client, "clinisense/alerts/", 5, nil)

	require.NoError(t, p.PublishAlert(context.Background(), event("c1")))
	require.NoError(t, p.PublishAlert(context.Background(), event("")))
	require.Len(t, client.sent, 2)

	assert.Equal(t, "clinisense/alerts/c1", client.sent[0].topic)
	assert.Equal(t, byte(2), client.sent[0].qos)
	assert.Equal(t, "clinisense/alerts", client.sent[1].topic)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &msg))
	assert.Equal(t, "admin", msg["scope"])
	assert.Equal(t, "2024-03-01T08:00:00Z", msg["detected_at"])
	alert := msg["alert"].(map[string]interface{})
	assert.Equal(t, "TMP-1", alert["matricule"])
	assert.Equal(t, 31.5, alert["valeur"])
}

func TestPublishAlert_Errors(t *testing.T) {
	client := &fakeClient{connected: false}
	p := NewWithClient(client, "t", 1, nil)
	assert.Error(t, p.PublishAlert(context.Background(), event("")))
	assert.Empty(t, client.sent)

	client.connected = true
	client.err = errors.New("broker refused")
	err := p.PublishAlert(context.Background(), event(""))
	assert.ErrorContains(t, err, "broker refused")

	p.Close()
	assert.False(t, client.connected)
	assert.False(t, p.Connected())
}

func TestNormalizeBroker(t *testing.T) {
	assert.Equal(t, "", normalizeBroker("  "))
	assert.Equal(t, "tcp://localhost:1883", normalizeBroker("localhost:1883"))
	assert.Equal(t, "ssl://b:8883", normalizeBroker("ssl://b:8883"))
}

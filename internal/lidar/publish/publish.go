// Package publish sends completed sections to an MQTT broker as JSON.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/lidar.sections/internal/lidar/sections"
	"github.com/banshee-data/lidar.sections/internal/lidar/supervisor"
	"github.com/banshee-data/lidar.sections/internal/monitoring"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "lidar/sections"

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish within the configured timeout.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Message is the JSON payload of one section.
type Message struct {
	Key     string           `json:"key"`
	RunID   string           `json:"run_id"`
	Time    time.Time        `json:"time"`
	Sector  uint8            `json:"sector"`
	Summary sections.Summary `json:"summary"`
	Points  []sections.Point `json:"points"`
}

// Publisher is a supervisor.Sink publishing each section to
// <prefix>/<device>/<sector>.
type Publisher struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
}

var _ supervisor.Sink = (*Publisher)(nil)

// New creates a Publisher over client.
func New(client Client, prefix string, qos byte, timeout time.Duration) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Publisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), qos: qos, timeout: timeout}
}

// Topic returns the topic a section of key and sector is published on.
func (p *Publisher) Topic(key string, sector uint8) string {
	return fmt.Sprintf("%s/%s/%d", p.prefix, topicSegment(key), sector)
}

// topicSegment makes a device key usable as a single topic level.
func topicSegment(key string) string {
	key = strings.Trim(key, "/")
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")
	if key = r.Replace(key); key == "" {
		return "_"
	}
	return key
}

// HandleSection publishes rec.
func (p *Publisher) HandleSection(_ context.Context, rec supervisor.Record) error {
	sec := rec.Event.Section
	payload, err := json.Marshal(Message{
		Key:     rec.Key,
		RunID:   rec.RunID,
		Time:    rec.Event.Time,
		Sector:  sec.Sector,
		Summary: sections.Summarise(sec),
		Points:  sec.Points,
	})
	if err != nil {
		return fmt.Errorf("failed to encode section: %w", err)
	}
	topic := p.Topic(rec.Key, sec.Sector)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("%s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// Connect dials broker and returns the connected client. paho's error and
// warning output is routed to the ops and diag streams.
func Connect(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	mqtt.ERROR = monitoring.StreamLogger(monitoring.Opsf)
	mqtt.WARN = monitoring.StreamLogger(monitoring.Diagf)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Opsf("mqtt connection to %s lost: %v", broker, err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out after %v", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	monitoring.Opsf("connected to MQTT broker %s as %s", broker, clientID)
	return client, nil
}

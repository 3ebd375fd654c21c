package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTTConfig selects the broker and topic snapshots are published to.
type MQTTConfig struct {
	Broker   string `json:"broker" yaml:"broker"` // host:port
	Topic    string `json:"topic,omitempty" yaml:"topic,omitempty"`
	ClientID string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	QoS      byte   `json:"qos,omitempty" yaml:"qos,omitempty"`
}

// Validate checks the broker is set and fills defaults.
func (c *MQTTConfig) Validate(path string) error {
	if c.Broker == "" {
		return fmt.Errorf("%s: must specify broker for mqtt", path)
	}
	if c.QoS > 2 {
		return fmt.Errorf("%s: qos must be 0, 1 or 2, got %d", path, c.QoS)
	}
	if c.Topic == "" {
		c.Topic = "tse/snapshots"
	}
	if c.ClientID == "" {
		c.ClientID = "tse"
	}
	return nil
}

// MQTTPublisher publishes each snapshot as JSON.
type MQTTPublisher struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger logging.Logger

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTPublisher builds a publisher; call Connect before Record.
func NewMQTTPublisher(cfg MQTTConfig, logger logging.Logger) *MQTTPublisher {
	p := &MQTTPublisher{cfg: cfg, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		p.setConnected(true)
		logger.Infof("mqtt connected to %s", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		logger.Warnf("mqtt connection to %s lost, reconnecting: %v", cfg.Broker, err)
	}
	p.client = mqtt.NewClient(opts)
	return p
}

// Connect waits for the first broker connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-time.After(mqttConnectTimeout):
		return fmt.Errorf("mqtt connection to %s timed out", p.cfg.Broker)
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "mqtt connection to %s", p.cfg.Broker)
	}
	p.setConnected(true)
	return nil
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) fail(err error) error {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
	return err
}

// Record publishes s to the configured topic.
func (p *MQTTPublisher) Record(ctx context.Context, s Snapshot) error {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	if !connected {
		return p.fail(errors.New("mqtt not connected"))
	}

	payload, err := json.Marshal(s)
	if err != nil {
		return p.fail(errors.Wrap(err, "encoding snapshot"))
	}

	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	select {
	case <-token.Done():
	case <-time.After(mqttPublishTimeout):
		return p.fail(errors.New("mqtt publish timed out"))
	case <-ctx.Done():
		return p.fail(ctx.Err())
	}
	if err := token.Error(); err != nil {
		return p.fail(errors.Wrap(err, "mqtt publish"))
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()
	p.logger.Debugf("published snapshot %s to %s (%d bytes)", s.Session, p.cfg.Topic, len(payload))
	return nil
}

// MQTTStats counts publish outcomes.
type MQTTStats struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

// Stats returns publish counters.
func (p *MQTTPublisher) Stats() MQTTStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return MQTTStats{Connected: p.connected, Published: p.published, Errors: p.errors}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	return nil
}

package publish

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	backlogSize    = 256
)

// RealPublisher publishes to an MQTT broker. Messages published while the
// connection is down are held in a bounded backlog and replayed on
// reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    logrus.FieldLogger

	mu      sync.Mutex
	backlog *backlog
}

var (
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)

// NewRealPublisher connects to cfg.Broker. If the broker does not answer
// within the connect timeout the client keeps retrying in the background
// and the publisher is returned anyway.
func NewRealPublisher(cfg config.MQTTConfig, log logrus.FieldLogger) (*RealPublisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &RealPublisher{
		topics:  NewTopics(cfg.Topic),
		log:     log.WithField("broker", cfg.Broker),
		backlog: newBacklog(backlogSize),
	}

	will, err := FormatSystem(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.WithError(err).Warn("MQTT connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warn("MQTT broker not reachable yet, retrying in background")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// PublishSnapshot sends a telemetry message (QoS 0, not retained).
func (p *RealPublisher) PublishSnapshot(s meter.Snapshot) error {
	payload, err := FormatTelemetry(s)
	if err != nil {
		return fmt.Errorf("format telemetry: %w", err)
	}
	return p.publish(message{topic: p.topics.Telemetry, payload: payload})
}

// PublishTransition sends a retained connection state message (QoS 1).
func (p *RealPublisher) PublishTransition(t power.Transition) error {
	payload, err := FormatState(t)
	if err != nil {
		return fmt.Errorf("format state: %w", err)
	}
	return p.publish(message{topic: p.topics.State, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a retained lifecycle message (QoS 1).
func (p *RealPublisher) PublishSystem(e SystemEvent) error {
	payload, err := FormatSystem(e)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(message{topic: p.topics.System, payload: payload, qos: 1, retained: true})
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

func (p *RealPublisher) publish(m message) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.backlog.push(m)
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// onConnect replays the backlog. paho calls it on every (re)connect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	held, dropped := p.backlog.drain()
	p.mu.Unlock()

	entry := p.log.WithField("replayed", len(held))
	if dropped > 0 {
		entry = entry.WithField("dropped", dropped)
	}
	entry.Info("MQTT connected")

	for _, m := range held {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

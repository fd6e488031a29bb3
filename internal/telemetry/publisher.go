package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Publisher manages the MQTT connection and runs a periodic loop that
// pushes health snapshots to the broker. Connection management is
// delegated to autopaho, which retries in the background.
type Publisher struct {
	brokerURL   string
	topicPrefix string
	interval    time.Duration
	sampler     *Sampler
	logger      *slog.Logger
	cm          *autopaho.ConnectionManager
}

// NewPublisher creates a Publisher but does not connect. Call
// [Publisher.Start] to begin the connection and publish loop.
func NewPublisher(brokerURL, topicPrefix string, interval time.Duration, sampler *Sampler, logger *slog.Logger) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		brokerURL:   brokerURL,
		topicPrefix: topicPrefix,
		interval:    interval,
		sampler:     sampler,
		logger:      logger,
	}
}

// Start connects to the MQTT broker and begins the periodic publish
// loop. It blocks until ctx is cancelled. The broker marks us offline
// via the will message if the process dies.
func (p *Publisher) Start(ctx context.Context) error {
	broker, err := url.Parse(p.brokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{broker},
		KeepAlive:  30,
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.brokerURL)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "thelocalai-" + strconv.Itoa(int(time.Now().Unix()%100000)),
		},
	}

	if broker.Scheme == "mqtts" || broker.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes an "offline" availability message before closing the
// MQTT connection.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) availabilityTopic() string {
	return p.topicPrefix + "/availability"
}

func (p *Publisher) statusTopic() string {
	return p.topicPrefix + "/status"
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	}
}

func (p *Publisher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publishSnapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishSnapshot(ctx)
		}
	}
}

func (p *Publisher) publishSnapshot(ctx context.Context) {
	if p.cm == nil {
		return
	}

	snap := p.sampler.Sample()
	payload, err := json.Marshal(snap)
	if err != nil {
		p.logger.Error("mqtt marshal snapshot", "error", err)
		return
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.statusTopic(),
		Payload: payload,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt status publish failed", "error", err)
	}
}

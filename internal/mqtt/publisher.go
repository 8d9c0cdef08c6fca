package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/config"
)

const (
	// keepAliveSeconds is the MQTT keep-alive sent to the broker.
	keepAliveSeconds = 60

	// connectWaitTimeout bounds the wait for the initial broker connection.
	// After it elapses the publisher keeps retrying in the background.
	connectWaitTimeout = 30 * time.Second

	// defaultPublishTimeout bounds a single publish when the config does not
	// set one.
	defaultPublishTimeout = 5 * time.Second
)

// Publisher is the relay's MQTT facade. It owns an autopaho connection
// manager and exposes the two publishes the relay performs: retained
// discovery configs and heart-rate state updates. All methods are safe for
// concurrent use.
type Publisher struct {
	cfg    config.MQTTConfig
	logger *logrus.Logger
	cm     *autopaho.ConnectionManager
}

// Connect establishes the broker connection and returns a ready Publisher.
// An unreachable broker is not fatal: after connectWaitTimeout the publisher
// is returned anyway and autopaho retries in the background, queueing no
// messages (publishes fail until the link is up).
func Connect(ctx context.Context, cfg config.MQTTConfig, logger *logrus.Logger) (*Publisher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	pahoCfg, err := clientConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, connectWaitTimeout)
	defer cancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		logger.WithFields(logrus.Fields{
			"broker": cfg.Broker,
			"error":  err,
		}).Warn("MQTT broker not reachable yet, retrying in background")
	}

	return &Publisher{cfg: cfg, logger: logger, cm: cm}, nil
}

// clientConfig translates the relay MQTT config into an autopaho client
// config. Split out so it can be validated without a live broker.
func clientConfig(cfg config.MQTTConfig, logger *logrus.Logger) (autopaho.ClientConfig, error) {
	brokerURL, err := url.Parse(cfg.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse mqtt broker URL %q: %w", cfg.Broker, err)
	}
	if brokerURL.Host == "" {
		return autopaho.ClientConfig{}, fmt.Errorf("mqtt broker URL %q has no host", cfg.Broker)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "otbeat2mqtt-" + uuid.NewString()[:8]
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{brokerURL},
		KeepAlive:  keepAliveSeconds,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.WithField("broker", brokerURL.Redacted()).Info("Connected to MQTT broker")
		},
		OnConnectError: func(err error) {
			logger.WithFields(logrus.Fields{
				"broker": brokerURL.Redacted(),
				"error":  err,
			}).Warn("MQTT connection attempt failed")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnClientError: func(err error) {
				logger.WithField("error", err).Warn("MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				logger.WithField("reason_code", d.ReasonCode).Warn("MQTT broker requested disconnect")
			},
		},
	}

	if cfg.Username != "" {
		pahoCfg.ConnectUsername = cfg.Username
		pahoCfg.ConnectPassword = []byte(cfg.Password)
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return pahoCfg, nil
}

// PublishDiscovery publishes the retained Home Assistant discovery config for
// a peer. QoS 1 so the dashboard entity survives broker restarts.
func (p *Publisher) PublishDiscovery(ctx context.Context, address, name string) error {
	topic := ConfigTopic(p.cfg.TopicPrefix, address)
	payload, err := json.Marshal(NewSensorConfig(p.cfg.TopicPrefix, address, name))
	if err != nil {
		return fmt.Errorf("marshal discovery config: %w", err)
	}

	pubCtx, cancel := p.publishContext(ctx)
	defer cancel()

	if _, err := p.cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		return fmt.Errorf("publish discovery config to %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     topic,
		"unique_id": UniqueID(address),
	}).Info("Published Home Assistant discovery config")
	return nil
}

// PublishHeartRate publishes a heart-rate reading in bpm to the peer's state
// topic. QoS 0, not retained: readings are ephemeral and a fresher one is
// always close behind.
func (p *Publisher) PublishHeartRate(ctx context.Context, address string, bpm int) error {
	topic := StateTopic(p.cfg.TopicPrefix, address)

	pubCtx, cancel := p.publishContext(ctx)
	defer cancel()

	if _, err := p.cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: []byte(strconv.Itoa(bpm)),
		QoS:     0,
	}); err != nil {
		return fmt.Errorf("publish heart rate to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker. Call after all sessions have finished
// so their terminal publishes still go out.
func (p *Publisher) Close(ctx context.Context) error {
	p.logger.Debug("Disconnecting from MQTT broker...")
	if err := p.cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("mqtt disconnect: %w", err)
	}
	p.logger.Info("Disconnected from MQTT broker")
	return nil
}

func (p *Publisher) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := p.cfg.PublishTimeout()
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

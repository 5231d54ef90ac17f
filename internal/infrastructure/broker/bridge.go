package broker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"go-realtime-gateway/internal/infrastructure/config"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

// Broadcaster is the fan-out side of the bridge.
type Broadcaster interface {
	Broadcast(ctx context.Context, topic, event string, payload any) int
}

// Bridge subscribes to a fixed list of MQTT topic filters and forwards every
// message, topic unchanged, to the hub. Reconnects are left to paho; the
// bridge re-subscribes from its OnConnect handler.
type Bridge struct {
	cfg    config.BrokerConfig
	target Broadcaster
	logger logger.Logger

	mu      sync.Mutex
	ctx     context.Context
	client  mqtt.Client
	closers []func() error

	newClient func(*mqtt.ClientOptions) mqtt.Client
	tlsConfig func(ctx context.Context, socket string) (*tls.Config, func() error, error)
}

func NewBridge(cfg config.BrokerConfig, target Broadcaster, log logger.Logger) *Bridge {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Bridge{
		cfg:       cfg,
		target:    target,
		logger:    log.WithField("component", "broker"),
		ctx:       context.Background(),
		newClient: mqtt.NewClient,
		tlsConfig: spiffeTLSConfig,
	}
}

// Enabled reports whether a broker is configured.
func (b *Bridge) Enabled() bool {
	return b.cfg.URL != ""
}

// Start connects to the broker. Without a configured URL it logs the
// degraded mode once and returns nil.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.Enabled() {
		b.logger.Warn("No broker URL configured; broker fan-out is disabled, only internally published events will be delivered")
		return nil
	}

	opts, err := b.clientOptions(ctx)
	if err != nil {
		return err
	}

	client := b.newClient(opts)

	b.mu.Lock()
	b.ctx = ctx
	b.client = client
	b.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(b.cfg.ConnectTimeout) {
		b.logger.Warnf("Broker %s not reachable after %s; retrying in background", b.cfg.URL, b.cfg.ConnectTimeout)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect broker %s: %w", b.cfg.URL, err)
	}
	return nil
}

// Stop disconnects from the broker and releases TLS material.
func (b *Bridge) Stop() {
	b.mu.Lock()
	client := b.client
	closers := b.closers
	b.client = nil
	b.closers = nil
	b.mu.Unlock()

	if client != nil {
		client.Disconnect(250)
		b.logger.Info("Disconnected from broker")
	}
	for _, c := range closers {
		if err := c(); err != nil {
			b.logger.Warnf("Failed to release broker TLS source: %v", err)
		}
	}
}

func (b *Bridge) clientOptions(ctx context.Context) (*mqtt.ClientOptions, error) {
	clientID := b.cfg.ClientID
	if clientID == "" {
		clientID = "realtime-gateway-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.URL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectTimeout(b.cfg.ConnectTimeout)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}

	if b.cfg.SpiffeSocket != "" {
		tlsCfg, closer, err := b.tlsConfig(ctx, b.cfg.SpiffeSocket)
		if err != nil {
			return nil, fmt.Errorf("broker mTLS: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
		b.mu.Lock()
		b.closers = append(b.closers, closer)
		b.mu.Unlock()
	}

	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warnf("Broker connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		b.logger.Info("Reconnecting to broker")
	})

	return opts, nil
}

// onConnect runs after every (re)connect. With a clean session the broker
// has forgotten our filters, so subscribe them again.
func (b *Bridge) onConnect(client mqtt.Client) {
	b.logger.Infof("Connected to broker %s", b.cfg.URL)

	if err := b.subscribe(client); err != nil {
		b.logger.Errorf("Failed to subscribe broker topics: %v", err)
	}
}

func (b *Bridge) subscribe(client mqtt.Client) error {
	if len(b.cfg.Topics) == 0 {
		return errors.New("no broker topics configured")
	}

	filters := make(map[string]byte, len(b.cfg.Topics))
	for _, t := range b.cfg.Topics {
		if t = strings.TrimSpace(t); t != "" {
			filters[t] = b.cfg.QoS
		}
	}

	token := client.SubscribeMultiple(filters, b.handleMessage)
	if !token.WaitTimeout(b.cfg.ConnectTimeout) {
		return fmt.Errorf("subscribe timed out after %s", b.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return err
	}

	b.logger.Infof("Subscribed to %d broker topic filters", len(filters))
	return nil
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	n := b.target.Broadcast(ctx, msg.Topic(), hub.EventMessage, hub.RawPayload(msg.Payload()))
	b.logger.Debugf("Broker message on %s fanned out to %d connections", msg.Topic(), n)
}

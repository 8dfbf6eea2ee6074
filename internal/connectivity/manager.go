// Package connectivity owns the single MQTT session between the control
// plane and the fleet broker: connect/reconnect with capped backoff, the
// three wildcard device subscriptions, offline queueing for outbound
// publishes and an ordered fan-out of inbound messages.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hydrosense/control-plane/internal/metrics"
	"github.com/hydrosense/control-plane/pkg/dedup"
)

// Message is one typed inbound event from a device topic.
type Message struct {
	Kind     Kind
	Topic    string
	DeviceID string
	Payload  []byte
}

// Handler receives inbound messages in arrival order.
type Handler func(Message)

// Publisher is the outbound surface the engine and watchdog depend on.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool)
}

// Config for the manager. Zero values fall back to the defaults below.
type Config struct {
	BrokerURL          string
	ClientID           string
	Username           string
	Password           string
	Namespace          string
	QueueCap           int
	MaxConnectAttempts uint64
	PublishRetries     int
	PublishTimeout     time.Duration
	RetryBackoff       time.Duration
}

const (
	defaultConnectAttempts = 10
	defaultPublishRetries  = 5
	defaultPublishTimeout  = 5 * time.Second
	defaultRetryBackoff    = 500 * time.Millisecond
)

// Manager is the connectivity manager. One sender goroutine serializes
// outbound publishes; one dispatcher goroutine serializes inbound fan-out,
// which preserves per-device arrival order.
type Manager struct {
	cfg    Config
	topics Topics
	log    *zap.Logger

	// factory indirection so tests can substitute the broker client
	newClient func(*mqtt.ClientOptions) mqtt.Client

	client  mqtt.Client
	deduper *dedup.Deduper
	queue   *offlineQueue

	handlerMu sync.RWMutex
	handlers  []Handler

	inbound  chan Message
	outbound chan queuedPublish

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Publisher = (*Manager)(nil)

// NewManager builds the manager; call Connect to open the session.
func NewManager(cfg Config, log *zap.Logger) *Manager {
	if cfg.ClientID == "" {
		cfg.ClientID = "control-plane-" + uuid.NewString()[:8]
	}
	if cfg.MaxConnectAttempts == 0 {
		cfg.MaxConnectAttempts = defaultConnectAttempts
	}
	if cfg.PublishRetries <= 0 {
		cfg.PublishRetries = defaultPublishRetries
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &Manager{
		cfg:       cfg,
		topics:    Topics{Namespace: cfg.Namespace},
		log:       log,
		newClient: mqtt.NewClient,
		deduper:   dedup.New(10*time.Minute, 20000),
		queue:     newOfflineQueue(cfg.QueueCap),
		inbound:   make(chan Message, 1024),
		outbound:  make(chan queuedPublish, 256),
	}
}

// Topics exposes the topic layout to collaborators.
func (m *Manager) Topics() Topics { return m.topics }

// OnMessage registers a handler for inbound messages. Handlers registered
// after Connect still see every later message.
func (m *Manager) OnMessage(h Handler) {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Connect establishes the session with a last-will announcing the service
// offline, retrying with capped exponential backoff. Failure after the
// attempt budget is fatal to the caller.
func (m *Manager) Connect(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.BrokerURL)
	opts.SetClientID(m.cfg.ClientID)
	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetOrderMatters(true)
	opts.SetWill(m.topics.ServiceStatusTopic(), `{"status":"offline"}`, 1, true)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)

	m.client = m.newClient(opts)
	if err := m.connectWithBackoff(); err != nil {
		return err
	}

	m.wg.Add(2)
	go m.dispatchLoop()
	go m.senderLoop()
	return nil
}

func (m *Manager) connectWithBackoff() error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	err := backoff.Retry(func() error {
		if m.ctx.Err() != nil {
			return backoff.Permanent(m.ctx.Err())
		}
		if token := m.client.Connect(); token.Wait() && token.Error() != nil {
			m.log.Warn("mqtt connect failed", zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, m.cfg.MaxConnectAttempts-1))
	if err != nil {
		return fmt.Errorf("mqtt connect after %d attempts: %w", m.cfg.MaxConnectAttempts, err)
	}
	return nil
}

// onConnect runs on every successful (re)connect: restore subscriptions,
// announce the service online and flush whatever queued up while offline.
func (m *Manager) onConnect(c mqtt.Client) {
	for _, pattern := range m.topics.SubscriptionPatterns() {
		token := c.Subscribe(pattern, 1, m.handleInbound)
		if token.Wait() && token.Error() != nil {
			m.log.Error("subscribe failed", zap.String("pattern", pattern), zap.Error(token.Error()))
		}
	}
	c.Publish(m.topics.ServiceStatusTopic(), 1, true, `{"status":"online"}`)
	m.log.Info("mqtt connected", zap.String("client_id", m.cfg.ClientID), zap.Int("queued", m.queue.Len()))
	go m.flushQueue()
}

func (m *Manager) onConnectionLost(_ mqtt.Client, err error) {
	m.log.Warn("mqtt connection lost", zap.Error(err))
	go func() {
		if m.ctx.Err() != nil {
			return
		}
		if cerr := m.connectWithBackoff(); cerr != nil {
			m.log.Error("mqtt reconnect exhausted", zap.Error(cerr))
		}
	}()
}

// handleInbound runs on paho's router goroutine: parse, dedup, hand off to
// the dispatcher. Messages outside the device layout are dropped.
func (m *Manager) handleInbound(_ mqtt.Client, msg mqtt.Message) {
	deviceID, kind, ok := m.topics.Parse(msg.Topic())
	if !ok {
		return
	}
	if !m.deduper.ShouldProcess(msg.Topic(), msg.Payload()) {
		return
	}
	payload := append([]byte(nil), msg.Payload()...)
	metrics.InboundMessages.WithLabelValues(string(kind)).Inc()
	select {
	case m.inbound <- Message{Kind: kind, Topic: msg.Topic(), DeviceID: deviceID, Payload: payload}:
	case <-m.ctx.Done():
	}
}

func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg := <-m.inbound:
			m.handlerMu.RLock()
			handlers := m.handlers
			m.handlerMu.RUnlock()
			for _, h := range handlers {
				h(msg)
			}
		}
	}
}

// Publish hands the message to the sender goroutine and returns immediately.
// When the sender is saturated the message goes straight to the offline
// queue rather than blocking the caller.
func (m *Manager) Publish(topic string, payload []byte, retained bool) {
	item := queuedPublish{Topic: topic, Payload: payload, Retained: retained}
	select {
	case m.outbound <- item:
	default:
		m.park(item)
	}
}

func (m *Manager) senderLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case item := <-m.outbound:
			m.deliver(item)
		}
	}
}

// deliver publishes one message at QoS 1, parking it when the session is
// down or the transport errors out.
func (m *Manager) deliver(item queuedPublish) {
	if m.client == nil || !m.client.IsConnectionOpen() {
		m.park(item)
		return
	}
	token := m.client.Publish(item.Topic, 1, item.Retained, item.Payload)
	if !token.WaitTimeout(m.cfg.PublishTimeout) || token.Error() != nil {
		metrics.PublishFailures.Inc()
		item.Attempts++
		if item.Attempts >= m.cfg.PublishRetries {
			metrics.QueueDrops.Inc()
			m.log.Warn("publish retry budget exhausted, dropping",
				zap.String("topic", item.Topic), zap.Int("attempts", item.Attempts))
			return
		}
		m.park(item)
		return
	}
	metrics.Publishes.Inc()
}

func (m *Manager) park(item queuedPublish) {
	evicted, wasEvicted := m.queue.Push(item)
	if wasEvicted {
		metrics.QueueDrops.Inc()
		m.log.Warn("offline queue full, dropping oldest", zap.String("topic", evicted.Topic))
	}
	metrics.QueueDepth.Set(float64(m.queue.Len()))
}

// flushQueue replays parked messages in order after a reconnect. Each
// message keeps a bounded retry budget with linear backoff between tries;
// exhausted messages are dropped and logged.
func (m *Manager) flushQueue() {
	for {
		if m.ctx.Err() != nil || !m.client.IsConnectionOpen() {
			return
		}
		item, ok := m.queue.Pop()
		if !ok {
			metrics.QueueDepth.Set(0)
			return
		}
		metrics.QueueDepth.Set(float64(m.queue.Len()))
		for {
			token := m.client.Publish(item.Topic, 1, item.Retained, item.Payload)
			if token.WaitTimeout(m.cfg.PublishTimeout) && token.Error() == nil {
				metrics.Publishes.Inc()
				break
			}
			metrics.PublishFailures.Inc()
			item.Attempts++
			if item.Attempts >= m.cfg.PublishRetries {
				metrics.QueueDrops.Inc()
				m.log.Warn("queued publish dropped after retries", zap.String("topic", item.Topic))
				break
			}
			if !m.client.IsConnectionOpen() {
				m.park(item)
				return
			}
			time.Sleep(time.Duration(item.Attempts) * m.cfg.RetryBackoff)
		}
	}
}

// Connected reports whether the broker session is currently open.
func (m *Manager) Connected() bool {
	return m.client != nil && m.client.IsConnectionOpen()
}

// QueueDepth reports how many publishes are parked offline.
func (m *Manager) QueueDepth() int { return m.queue.Len() }

// Stop announces the service offline, closes the session and stops the
// loops. Safe to call once after Connect succeeded.
func (m *Manager) Stop() {
	if m.client != nil && m.client.IsConnectionOpen() {
		token := m.client.Publish(m.topics.ServiceStatusTopic(), 1, true, `{"status":"offline"}`)
		token.WaitTimeout(m.cfg.PublishTimeout)
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.wg.Wait()
	m.log.Info("mqtt manager stopped")
}

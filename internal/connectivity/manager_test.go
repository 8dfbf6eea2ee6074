package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubToken struct{ err error }

func (t *stubToken) Wait() bool                     { return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return true }
func (t *stubToken) Error() error                   { return t.err }
func (t *stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stubClient stands in for the broker session. Topics listed in failTopics
// error on publish; dropOnFail additionally severs the connection on the
// first failure.
type stubClient struct {
	mu         sync.Mutex
	connected  bool
	published  []string
	subscribed []string
	attempts   map[string]int
	failTopics map[string]bool
	dropOnFail bool
}

func newStubClient() *stubClient {
	return &stubClient{
		connected:  true,
		attempts:   make(map[string]int),
		failTopics: make(map[string]bool),
	}
}

func (c *stubClient) IsConnected() bool { return c.IsConnectionOpen() }

func (c *stubClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *stubClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return &stubToken{}
}

func (c *stubClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *stubClient) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[topic]++
	if c.failTopics[topic] {
		if c.dropOnFail {
			c.connected = false
		}
		return &stubToken{err: errors.New("publish refused")}
	}
	c.published = append(c.published, topic)
	return &stubToken{}
}

func (c *stubClient) Subscribe(topic string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	return &stubToken{}
}

func (c *stubClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &stubToken{}
}

func (c *stubClient) Unsubscribe(...string) mqtt.Token        { return &stubToken{} }
func (c *stubClient) AddRoute(string, mqtt.MessageHandler)    {}
func (c *stubClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *stubClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

func (c *stubClient) attemptsFor(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[topic]
}

func newTestManager(t *testing.T, client *stubClient) *Manager {
	t.Helper()
	m := NewManager(Config{
		BrokerURL:      "tcp://stub:1883",
		Namespace:      "irrigation",
		QueueCap:       8,
		PublishRetries: 3,
		PublishTimeout: 50 * time.Millisecond,
		RetryBackoff:   time.Millisecond,
	}, zap.NewNop())
	m.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(m.Stop)
	return m
}

func TestFlushQueueReplaysInOrder(t *testing.T) {
	client := newStubClient()
	m := newTestManager(t, client)

	m.queue.Push(queuedPublish{Topic: "irrigation/dev-1/command"})
	m.queue.Push(queuedPublish{Topic: "irrigation/dev-2/command"})
	m.queue.Push(queuedPublish{Topic: "irrigation/dev-3/command"})

	m.flushQueue()

	assert.Equal(t, []string{
		"irrigation/dev-1/command",
		"irrigation/dev-2/command",
		"irrigation/dev-3/command",
	}, client.topics())
	assert.Zero(t, m.QueueDepth())
}

func TestFlushQueueDropsAfterRetryBudget(t *testing.T) {
	client := newStubClient()
	m := newTestManager(t, client)
	client.failTopics["irrigation/bad/command"] = true

	m.queue.Push(queuedPublish{Topic: "irrigation/bad/command"})
	m.queue.Push(queuedPublish{Topic: "irrigation/good/command"})

	m.flushQueue()

	// the failing message burned its whole budget, then the flush moved on
	assert.Equal(t, 3, client.attemptsFor("irrigation/bad/command"))
	assert.Equal(t, []string{"irrigation/good/command"}, client.topics())
	assert.Zero(t, m.QueueDepth())
}

func TestFlushQueueParksWhenConnectionDropsMidFlush(t *testing.T) {
	client := newStubClient()
	m := newTestManager(t, client)
	client.failTopics["irrigation/dev-1/command"] = true
	client.dropOnFail = true

	m.queue.Push(queuedPublish{Topic: "irrigation/dev-1/command"})
	m.queue.Push(queuedPublish{Topic: "irrigation/dev-2/command"})

	m.flushQueue()

	// nothing is dropped: the failed message is parked with its attempt
	// count and the rest stays queued for the next reconnect
	assert.Empty(t, client.topics())
	assert.Equal(t, 2, m.QueueDepth())
	first, ok := m.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, "irrigation/dev-2/command", first.Topic)
	second, ok := m.queue.Pop()
	require.True(t, ok)
	assert.Equal(t, "irrigation/dev-1/command", second.Topic)
	assert.Equal(t, 1, second.Attempts)
}

func TestDeliverParksWhenDisconnected(t *testing.T) {
	client := newStubClient()
	m := newTestManager(t, client)
	client.Disconnect(0)

	m.deliver(queuedPublish{Topic: "irrigation/dev-1/command"})

	assert.Empty(t, client.topics())
	assert.Equal(t, 1, m.QueueDepth())
}

func TestPublishReachesBrokerThroughSender(t *testing.T) {
	client := newStubClient()
	m := newTestManager(t, client)

	m.Publish("irrigation/dev-1/command", []byte(`{}`), false)

	require.Eventually(t, func() bool {
		return len(client.topics()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "irrigation/dev-1/command", client.topics()[0])
}

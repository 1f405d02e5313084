// Package testutil provides shared test utilities and mocks for waresync
// tests.
package testutil

import (
	"context"
	"sync"

	"github.com/waresync/waresync/internal/domain"
	"github.com/waresync/waresync/internal/domain/events"
	"github.com/waresync/waresync/internal/domain/ports"
)

// MockSubscriber implements ports.Subscriber for testing.
type MockSubscriber struct {
	id string

	mu       sync.Mutex
	messages [][]byte
	closed   bool
	sendErr  error
}

// NewMockSubscriber creates a new mock subscriber.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{
		id:       id,
		messages: make([][]byte, 0),
	}
}

// ID returns the subscriber ID.
func (m *MockSubscriber) ID() string {
	return m.id
}

// Send records the message and returns any configured error.
func (m *MockSubscriber) Send(message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrSubscriberClosed
	}
	if m.sendErr != nil {
		return m.sendErr
	}

	msg := make([]byte, len(message))
	copy(msg, message)
	m.messages = append(m.messages, msg)
	return nil
}

// Close marks the subscriber as closed.
func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Messages returns all received messages.
func (m *MockSubscriber) Messages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.messages))
	copy(result, m.messages)
	return result
}

// MessageCount returns the number of received messages.
func (m *MockSubscriber) MessageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// IsClosed returns whether the subscriber was closed.
func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// SetSendError configures an error to return on Send.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Ensure MockSubscriber implements ports.Subscriber.
var _ ports.Subscriber = (*MockSubscriber)(nil)

// MockBroadcaster implements ports.Broadcaster for testing.
type MockBroadcaster struct {
	mu     sync.Mutex
	events []events.ChangeEvent
}

// NewMockBroadcaster creates a new mock broadcaster.
func NewMockBroadcaster() *MockBroadcaster {
	return &MockBroadcaster{}
}

// Broadcast records the event.
func (m *MockBroadcaster) Broadcast(ev events.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns all broadcast events.
func (m *MockBroadcaster) Events() []events.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.ChangeEvent, len(m.events))
	copy(result, m.events)
	return result
}

// EventCount returns the number of broadcast events.
func (m *MockBroadcaster) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Ensure MockBroadcaster implements ports.Broadcaster.
var _ ports.Broadcaster = (*MockBroadcaster)(nil)

// MockChangeSource implements ports.ChangeSource for testing. Events
// pushed via Emit are dispatched to the registered handlers from the Run
// goroutine, mimicking the sequential dispatch of the real listener.
type MockChangeSource struct {
	mu        sync.Mutex
	handlers  []ports.ChangeHandler
	channels  []string
	connected bool

	ListenErr error
	ConnErr   error

	emit        chan events.ChangeEvent
	disconnects int
}

// NewMockChangeSource creates a new mock change source.
func NewMockChangeSource() *MockChangeSource {
	return &MockChangeSource{
		emit: make(chan events.ChangeEvent, 16),
	}
}

// Connect marks the source as connected.
func (m *MockChangeSource) Connect(ctx context.Context) error {
	if m.ConnErr != nil {
		return m.ConnErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// AddHandler appends a handler.
func (m *MockChangeSource) AddHandler(h ports.ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Listen records the channel, connecting lazily like the real listener.
func (m *MockChangeSource) Listen(ctx context.Context, channel string) error {
	if m.ListenErr != nil {
		return m.ListenErr
	}
	if err := m.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.channels = append(m.channels, channel)
	m.mu.Unlock()
	return nil
}

// Run dispatches emitted events until ctx is cancelled, then disconnects.
func (m *MockChangeSource) Run(ctx context.Context) error {
	defer func() { _ = m.Disconnect(context.Background()) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-m.emit:
			m.mu.Lock()
			handlers := make([]ports.ChangeHandler, len(m.handlers))
			copy(handlers, m.handlers)
			m.mu.Unlock()
			for _, h := range handlers {
				h(ctx, ev)
			}
		}
	}
}

// Disconnect marks the source as disconnected.
func (m *MockChangeSource) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
	return nil
}

// Emit queues an event for dispatch by Run.
func (m *MockChangeSource) Emit(ev events.ChangeEvent) {
	m.emit <- ev
}

// Channels returns the channels passed to Listen.
func (m *MockChangeSource) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.channels))
	copy(result, m.channels)
	return result
}

// HandlerCount returns the number of registered handlers.
func (m *MockChangeSource) HandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// Disconnects returns how many times Disconnect was called.
func (m *MockChangeSource) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// IsConnected reports whether the source is connected.
func (m *MockChangeSource) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Ensure MockChangeSource implements ports.ChangeSource.
var _ ports.ChangeSource = (*MockChangeSource)(nil)

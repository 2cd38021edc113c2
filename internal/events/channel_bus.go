package events

import (
	// Import the public events interface definition and types.
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	// Import the public logger interface definition.
	fflog "github.com/formflow-labs/formflow/pkg/formflow/v1/log"
)

// ChannelEventBus implements the public events.Bus interface using a buffered
// Go channel. It provides a simple, in-process, decoupled distribution
// mechanism for diagnostic events. Its primary characteristic is non-blocking
// emission: the engine's commit path must never stall on a slow event
// consumer, so under pressure events are dropped, never queued unboundedly.
// This is acceptable because the bus is diagnostics only; the snapshot change
// stream, which has delivery guarantees, is a separate mechanism on the
// state store.
type ChannelEventBus struct {
	// channel is the buffered Go channel that holds events pending delivery.
	channel chan events.Event
	// log is used for internal operational messages, such as warning about
	// dropped events when the channel buffer is full.
	log fflog.Logger
}

// NewChannelEventBus creates a new ChannelEventBus with the specified buffer size.
// If bufferSize is non-positive, a default buffer size (e.g., 100) is used.
// A non-nil logger instance (implementing fflog.Logger) is required.
// Panics if the provided logger is nil.
func NewChannelEventBus(bufferSize int, log fflog.Logger) *ChannelEventBus {
	const defaultBufferSize = 100
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if log == nil {
		// Cannot operate without a logger. Fail fast during setup.
		panic("ChannelEventBus requires a non-nil logger")
	}

	bus := &ChannelEventBus{
		channel: make(chan events.Event, bufferSize),
		log:     log.With("component", "ChannelEventBus"),
	}
	bus.log.Debugf("ChannelEventBus initialized with buffer size %d", bufferSize)
	return bus
}

// Emit sends an event onto the internal buffered channel.
// To prevent blocking the caller (the engine core), this operation is
// non-blocking. If the channel buffer is full at the time of the call, the
// event is dropped and a warning is logged.
func (c *ChannelEventBus) Emit(event events.Event) {
	select {
	case c.channel <- event:
		c.log.Debugf("Emitted event type '%s'", event.Type)
	default:
		c.log.Warnf("Event channel buffer full, dropping event type '%s'", event.Type)
	}
}

// GetChannel returns the underlying event channel for consumers.
// This method is specific to the ChannelEventBus implementation and is NOT
// part of the public events.Bus interface. It allows components within the
// same process (like the metrics event listener) to directly consume events.
// The returned channel is read-only.
func (c *ChannelEventBus) GetChannel() <-chan events.Event {
	return c.channel
}

// Close closes the underlying event channel.
// This signals to consumers reading from GetChannel() that no more events
// will be sent.
func (c *ChannelEventBus) Close() {
	c.log.Debugf("Closing ChannelEventBus channel.")
	close(c.channel)
}

// Ensure ChannelEventBus implements the public events.Bus interface at compile time.
var _ events.Bus = (*ChannelEventBus)(nil)

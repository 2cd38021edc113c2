package events

import (
	"context"

	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	fflog "github.com/formflow-labs/formflow/pkg/formflow/v1/log"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsEventListener subscribes to a formflow event bus and updates
// Prometheus metrics based on the events it receives. It covers the event
// classes that do not pass through the engine's own instrumented hot paths:
// async validation outcomes, history restores, binding propagation, and
// persistence failures.
type MetricsEventListener struct {
	bus                *ChannelEventBus
	log                fflog.Logger
	asyncSettled       *prometheus.CounterVec
	historyRestores    prometheus.Counter
	bindingWrites      prometheus.Counter
	persistFailures    prometheus.Counter
}

// NewMetricsEventListener creates a new listener. It requires a
// ChannelEventBus to subscribe to and the Prometheus collectors it updates.
func NewMetricsEventListener(
	bus *ChannelEventBus,
	asyncSettled *prometheus.CounterVec,
	historyRestores prometheus.Counter,
	bindingWrites prometheus.Counter,
	persistFailures prometheus.Counter,
	log fflog.Logger,
) *MetricsEventListener {
	if bus == nil || log == nil {
		// A nil logger would cause a panic, so we check all dependencies.
		panic("MetricsEventListener requires a non-nil ChannelEventBus and Logger")
	}
	return &MetricsEventListener{
		bus:             bus,
		log:             log.With("component", "MetricsEventListener"),
		asyncSettled:    asyncSettled,
		historyRestores: historyRestores,
		bindingWrites:   bindingWrites,
		persistFailures: persistFailures,
	}
}

// Start begins listening for events on the bus in a new goroutine.
// The provided context is used to signal shutdown.
func (l *MetricsEventListener) Start(ctx context.Context) {
	l.log.Debugf("Starting metrics event listener...")
	// The listening loop runs until the bus channel is closed or the context is done.
	for {
		select {
		case event, ok := <-l.bus.GetChannel():
			if !ok {
				l.log.Debugf("Event bus channel closed, stopping listener.")
				return
			}
			l.handleEvent(event)
		case <-ctx.Done():
			l.log.Debugf("Context cancelled, stopping metrics event listener.")
			return
		}
	}
}

// handleEvent processes a single event, incrementing metrics as needed.
func (l *MetricsEventListener) handleEvent(event events.Event) {
	switch event.Type {
	case events.AsyncValidationSettled:
		if l.asyncSettled != nil {
			outcome := "valid"
			if o, ok := event.Payload["outcome"].(string); ok {
				outcome = o
			}
			l.asyncSettled.WithLabelValues(outcome).Inc()
		}
	case events.HistoryRestored:
		if l.historyRestores != nil {
			l.historyRestores.Inc()
		}
	case events.BindingApplied:
		if l.bindingWrites != nil {
			l.bindingWrites.Inc()
		}
	case events.PersistSaveFailed:
		if l.persistFailures != nil {
			l.persistFailures.Inc()
		}
	}
}

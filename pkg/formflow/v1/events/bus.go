package events

import "time"

// EventType represents the type of a formflow engine event.
type EventType string

// Standard formflow event types. The event bus is a diagnostics surface
// and may drop under pressure; the snapshot change stream, which must never
// drop or coalesce, is a separate, synchronous listener registration on the
// engine.
const (
	FieldRegistered          EventType = "FieldRegistered"
	FieldUnregistered        EventType = "FieldUnregistered"
	BatchApplied             EventType = "BatchApplied"             // One coordinator call committed
	AsyncValidationScheduled EventType = "AsyncValidationScheduled" // Debounce timer armed
	AsyncValidationSettled   EventType = "AsyncValidationSettled"   // Async validator resolved or faulted
	FormReset                EventType = "FormReset"
	SubmitStart              EventType = "SubmitStart"
	SubmitEnd                EventType = "SubmitEnd"
	HistoryRestored          EventType = "HistoryRestored" // Undo or redo republished a snapshot
	BindingApplied           EventType = "BindingApplied"  // A bound field mirrored a source change
	PersistSaveFailed        EventType = "PersistSaveFailed"
)

// Event represents a significant occurrence within the formflow engine.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// FormID identifies the engine instance, if applicable.
	FormID string `json:"form_id,omitempty"`
	// FieldKey identifies the field context, if applicable.
	FieldKey string `json:"field_key,omitempty"`
	// Payload contains event-specific data. Values of fields marked
	// Sensitive MUST be redacted before they reach a payload.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing events within the formflow engine.
// Implementations must be safe for concurrent use and must not block the
// caller; dropping under pressure is acceptable.
type Bus interface {
	Emit(event Event)
}

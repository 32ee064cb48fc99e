// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventSessionStarted     EventType = "SESSION_STARTED"
	EventInstructionDecoded EventType = "INSTRUCTION_DECODED"
	EventDecoderFailed      EventType = "DECODER_FAILED"
	EventCaptureCompleted   EventType = "CAPTURE_COMPLETED"
	EventPrinterForwarded   EventType = "PRINTER_FORWARDED"
)

// Event represents something that happened to a print job
type Event struct {
	ID        uuid.UUID   `json:"id"`
	EventType EventType   `json:"event_type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Severity  string      `json:"severity"` // INFO, WARNING, ERROR
}

// NewEvent creates an INFO event
func NewEvent(eventType EventType, sessionID, source string, data interface{}) Event {
	return Event{
		ID:        uuid.New(),
		EventType: eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Severity:  "INFO",
	}
}

// WithSeverity returns a copy of the event with another severity
func (e Event) WithSeverity(severity string) Event {
	e.Severity = severity
	return e
}

// InstructionEventData represents a decoded instruction on the live feed
type InstructionEventData struct {
	Offset    int64  `json:"offset"`
	Kind      string `json:"kind"`
	Mnemonic  string `json:"mnemonic,omitempty"`
	Name      string `json:"name,omitempty"`
	Rendered  string `json:"rendered"`
	Length    int    `json:"length"`
	Truncated bool   `json:"truncated,omitempty"`
}

// CaptureCompletedEventData represents the end of a print job
type CaptureCompletedEventData struct {
	CaptureID     uuid.UUID `json:"capture_id"`
	ByteCount     int       `json:"byte_count"`
	DecoderStatus string    `json:"decoder_status"`
	PrinterStatus string    `json:"printer_status"`
	Lines         []string  `json:"lines"`
	DurationMs    int64     `json:"duration_ms"`
}

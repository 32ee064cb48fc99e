// internal/model/capture.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CaptureSource identifies where a captured job came from
type CaptureSource string

const (
	CaptureSourceListener CaptureSource = "LISTENER"
	CaptureSourceAPI      CaptureSource = "API"
	CaptureSourceReplay   CaptureSource = "REPLAY"
)

// Capture is one print job seen by the service, with its decoding outcome
type Capture struct {
	ID         uuid.UUID     `json:"id" db:"id"`
	Source     CaptureSource `json:"source" db:"source"`
	RemoteAddr string        `json:"remote_addr" db:"remote_addr"`
	StartedAt  time.Time     `json:"started_at" db:"started_at"`
	EndedAt    time.Time     `json:"ended_at" db:"ended_at"`
	ByteCount  int           `json:"byte_count" db:"byte_count"`
	RawData    []byte        `json:"-" db:"raw_data"`

	InstructionCount int `json:"instruction_count" db:"instruction_count"`
	UnknownCount     int `json:"unknown_count" db:"unknown_count"`
	TruncatedCount   int `json:"truncated_count" db:"truncated_count"`

	DecoderStatus string           `json:"decoder_status" db:"decoder_status"`
	PrinterStatus string           `json:"printer_status" db:"printer_status"`
	DecoderError  *string          `json:"decoder_error,omitempty" db:"decoder_error"`
	Lines         JSONArray        `json:"lines" db:"lines"`
	Total         *decimal.Decimal `json:"total,omitempty" db:"total"`
	Summary       JSONObject       `json:"summary" db:"summary"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// Duration returns how long the job took to arrive
func (c *Capture) Duration() time.Duration {
	return c.EndedAt.Sub(c.StartedAt)
}

// HasRawData reports whether the job bytes were kept and can be replayed
func (c *Capture) HasRawData() bool {
	return len(c.RawData) > 0
}

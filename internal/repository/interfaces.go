// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"escpos-service/internal/model"
)

// ErrCaptureNotFound is returned when no capture has the requested id
var ErrCaptureNotFound = errors.New("capture not found")

// CaptureRepository defines capture data access operations
type CaptureRepository interface {
	// CRUD operations
	Create(ctx context.Context, capture *model.Capture) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Capture, error)
	UpdatePrinterStatus(ctx context.Context, id uuid.UUID, status string) error

	// Listing and filtering
	List(ctx context.Context, filter *CaptureFilter) ([]*model.Capture, int, error)

	// Analytics
	Stats(ctx context.Context, since *time.Time) (*CaptureStats, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// CaptureFilter represents capture listing filters
type CaptureFilter struct {
	Source        *model.CaptureSource `json:"source,omitempty"`
	DecoderStatus *string              `json:"decoder_status,omitempty"`
	PrinterStatus *string              `json:"printer_status,omitempty"`
	StartDate     *time.Time           `json:"start_date,omitempty"`
	EndDate       *time.Time           `json:"end_date,omitempty"`
	SearchTerm    *string              `json:"search_term,omitempty"`
	Page          int                  `json:"page"`
	PerPage       int                  `json:"per_page"`
	SortBy        string               `json:"sort_by"`
	SortOrder     string               `json:"sort_order"`
}

// Normalize applies paging defaults and bounds
func (f *CaptureFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 100 {
		f.PerPage = 100
	}
	if _, ok := sortableColumns[f.SortBy]; !ok {
		f.SortBy = "created_at"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
}

var sortableColumns = map[string]struct{}{
	"created_at": {},
	"started_at": {},
	"byte_count": {},
}

// CaptureStats represents capture statistics
type CaptureStats struct {
	TotalCaptures     int            `json:"total_captures"`
	TotalBytes        int64          `json:"total_bytes"`
	TotalInstructions int64          `json:"total_instructions"`
	UnknownCommands   int64          `json:"unknown_commands"`
	ByDecoderStatus   map[string]int `json:"by_decoder_status"`
	ByPrinterStatus   map[string]int `json:"by_printer_status"`
	LastCaptureAt     *time.Time     `json:"last_capture_at,omitempty"`
}

func newCaptureStats() *CaptureStats {
	return &CaptureStats{
		ByDecoderStatus: make(map[string]int),
		ByPrinterStatus: make(map[string]int),
	}
}

// internal/repository/memory_capture_repository.go
package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escpos-service/internal/model"
)

// memoryCaptureRepository keeps the most recent captures in process memory
type memoryCaptureRepository struct {
	mu       sync.RWMutex
	captures map[uuid.UUID]*model.Capture
	order    []uuid.UUID
	maxRows  int
	logger   *zap.Logger
	now      func() time.Time
}

// NewMemoryCaptureRepository creates a bounded in-memory capture repository.
// Once maxRows captures are held, the oldest is evicted.
func NewMemoryCaptureRepository(maxRows int, logger *zap.Logger) CaptureRepository {
	if maxRows < 1 {
		maxRows = 1000
	}
	return &memoryCaptureRepository{
		captures: make(map[uuid.UUID]*model.Capture),
		maxRows:  maxRows,
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a copy of the capture
func (r *memoryCaptureRepository) Create(ctx context.Context, capture *model.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.captures[capture.ID]; exists {
		return fmt.Errorf("failed to create capture: duplicate id %s", capture.ID)
	}

	if capture.CreatedAt.IsZero() {
		capture.CreatedAt = r.now()
	}

	stored := *capture
	r.captures[capture.ID] = &stored
	r.order = append(r.order, capture.ID)

	for len(r.order) > r.maxRows {
		evicted := r.order[0]
		r.order = r.order[1:]
		delete(r.captures, evicted)
		r.logger.Debug("Capture evicted from memory", zap.String("id", evicted.String()))
	}

	return nil
}

// GetByID returns a copy of the capture
func (r *memoryCaptureRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Capture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capture, ok := r.captures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}

	out := *capture
	return &out, nil
}

// UpdatePrinterStatus records the outcome of a relay or replay
func (r *memoryCaptureRepository) UpdatePrinterStatus(ctx context.Context, id uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	capture, ok := r.captures[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}
	capture.PrinterStatus = status
	return nil
}

// List filters, sorts and pages the stored captures
func (r *memoryCaptureRepository) List(ctx context.Context, filter *CaptureFilter) ([]*model.Capture, int, error) {
	filter.Normalize()

	r.mu.RLock()
	matched := []*model.Capture{}
	for _, capture := range r.captures {
		if matchesFilter(capture, filter) {
			out := *capture
			matched = append(matched, &out)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if filter.SortOrder == "desc" {
			return captureLess(matched[j], matched[i], filter.SortBy)
		}
		return captureLess(matched[i], matched[j], filter.SortBy)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PerPage
	if start >= total {
		return []*model.Capture{}, total, nil
	}
	end := min(start+filter.PerPage, total)

	return matched[start:end], total, nil
}

// Stats aggregates the stored captures
func (r *memoryCaptureRepository) Stats(ctx context.Context, since *time.Time) (*CaptureStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := newCaptureStats()
	for _, capture := range r.captures {
		if since != nil && capture.CreatedAt.Before(*since) {
			continue
		}
		stats.TotalCaptures++
		stats.TotalBytes += int64(capture.ByteCount)
		stats.TotalInstructions += int64(capture.InstructionCount)
		stats.UnknownCommands += int64(capture.UnknownCount)
		stats.ByDecoderStatus[capture.DecoderStatus]++
		stats.ByPrinterStatus[capture.PrinterStatus]++

		created := capture.CreatedAt
		if stats.LastCaptureAt == nil || created.After(*stats.LastCaptureAt) {
			stats.LastCaptureAt = &created
		}
	}

	return stats, nil
}

// DeleteOlderThan removes captures created before the given time
func (r *memoryCaptureRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	kept := r.order[:0]
	for _, id := range r.order {
		if r.captures[id].CreatedAt.Before(olderThan) {
			delete(r.captures, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept

	return deleted, nil
}

func matchesFilter(c *model.Capture, f *CaptureFilter) bool {
	if f.Source != nil && c.Source != *f.Source {
		return false
	}
	if f.DecoderStatus != nil && c.DecoderStatus != *f.DecoderStatus {
		return false
	}
	if f.PrinterStatus != nil && c.PrinterStatus != *f.PrinterStatus {
		return false
	}
	if f.StartDate != nil && c.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && c.CreatedAt.After(*f.EndDate) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(*f.SearchTerm)
		for _, line := range c.Lines.Strings() {
			if strings.Contains(strings.ToLower(line), term) {
				return true
			}
		}
		return false
	}
	return true
}

func captureLess(a, b *model.Capture, sortBy string) bool {
	switch sortBy {
	case "started_at":
		return a.StartedAt.Before(b.StartedAt)
	case "byte_count":
		return a.ByteCount < b.ByteCount
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

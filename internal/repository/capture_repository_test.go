package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"escpos-service/internal/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCapture(i int, decoderStatus string, lines ...string) *model.Capture {
	return &model.Capture{
		ID:               uuid.New(),
		Source:           model.CaptureSourceListener,
		StartedAt:        base.Add(time.Duration(i) * time.Minute),
		EndedAt:          base.Add(time.Duration(i)*time.Minute + time.Second),
		ByteCount:        100 * (i + 1),
		InstructionCount: 10,
		UnknownCount:     i,
		DecoderStatus:    decoderStatus,
		PrinterStatus:    "disabled",
		Lines:            model.NewJSONArray(lines),
		CreatedAt:        base.Add(time.Duration(i) * time.Minute),
	}
}

func seed(t *testing.T, repo CaptureRepository, captures ...*model.Capture) {
	t.Helper()
	for _, c := range captures {
		require.NoError(t, repo.Create(context.Background(), c))
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	repo := NewMemoryCaptureRepository(10, zap.NewNop())
	c := newCapture(0, "success", "HELLO")
	seed(t, repo, c)

	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, []string{"HELLO"}, got.Lines.Strings())

	// returned captures are copies
	got.DecoderStatus = "mutated"
	again, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", again.DecoderStatus)

	assert.Error(t, repo.Create(context.Background(), c))

	_, err = repo.GetByID(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrCaptureNotFound))
}

func TestMemoryEviction(t *testing.T) {
	repo := NewMemoryCaptureRepository(2, zap.NewNop())
	first, second, third := newCapture(0, "success"), newCapture(1, "success"), newCapture(2, "success")
	seed(t, repo, first, second, third)

	_, err := repo.GetByID(context.Background(), first.ID)
	assert.ErrorIs(t, err, ErrCaptureNotFound)

	_, total, err := repo.List(context.Background(), &CaptureFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestMemoryList(t *testing.T) {
	repo := NewMemoryCaptureRepository(100, zap.NewNop())
	for i := 0; i < 25; i++ {
		status := "success"
		if i%5 == 0 {
			status = "warning"
		}
		seed(t, repo, newCapture(i, status, fmt.Sprintf("RECEIPT %d", i)))
	}

	ctx := context.Background()

	page, total, err := repo.List(ctx, &CaptureFilter{Page: 2, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	require.Len(t, page, 10)
	assert.Equal(t, []string{"RECEIPT 14"}, page[0].Lines.Strings())

	warning := "warning"
	page, total, err = repo.List(ctx, &CaptureFilter{DecoderStatus: &warning, SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []string{"RECEIPT 0"}, page[0].Lines.Strings())

	term := "receipt 2"
	_, total, err = repo.List(ctx, &CaptureFilter{SearchTerm: &term})
	require.NoError(t, err)
	assert.Equal(t, 6, total) // 2 and 20-24

	page, _, err = repo.List(ctx, &CaptureFilter{SortBy: "byte_count", SortOrder: "desc", PerPage: 1})
	require.NoError(t, err)
	assert.Equal(t, 2500, page[0].ByteCount)

	page, total, err = repo.List(ctx, &CaptureFilter{Page: 9})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Empty(t, page)
}

func TestMemoryStatsAndCleanup(t *testing.T) {
	repo := NewMemoryCaptureRepository(100, zap.NewNop())
	seed(t, repo,
		newCapture(0, "success"),
		newCapture(1, "warning"),
		newCapture(2, "error"),
	)
	ctx := context.Background()

	stats, err := repo.Stats(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCaptures)
	assert.Equal(t, int64(600), stats.TotalBytes)
	assert.Equal(t, int64(3), stats.UnknownCommands)
	assert.Equal(t, 1, stats.ByDecoderStatus["warning"])
	assert.Equal(t, 3, stats.ByPrinterStatus["disabled"])
	require.NotNil(t, stats.LastCaptureAt)
	assert.Equal(t, base.Add(2*time.Minute), *stats.LastCaptureAt)

	since := base.Add(time.Minute)
	stats, err = repo.Stats(ctx, &since)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCaptures)

	deleted, err := repo.DeleteOlderThan(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := repo.List(ctx, &CaptureFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestMemoryUpdatePrinterStatus(t *testing.T) {
	repo := NewMemoryCaptureRepository(10, zap.NewNop())
	c := newCapture(0, "success")
	seed(t, repo, c)

	require.NoError(t, repo.UpdatePrinterStatus(context.Background(), c.ID, "success"))
	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "success", got.PrinterStatus)

	err = repo.UpdatePrinterStatus(context.Background(), uuid.New(), "error")
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}

func TestBuildCaptureWhere(t *testing.T) {
	where, args := buildCaptureWhere(&CaptureFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	source := model.CaptureSourceAPI
	status := "error"
	term := "TOTAL"
	start := base
	where, args = buildCaptureWhere(&CaptureFilter{
		Source:        &source,
		PrinterStatus: &status,
		StartDate:     &start,
		SearchTerm:    &term,
	})

	assert.Equal(t, "WHERE source = $1 AND printer_status = $2 AND created_at >= $3 AND lines::text ILIKE $4", where)
	assert.Equal(t, []interface{}{source, "error", base, "%TOTAL%"}, args)
}

func TestFilterNormalize(t *testing.T) {
	f := &CaptureFilter{PerPage: 1000, SortBy: "id; DROP TABLE captures", SortOrder: "sideways"}
	f.Normalize()

	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.PerPage)
	assert.Equal(t, "created_at", f.SortBy)
	assert.Equal(t, "desc", f.SortOrder)
}

// internal/repository/capture_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escpos-service/internal/database"
	"escpos-service/internal/model"
)

const captureColumns = `
	id, source, remote_addr, started_at, ended_at, byte_count, raw_data,
	instruction_count, unknown_count, truncated_count, decoder_status,
	printer_status, decoder_error, lines, total, summary, created_at`

// captureRepository implements CaptureRepository on PostgreSQL
type captureRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewCaptureRepository creates a new PostgreSQL capture repository
func NewCaptureRepository(db *database.DB, logger *zap.Logger) CaptureRepository {
	return &captureRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a new capture
func (r *captureRepository) Create(ctx context.Context, capture *model.Capture) error {
	query := `
		INSERT INTO captures (
			id, source, remote_addr, started_at, ended_at, byte_count, raw_data,
			instruction_count, unknown_count, truncated_count, decoder_status,
			printer_status, decoder_error, lines, total, summary
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at
	`

	lines := capture.Lines
	if lines == nil {
		lines = model.JSONArray{}
	}
	summary := capture.Summary
	if summary == nil {
		summary = model.JSONObject{}
	}

	err := r.db.QueryRowContext(ctx, query,
		capture.ID, capture.Source, capture.RemoteAddr, capture.StartedAt,
		capture.EndedAt, capture.ByteCount, capture.RawData,
		capture.InstructionCount, capture.UnknownCount, capture.TruncatedCount,
		capture.DecoderStatus, capture.PrinterStatus, capture.DecoderError,
		lines, capture.Total, summary,
	).Scan(&capture.CreatedAt)

	if err != nil {
		r.logger.Error("Failed to create capture", zap.Error(err), zap.String("id", capture.ID.String()))
		return fmt.Errorf("failed to create capture: %w", err)
	}

	r.logger.Debug("Capture created", zap.String("id", capture.ID.String()))
	return nil
}

// GetByID retrieves a capture by its UUID
func (r *captureRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Capture, error) {
	query := `SELECT ` + captureColumns + ` FROM captures WHERE id = $1`

	capture, err := scanCapture(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
		}
		r.logger.Error("Failed to get capture by ID", zap.Error(err), zap.String("id", id.String()))
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}

	return capture, nil
}

// UpdatePrinterStatus records the outcome of a relay or replay
func (r *captureRepository) UpdatePrinterStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE captures SET printer_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		r.logger.Error("Failed to update printer status", zap.Error(err), zap.String("id", id.String()))
		return fmt.Errorf("failed to update printer status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrCaptureNotFound, id)
	}

	return nil
}

// List retrieves captures with filtering and pagination
func (r *captureRepository) List(ctx context.Context, filter *CaptureFilter) ([]*model.Capture, int, error) {
	filter.Normalize()
	whereClause, args := buildCaptureWhere(filter)
	argIndex := len(args) + 1

	// Count total records
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM captures %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count captures: %w", err)
	}

	// Build main query with pagination
	offset := (filter.Page - 1) * filter.PerPage
	query := fmt.Sprintf(`SELECT %s FROM captures %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		captureColumns, whereClause, filter.SortBy, strings.ToUpper(filter.SortOrder), argIndex, argIndex+1)

	args = append(args, filter.PerPage, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list captures", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list captures: %w", err)
	}
	defer rows.Close()

	captures := []*model.Capture{}
	for rows.Next() {
		capture, err := scanCapture(rows)
		if err != nil {
			r.logger.Error("Failed to scan capture row", zap.Error(err))
			continue
		}
		captures = append(captures, capture)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate capture rows: %w", err)
	}

	return captures, total, nil
}

// Stats aggregates captures, optionally since a point in time
func (r *captureRepository) Stats(ctx context.Context, since *time.Time) (*CaptureStats, error) {
	whereClause := ""
	args := []interface{}{}
	if since != nil {
		whereClause = "WHERE created_at >= $1"
		args = append(args, *since)
	}

	query := fmt.Sprintf(`
		SELECT decoder_status, printer_status, COUNT(*),
			COALESCE(SUM(byte_count), 0), COALESCE(SUM(instruction_count), 0),
			COALESCE(SUM(unknown_count), 0), MAX(created_at)
		FROM captures %s
		GROUP BY decoder_status, printer_status
	`, whereClause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture stats: %w", err)
	}
	defer rows.Close()

	stats := newCaptureStats()
	for rows.Next() {
		var decoderStatus, printerStatus string
		var count int
		var bytes, instructions, unknown int64
		var last time.Time

		if err := rows.Scan(&decoderStatus, &printerStatus, &count, &bytes, &instructions, &unknown, &last); err != nil {
			return nil, fmt.Errorf("failed to scan capture stats: %w", err)
		}

		stats.TotalCaptures += count
		stats.TotalBytes += bytes
		stats.TotalInstructions += instructions
		stats.UnknownCommands += unknown
		stats.ByDecoderStatus[decoderStatus] += count
		stats.ByPrinterStatus[printerStatus] += count
		if stats.LastCaptureAt == nil || last.After(*stats.LastCaptureAt) {
			stats.LastCaptureAt = &last
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate capture stats: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan removes captures created before the given time
func (r *captureRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM captures WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old captures: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// buildCaptureWhere renders the filter as a WHERE clause with positional args
func buildCaptureWhere(filter *CaptureFilter) (string, []interface{}) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter.Source != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("source = $%d", argIndex))
		args = append(args, *filter.Source)
		argIndex++
	}

	if filter.DecoderStatus != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("decoder_status = $%d", argIndex))
		args = append(args, *filter.DecoderStatus)
		argIndex++
	}

	if filter.PrinterStatus != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("printer_status = $%d", argIndex))
		args = append(args, *filter.PrinterStatus)
		argIndex++
	}

	if filter.StartDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.StartDate)
		argIndex++
	}

	if filter.EndDate != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.EndDate)
		argIndex++
	}

	if filter.SearchTerm != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("lines::text ILIKE $%d", argIndex))
		args = append(args, "%"+*filter.SearchTerm+"%")
	}

	if len(whereConditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(whereConditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row rowScanner) (*model.Capture, error) {
	capture := &model.Capture{}
	err := row.Scan(
		&capture.ID, &capture.Source, &capture.RemoteAddr, &capture.StartedAt,
		&capture.EndedAt, &capture.ByteCount, &capture.RawData,
		&capture.InstructionCount, &capture.UnknownCount, &capture.TruncatedCount,
		&capture.DecoderStatus, &capture.PrinterStatus, &capture.DecoderError,
		&capture.Lines, &capture.Total, &capture.Summary, &capture.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

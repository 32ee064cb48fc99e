// internal/service/capture_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escpos-service/internal/config"
	"escpos-service/internal/escpos"
	"escpos-service/internal/events"
	"escpos-service/internal/metrics"
	"escpos-service/internal/model"
	"escpos-service/internal/receipt"
	"escpos-service/internal/render"
	"escpos-service/internal/repository"
	"escpos-service/internal/utils"
)

var (
	// ErrNoRawData is returned when a capture was stored without its job bytes
	ErrNoRawData = errors.New("capture has no raw data")

	// ErrJobTooLarge is returned when a job exceeds the configured size limit
	ErrJobTooLarge = errors.New("print job too large")
)

// Forwarder relays raw job bytes to the printer
type Forwarder interface {
	Forward(ctx context.Context, raw []byte) (receipt.PrinterStatus, error)
}

// CaptureService turns decoded print jobs into receipts, relays them and
// keeps a record of each job
type CaptureService struct {
	captureRepo repository.CaptureRepository
	forwarder   Forwarder
	publisher   events.Publisher
	metrics     *metrics.Metrics
	renderer    render.Renderer
	config      *config.Config
	logger      *utils.ServiceLogger
	now         func() time.Time
}

// NewCaptureService creates a new capture service instance.
// forwarder, publisher and m may be nil.
func NewCaptureService(
	captureRepo repository.CaptureRepository,
	forwarder Forwarder,
	publisher events.Publisher,
	m *metrics.Metrics,
	config *config.Config,
	logger *zap.Logger,
) *CaptureService {
	return &CaptureService{
		captureRepo: captureRepo,
		forwarder:   forwarder,
		publisher:   publisher,
		metrics:     m,
		renderer:    render.NewTextRenderer(),
		config:      config,
		logger:      utils.NewServiceLogger(logger, "capture-service"),
		now:         time.Now,
	}
}

// DecoderOptions returns the decoder options derived from configuration
func (cs *CaptureService) DecoderOptions(logger *zap.Logger) []escpos.Option {
	opts := []escpos.Option{escpos.WithMaxCommandLength(cs.config.Decoder.MaxCommandLength)}
	if logger != nil {
		opts = append(opts, escpos.WithLogger(logger))
	}
	return opts
}

// Decode decodes a job submitted through the API. When req.Store is set the
// job is relayed and persisted like a captured one.
func (cs *CaptureService) Decode(ctx context.Context, req *DecodeRequest) (*DecodeResult, error) {
	if limit := cs.config.Listener.MaxJobSize; limit > 0 && len(req.Data) > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrJobTooLarge, len(req.Data), limit)
	}

	started := cs.now()
	cs.metrics.RecordBytes("api", len(req.Data))

	instructions, decodeErr := escpos.Decode(req.Data, cs.DecoderOptions(cs.logger.Logger)...)
	for _, inst := range instructions {
		cs.metrics.RecordInstruction(inst)
	}
	if decodeErr != nil {
		cs.metrics.RecordFatal(FatalReason(decodeErr))
	}

	result := &DecodeResult{
		Instructions: instructions,
		Rendered:     render.RenderAll(cs.renderer, instructions, req.Level),
		Level:        req.Level.String(),
	}
	if decodeErr != nil {
		result.Error = decodeErr.Error()
	}

	if !req.Store {
		result.Receipt = receipt.Extract(instructions)
		result.Message = receipt.NewMessage(result.Receipt, decodeErr, receipt.PrinterStatusUnknown)
		return result, nil
	}

	outcome, err := cs.Complete(ctx, &Job{
		SessionID:    uuid.NewString(),
		Source:       model.CaptureSourceAPI,
		RemoteAddr:   req.RemoteAddr,
		StartedAt:    started,
		EndedAt:      cs.now(),
		Raw:          req.Data,
		Instructions: instructions,
		DecodeErr:    decodeErr,
	})
	if outcome != nil {
		result.Receipt = outcome.Receipt
		result.Message = outcome.Message
		result.CaptureID = &outcome.Capture.ID
	}
	return result, err
}

// Complete finishes a job: it relays the raw bytes, extracts the receipt,
// persists the capture and announces it. The outcome is returned even when
// storing fails.
func (cs *CaptureService) Complete(ctx context.Context, job *Job) (*JobOutcome, error) {
	printerStatus := receipt.PrinterStatusDisabled
	if cs.forwarder != nil {
		relayStart := cs.now()
		status, err := cs.forwarder.Forward(ctx, job.Raw)
		printerStatus = status
		cs.metrics.RecordRelay(string(status), cs.now().Sub(relayStart))
		if err != nil {
			cs.logger.Warn("Printer relay failed",
				zap.String("session_id", job.SessionID),
				zap.Error(err),
			)
		}
	}

	rec := receipt.Extract(job.Instructions)
	msg := receipt.NewMessage(rec, job.DecodeErr, printerStatus)
	if job.Overflow > 0 {
		cs.logger.Warn("Job exceeded maximum size, tail was relayed undecoded",
			zap.String("session_id", job.SessionID),
			zap.Int("undecoded_bytes", job.Overflow),
		)
		if msg.DecoderStatus == receipt.DecoderStatusSuccess {
			msg.DecoderStatus = receipt.DecoderStatusWarning
		}
	}

	capture := cs.buildCapture(job, rec, msg)
	outcome := &JobOutcome{Capture: capture, Receipt: rec, Message: msg}

	cs.logger.Info("Print job decoded",
		zap.String("session_id", job.SessionID),
		zap.String("capture_id", capture.ID.String()),
		zap.Int("bytes", len(job.Raw)),
		zap.Any("message", msg),
	)

	if cs.captureRepo != nil {
		if err := cs.captureRepo.Create(ctx, capture); err != nil {
			cs.logger.Error("Failed to store capture",
				zap.String("capture_id", capture.ID.String()),
				zap.Error(err),
			)
			return outcome, fmt.Errorf("failed to store capture: %w", err)
		}
		cs.metrics.RecordCapture(capture.DecoderStatus)
	}

	if cs.publisher != nil {
		event := model.NewEvent(model.EventCaptureCompleted, job.SessionID, string(job.Source), model.CaptureCompletedEventData{
			CaptureID:     capture.ID,
			ByteCount:     capture.ByteCount,
			DecoderStatus: capture.DecoderStatus,
			PrinterStatus: capture.PrinterStatus,
			Lines:         msg.ReceiptContent.Lines,
			DurationMs:    capture.Duration().Milliseconds(),
		})
		if msg.DecoderStatus == receipt.DecoderStatusError {
			event = event.WithSeverity("ERROR")
		} else if msg.DecoderStatus == receipt.DecoderStatusWarning {
			event = event.WithSeverity("WARNING")
		}
		cs.publisher.Publish(event)
	}

	return outcome, nil
}

func (cs *CaptureService) buildCapture(job *Job, rec *receipt.Receipt, msg receipt.Message) *model.Capture {
	capture := &model.Capture{
		ID:               uuid.New(),
		Source:           job.Source,
		RemoteAddr:       job.RemoteAddr,
		StartedAt:        job.StartedAt,
		EndedAt:          job.EndedAt,
		ByteCount:        len(job.Raw),
		InstructionCount: len(job.Instructions),
		UnknownCount:     rec.UnknownCommands,
		TruncatedCount:   rec.TruncatedCommands,
		DecoderStatus:    string(msg.DecoderStatus),
		PrinterStatus:    string(msg.PrinterStatus),
		Lines:            model.NewJSONArray(msg.ReceiptContent.Lines),
		Total:            rec.Total,
		Summary: model.JSONObject{
			"text_runs":      rec.TextRuns,
			"discarded_runs": rec.DiscardedRuns,
			"known_commands": rec.KnownCommands,
			"cuts":           rec.Cuts,
			"code_page":      rec.CodePage,
			"table_version":  escpos.TableVersion,
		},
		CreatedAt: cs.now(),
	}

	if job.DecodeErr != nil {
		errText := job.DecodeErr.Error()
		capture.DecoderError = &errText

		var fatal *escpos.FatalError
		if errors.As(job.DecodeErr, &fatal) {
			capture.Summary["fatal_offset"] = fatal.Offset
			capture.Summary["fatal_command"] = fatal.Name
		}
	}

	if job.Overflow > 0 {
		capture.Summary["job_truncated"] = true
		capture.Summary["undecoded_bytes"] = job.Overflow
	}

	if cs.config.Capture.StoreRaw {
		capture.RawData = append([]byte(nil), job.Decoded()...)
	}

	return capture
}

// GetCapture returns one capture
func (cs *CaptureService) GetCapture(ctx context.Context, id uuid.UUID) (*model.Capture, error) {
	capture, err := cs.captureRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return capture, nil
}

// ListCaptures lists captures with filtering and pagination
func (cs *CaptureService) ListCaptures(ctx context.Context, filter *repository.CaptureFilter) (*PaginationResult, error) {
	filter.Normalize()

	captures, total, err := cs.captureRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list captures: %w", err)
	}

	return &PaginationResult{
		Captures: captures,
		Total:    total,
		Page:     filter.Page,
		PerPage:  filter.PerPage,
	}, nil
}

// Stats aggregates captures since the given time, or all captures
func (cs *CaptureService) Stats(ctx context.Context, since *time.Time) (*repository.CaptureStats, error) {
	stats, err := cs.captureRepo.Stats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture stats: %w", err)
	}
	return stats, nil
}

// Replay relays a stored job to the printer again and records the outcome
// on the original capture
func (cs *CaptureService) Replay(ctx context.Context, id uuid.UUID) (*ReplayResult, error) {
	capture, err := cs.captureRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}

	if !capture.HasRawData() {
		return nil, fmt.Errorf("%w: %s", ErrNoRawData, id)
	}

	if cs.forwarder == nil {
		return &ReplayResult{CaptureID: id, PrinterStatus: receipt.PrinterStatusDisabled}, nil
	}

	start := cs.now()
	status, forwardErr := cs.forwarder.Forward(ctx, capture.RawData)
	cs.metrics.RecordRelay(string(status), cs.now().Sub(start))

	if err := cs.captureRepo.UpdatePrinterStatus(ctx, id, string(status)); err != nil {
		return nil, fmt.Errorf("failed to update printer status: %w", err)
	}

	result := &ReplayResult{
		CaptureID:     id,
		PrinterStatus: status,
		ByteCount:     len(capture.RawData),
	}
	if forwardErr != nil {
		result.Error = forwardErr.Error()
	}

	if cs.publisher != nil {
		cs.publisher.Publish(model.NewEvent(model.EventPrinterForwarded, id.String(), string(model.CaptureSourceReplay), result))
	}

	cs.logger.Info("Capture replayed",
		zap.String("capture_id", id.String()),
		zap.String("printer_status", string(status)),
	)

	return result, nil
}

// Cleanup deletes captures older than the configured retention
func (cs *CaptureService) Cleanup(ctx context.Context) (int64, error) {
	if cs.config.Capture.Retention <= 0 {
		return 0, nil
	}

	cutoff := cs.now().Add(-cs.config.Capture.Retention)
	deleted, err := cs.captureRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old captures: %w", err)
	}

	if deleted > 0 {
		cs.logger.Info("Old captures deleted",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

// Publish forwards a live event when a publisher is configured
func (cs *CaptureService) Publish(event model.Event) {
	if cs.publisher != nil {
		cs.publisher.Publish(event)
	}
}

// FatalReason labels a fatal decoder error
func FatalReason(err error) string {
	switch {
	case errors.Is(err, escpos.ErrRunawayTerminator):
		return "runaway_terminator"
	case errors.Is(err, escpos.ErrOversizedCommand):
		return "oversized_command"
	default:
		return "other"
	}
}

// Request/Response types

// DecodeRequest represents an API decode request
type DecodeRequest struct {
	Data       []byte
	Level      render.Level
	Store      bool
	RemoteAddr string
}

// DecodeResult represents the outcome of decoding a job
type DecodeResult struct {
	Instructions []escpos.Instruction `json:"instructions"`
	Rendered     string               `json:"rendered"`
	Level        string               `json:"level"`
	Receipt      *receipt.Receipt     `json:"receipt"`
	Message      receipt.Message      `json:"message"`
	CaptureID    *uuid.UUID           `json:"capture_id,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Job is a complete print job as seen by the tap or the API
type Job struct {
	SessionID    string
	Source       model.CaptureSource
	RemoteAddr   string
	StartedAt    time.Time
	EndedAt      time.Time
	Raw          []byte
	Instructions []escpos.Instruction
	DecodeErr    error

	// Overflow counts trailing bytes of Raw past the job size limit. They are
	// relayed but neither decoded nor stored.
	Overflow int
}

// Decoded returns the part of Raw that was decoded
func (j *Job) Decoded() []byte {
	if j.Overflow <= 0 || j.Overflow > len(j.Raw) {
		return j.Raw
	}
	return j.Raw[:len(j.Raw)-j.Overflow]
}

// JobOutcome is what a completed job produced
type JobOutcome struct {
	Capture *model.Capture
	Receipt *receipt.Receipt
	Message receipt.Message
}

// ReplayResult reports a replayed capture
type ReplayResult struct {
	CaptureID     uuid.UUID             `json:"capture_id"`
	PrinterStatus receipt.PrinterStatus `json:"printer_status"`
	ByteCount     int                   `json:"byte_count"`
	Error         string                `json:"error,omitempty"`
}

// PaginationResult represents paginated capture results
type PaginationResult struct {
	Captures []*model.Capture `json:"captures"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PerPage  int              `json:"per_page"`
}

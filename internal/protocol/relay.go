// internal/protocol/relay.go
package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"escpos-service/internal/config"
	"escpos-service/internal/receipt"
)

// ConnectionFactory opens a fresh connection for every forwarded job
type ConnectionFactory func() (PrinterConnection, error)

// RelayStats summarizes forwarded jobs
type RelayStats struct {
	Enabled        bool           `json:"enabled"`
	ConnectionType ConnectionType `json:"connection_type,omitempty"`
	JobsForwarded  int64          `json:"jobs_forwarded"`
	JobsFailed     int64          `json:"jobs_failed"`
	BytesForwarded int64          `json:"bytes_forwarded"`
	LastForwardAt  *time.Time     `json:"last_forward_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
}

// Relay forwards captured jobs to the downstream printer.
// Jobs are serialized; the printer sees one job at a time.
type Relay struct {
	enabled        bool
	connectionType ConnectionType
	factory        ConnectionFactory
	timeout        time.Duration
	logger         *zap.Logger

	mu    sync.Mutex
	stats RelayStats
}

// NewRelay creates a relay from configuration. A disabled printer yields a
// relay that reports every job as disabled.
func NewRelay(cfg *config.PrinterConfig, logger *zap.Logger) (*Relay, error) {
	if !cfg.Enabled {
		return NewRelayWithFactory(false, "", nil, cfg.Timeout, logger), nil
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid printer configuration: %w", err)
	}

	factory := func() (PrinterConnection, error) {
		return CreateConnection(cfg, logger)
	}

	return NewRelayWithFactory(true, ParseConnectionType(cfg.ConnectionType), factory, cfg.Timeout, logger), nil
}

// NewRelayWithFactory creates a relay around an arbitrary connection factory
func NewRelayWithFactory(enabled bool, connectionType ConnectionType, factory ConnectionFactory, timeout time.Duration, logger *zap.Logger) *Relay {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Relay{
		enabled:        enabled,
		connectionType: connectionType,
		factory:        factory,
		timeout:        timeout,
		logger:         logger.With(zap.String("component", "relay")),
		stats: RelayStats{
			Enabled:        enabled,
			ConnectionType: connectionType,
		},
	}
}

// Enabled reports whether jobs are forwarded at all
func (r *Relay) Enabled() bool {
	return r.enabled
}

// Forward opens the printer, writes the raw job and closes the printer
// within the relay timeout.
func (r *Relay) Forward(ctx context.Context, raw []byte) (receipt.PrinterStatus, error) {
	if !r.enabled {
		return receipt.PrinterStatusDisabled, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.forward(ctx, raw)
	now := time.Now()
	r.stats.LastForwardAt = &now

	if err != nil {
		r.stats.JobsFailed++
		r.stats.LastError = err.Error()
		r.logger.Error("Failed to forward job to printer",
			zap.Error(err),
			zap.Int("bytes", len(raw)),
		)
		return receipt.PrinterStatusError, err
	}

	r.stats.JobsForwarded++
	r.stats.BytesForwarded += int64(len(raw))
	r.stats.LastError = ""
	r.logger.Debug("Job forwarded to printer", zap.Int("bytes", len(raw)))
	return receipt.PrinterStatusSuccess, nil
}

func (r *Relay) forward(ctx context.Context, raw []byte) error {
	conn, err := r.factory()
	if err != nil {
		return fmt.Errorf("failed to create printer connection: %w", err)
	}

	if err := conn.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			r.logger.Warn("Failed to close printer connection", zap.Error(cerr))
		}
	}()

	if len(raw) == 0 {
		return nil
	}

	return conn.Write(ctx, raw)
}

// Stats returns a snapshot of the relay counters
func (r *Relay) Stats() RelayStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	if stats.LastForwardAt != nil {
		at := *stats.LastForwardAt
		stats.LastForwardAt = &at
	}
	return stats
}

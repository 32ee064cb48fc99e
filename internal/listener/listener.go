// internal/listener/listener.go
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"escpos-service/internal/config"
	"escpos-service/internal/escpos"
	"escpos-service/internal/metrics"
	"escpos-service/internal/model"
	"escpos-service/internal/render"
	"escpos-service/internal/service"
	"escpos-service/internal/utils"
)

// ErrServerClosed is returned by Serve after Shutdown
var ErrServerClosed = errors.New("listener: server closed")

// JobCompleter finishes a captured job
type JobCompleter interface {
	Complete(ctx context.Context, job *service.Job) (*service.JobOutcome, error)
	DecoderOptions(logger *zap.Logger) []escpos.Option
	Publish(event model.Event)
}

// Server accepts raw print jobs on a TCP port, decodes them as they arrive
// and hands each finished job to the capture service
type Server struct {
	config      *config.ListenerConfig
	renderLevel render.Level
	logInst     bool
	completer   JobCompleter
	metrics     *metrics.Metrics
	renderer    render.Renderer
	logger      *zap.Logger

	slots    chan struct{}
	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	sessions sync.WaitGroup
	closing  bool
}

// NewServer creates a tap listener
func NewServer(cfg *config.Config, completer JobCompleter, m *metrics.Metrics, logger *zap.Logger) *Server {
	level, err := render.ParseLevel(cfg.Decoder.RenderLevel)
	if err != nil {
		level = render.LevelInfo
	}

	maxConns := cfg.Listener.MaxConnections
	if maxConns < 1 {
		maxConns = 1
	}

	return &Server{
		config:      &cfg.Listener,
		renderLevel: level,
		logInst:     cfg.Decoder.LogInstructions,
		completer:   completer,
		metrics:     m,
		renderer:    render.NewTextRenderer(),
		logger:      logger.With(zap.String("component", "listener")),
		slots:       make(chan struct{}, maxConns),
		conns:       make(map[net.Conn]struct{}),
	}
}

// Addr returns the bound address once Serve or ListenAndServe has started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the configured address and serves until Shutdown
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Listening for print jobs", zap.String("addr", ln.Addr().String()))

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay = min(tempDelay*2, time.Second)
				}
				s.logger.Warn("Accept error, retrying", zap.Error(err), zap.Duration("delay", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		tempDelay = 0

		select {
		case s.slots <- struct{}{}:
		default:
			s.logger.Warn("Connection limit reached, rejecting job",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Int("max_connections", cap(s.slots)),
			)
			s.metrics.SessionRejected()
			conn.Close()
			continue
		}

		if !s.track(conn) {
			<-s.slots
			conn.Close()
			return ErrServerClosed
		}

		go func() {
			defer func() {
				s.untrack(conn)
				<-s.slots
			}()
			s.handleSession(conn)
		}()
	}
}

// Shutdown stops accepting connections and waits for open sessions to
// finish. When ctx expires first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.sessions.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.sessions.Done()
}

// handleSession reads one print job until the client closes its side
func (s *Server) handleSession(conn net.Conn) {
	defer conn.Close()

	sessionID := uuid.NewString()
	slog := utils.NewSessionLogger(s.logger, sessionID, conn.RemoteAddr().String())
	slog.Start()
	s.metrics.SessionStarted()

	s.completer.Publish(model.NewEvent(model.EventSessionStarted, sessionID, string(model.CaptureSourceListener), map[string]string{
		"remote_addr": conn.RemoteAddr().String(),
	}))

	decoder := escpos.NewDecoder(s.completer.DecoderOptions(slog.Logger)...)
	sess := &session{
		id:      sessionID,
		server:  s,
		decoder: decoder,
		logger:  slog,
		started: time.Now(),
	}

	outcome := "completed"
	readErr := sess.read(conn)
	if readErr != nil {
		outcome = "read_error"
		slog.Warn("Job read ended early", zap.Error(readErr))
	}

	sess.finish()

	// The job is completed with a detached context so Shutdown does not
	// lose a job that has already been read.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := s.completer.Complete(ctx, &service.Job{
		SessionID:    sessionID,
		Source:       model.CaptureSourceListener,
		RemoteAddr:   conn.RemoteAddr().String(),
		StartedAt:    sess.started,
		EndedAt:      time.Now(),
		Raw:          sess.raw,
		Instructions: sess.instructions,
		DecodeErr:    sess.decodeErr,
		Overflow:     sess.overflow,
	})
	if err != nil {
		outcome = "store_error"
		slog.Failed(err)
	}

	if sess.decodeErr != nil && outcome == "completed" {
		outcome = "decoder_error"
	}
	s.metrics.SessionEnded(outcome)

	fields := []zap.Field{zap.String("outcome", outcome), zap.Int("instructions", len(sess.instructions))}
	if result != nil {
		fields = append(fields,
			zap.String("decoder_status", string(result.Message.DecoderStatus)),
			zap.String("printer_status", string(result.Message.PrinterStatus)),
		)
	}
	slog.Finish(len(sess.raw), fields...)
}

// session holds the state of one connection's job
type session struct {
	id           string
	server       *Server
	decoder      *escpos.Decoder
	logger       *utils.SessionLogger
	started      time.Time
	raw          []byte
	instructions []escpos.Instruction
	decodeErr    error
	overflow     int
	offset       int64
}

// read consumes the connection until EOF, decoding each chunk as it arrives
func (ss *session) read(conn net.Conn) error {
	cfg := ss.server.config
	bufSize := cfg.ReadBufferSize
	if bufSize < 1 {
		bufSize = 4096
	}
	buf := make([]byte, bufSize)

	for {
		if cfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			ss.accept(buf[:n])
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("idle for %s: %w", cfg.ReadTimeout, err)
			}
			return err
		}
	}
}

// accept keeps every raw byte for the relay and feeds the decoder up to the
// job size limit
func (ss *session) accept(chunk []byte) {
	s := ss.server

	ss.raw = append(ss.raw, chunk...)
	s.metrics.RecordBytes("listener", len(chunk))

	if limit := s.config.MaxJobSize; limit > 0 && len(ss.raw) > limit {
		keep := min(max(limit-(len(ss.raw)-len(chunk)), 0), len(chunk))
		if ss.overflow == 0 {
			ss.logger.Warn("Job exceeds maximum size, remaining bytes are relayed undecoded",
				zap.Int("max_job_size", limit),
			)
		}
		ss.overflow += len(chunk) - keep
		chunk = chunk[:keep]
		if len(chunk) == 0 {
			return
		}
	}

	if ss.decodeErr != nil {
		return
	}

	instructions, err := ss.decoder.Feed(chunk)
	ss.emit(instructions)
	if err != nil {
		ss.fail(err)
	}
}

// finish flushes the decoder at end of stream
func (ss *session) finish() {
	if ss.decodeErr != nil {
		return
	}
	instructions, err := ss.decoder.Finish()
	ss.emit(instructions)
	if err != nil {
		ss.fail(err)
	}
}

func (ss *session) fail(err error) {
	ss.decodeErr = err
	ss.server.metrics.RecordFatal(service.FatalReason(err))
	ss.logger.Error("Decoder stopped, remaining bytes are relayed undecoded",
		zap.Error(err),
		zap.Int64("offset", ss.decoder.Offset()),
	)
	ss.server.completer.Publish(model.NewEvent(model.EventDecoderFailed, ss.id, string(model.CaptureSourceListener), map[string]string{
		"error": err.Error(),
	}).WithSeverity("ERROR"))
}

func (ss *session) emit(instructions []escpos.Instruction) {
	s := ss.server
	for _, inst := range instructions {
		offset := ss.offset
		ss.offset += int64(inst.Len())
		s.metrics.RecordInstruction(inst)

		rendered := s.renderer.Render(inst, s.renderLevel)
		if s.logInst {
			ss.logger.Debug("Instruction decoded",
				zap.String("kind", inst.Kind.String()),
				zap.Int64("offset", offset),
				zap.String("rendered", rendered),
			)
		}

		data := model.InstructionEventData{
			Offset:    offset,
			Kind:      inst.Kind.String(),
			Name:      inst.Name,
			Rendered:  rendered,
			Length:    inst.Len(),
			Truncated: inst.Truncated,
		}
		if inst.Kind != escpos.KindText {
			data.Mnemonic = inst.Mnemonic()
		}
		s.completer.Publish(model.NewEvent(model.EventInstructionDecoded, ss.id, string(model.CaptureSourceListener), data))

		ss.instructions = append(ss.instructions, inst)
	}
}

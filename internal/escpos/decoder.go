// internal/escpos/decoder.go
package escpos

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"
)

// DefaultMaxCommandLength bounds the parameter bytes buffered for one command
const DefaultMaxCommandLength = 64 * 1024

type decoderState int

const (
	stateIdle decoderState = iota
	statePrefixSeen
	stateCollecting
	stateUntilTerminator
	stateFailed
)

func (s decoderState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case statePrefixSeen:
		return "prefix_seen"
	case stateCollecting:
		return "collecting_parameters"
	case stateUntilTerminator:
		return "collecting_until_terminator"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Option configures a Decoder
type Option func(*Decoder)

// WithTable replaces the default command table
func WithTable(table *Table) Option {
	return func(d *Decoder) {
		if table != nil {
			d.table = table
		}
	}
}

// WithMaxCommandLength bounds the parameter bytes of a single command
func WithMaxCommandLength(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxCommandLength = n
		}
	}
}

// WithLogger enables debug logging of decoding decisions
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Decoder turns an ESC/POS byte stream into instructions, one byte at a time.
//
// A Decoder holds the state of a single stream and is not safe for concurrent
// use. Input may arrive in chunks of any size; the instructions produced are
// the same as for a single call with the whole stream.
type Decoder struct {
	table            *Table
	maxCommandLength int
	logger           *zap.Logger

	state   decoderState
	text    []byte
	pending []byte
	def     CommandDefinition

	// need is the parameter count at which the current stage completes;
	// next, if set, yields the rule for the stage that follows.
	need       int
	next       func(params []byte) LengthRule
	terminator byte

	offset int64
	err    error
	out    []Instruction
}

// NewDecoder creates a decoder in the idle state
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		table:            DefaultTable(),
		maxCommandLength: DefaultMaxCommandLength,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed decodes a chunk and returns the instructions it completed.
// A non-nil error is always a *FatalError; instructions completed before the
// failure are still returned.
func (d *Decoder) Feed(chunk []byte) ([]Instruction, error) {
	if d.state == stateFailed {
		return nil, d.err
	}

	for _, b := range chunk {
		if err := d.step(b); err != nil {
			return d.drain(), err
		}
	}

	return d.drain(), nil
}

// Finish flushes whatever the stream left behind and returns the decoder to
// idle. Pending text becomes a Text instruction; an incomplete command becomes
// a truncated UnknownCommand.
func (d *Decoder) Finish() ([]Instruction, error) {
	if d.state == stateFailed {
		return nil, d.err
	}

	if d.state == stateIdle {
		d.flushText()
	} else {
		d.logger.Debug("Stream ended inside command",
			zap.String("state", d.state.String()),
			zap.Int("collected", len(d.pending)),
		)
		d.emitUnknown(true)
	}

	return d.drain(), nil
}

// Reset discards all state, including a failed state
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.text = d.text[:0]
	d.pending = d.pending[:0]
	d.def = CommandDefinition{}
	d.need = 0
	d.next = nil
	d.offset = 0
	d.err = nil
	d.out = nil
}

// Offset returns the number of bytes consumed since creation or Reset
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Err returns the fatal error, if any
func (d *Decoder) Err() error {
	return d.err
}

// Pending returns the number of bytes held for an incomplete text run or command
func (d *Decoder) Pending() int {
	return len(d.text) + len(d.pending)
}

func (d *Decoder) step(b byte) error {
	d.offset++

	switch d.state {
	case stateIdle:
		if d.table.IsPrefix(b) {
			d.flushText()
			d.pending = append(d.pending[:0], b)
			d.state = statePrefixSeen
			return nil
		}
		d.text = append(d.text, b)

	case statePrefixSeen:
		d.pending = append(d.pending, b)
		def, ok := d.table.Lookup(d.pending[0], b)
		if !ok {
			d.logger.Debug("Unrecognized command",
				zap.String("command", fmt.Sprintf("% X", d.pending)),
				zap.Int64("offset", d.offset-2),
			)
			d.emitUnknown(false)
			return nil
		}
		d.def = def
		return d.apply(def.Rule)

	case stateCollecting:
		d.pending = append(d.pending, b)
		if d.collected() < d.need {
			return nil
		}
		if d.next == nil {
			d.emitKnown()
			return nil
		}
		next := d.next
		d.next = nil
		return d.apply(next(d.params()))

	case stateUntilTerminator:
		d.pending = append(d.pending, b)
		if b == d.terminator {
			d.emitKnown()
			return nil
		}
		if d.collected() >= d.maxCommandLength {
			return d.fail(ErrRunawayTerminator)
		}
	}

	return nil
}

// apply enters the stage described by rule, starting at the current
// parameter position. Stages that need no further bytes resolve immediately.
func (d *Decoder) apply(rule LengthRule) error {
	for {
		base := d.collected()

		switch rule.kind {
		case RuleTerminatorDelimited:
			d.terminator = rule.terminator
			d.next = nil
			d.state = stateUntilTerminator
			return nil

		case RuleLengthPrefixed:
			offset, width := rule.offset, rule.width
			d.need = base + offset + width
			d.next = func(params []byte) LengthRule {
				field := params[base+offset : base+offset+width]
				n := 0
				for i := len(field) - 1; i >= 0; i-- {
					n = n<<8 | int(field[i])
				}
				return Fixed(n)
			}

		case RuleDependent:
			resolve := rule.resolve
			d.need = base + rule.count
			d.next = func(params []byte) LengthRule {
				return resolve(params[base:])
			}

		default:
			d.need = base + rule.count
			d.next = nil
		}

		if d.need > d.maxCommandLength || d.need < base {
			return d.fail(ErrOversizedCommand)
		}

		if d.collected() < d.need {
			d.state = stateCollecting
			return nil
		}

		if d.next == nil {
			d.emitKnown()
			return nil
		}

		next := d.next
		d.next = nil
		rule = next(d.params())
	}
}

func (d *Decoder) collected() int {
	if len(d.pending) < 2 {
		return 0
	}
	return len(d.pending) - 2
}

func (d *Decoder) params() []byte {
	return d.pending[2:]
}

func (d *Decoder) flushText() {
	if len(d.text) == 0 {
		return
	}
	d.out = append(d.out, Text(d.text))
	d.text = d.text[:0]
}

func (d *Decoder) emitKnown() {
	d.out = append(d.out, Known(d.def, d.params()))
	d.clearCommand()
}

func (d *Decoder) emitUnknown(truncated bool) {
	if len(d.pending) > 0 {
		d.out = append(d.out, Unknown(d.pending, truncated))
	}
	d.clearCommand()
}

func (d *Decoder) clearCommand() {
	d.pending = d.pending[:0]
	d.def = CommandDefinition{}
	d.need = 0
	d.next = nil
	d.state = stateIdle
}

func (d *Decoder) fail(cause error) error {
	fatal := &FatalError{
		Err:       cause,
		Name:      d.def.Name,
		Prefix:    d.def.Prefix,
		Opcode:    d.def.Opcode,
		Collected: len(d.pending),
		Offset:    d.offset - int64(len(d.pending)),
	}

	d.logger.Debug("Decoder failed",
		zap.String("command", d.def.Name),
		zap.Int("collected", len(d.pending)),
		zap.Error(cause),
	)

	d.pending = d.pending[:0]
	d.next = nil
	d.state = stateFailed
	d.err = fatal
	return fatal
}

func (d *Decoder) drain() []Instruction {
	out := d.out
	d.out = nil
	return out
}

// Decode decodes a complete byte stream
func Decode(data []byte, opts ...Option) ([]Instruction, error) {
	d := NewDecoder(opts...)

	instructions, err := d.Feed(data)
	if err != nil {
		return instructions, err
	}

	tail, err := d.Finish()
	return append(instructions, tail...), err
}

// Instructions lazily decodes everything r yields. The sequence ends after the
// final flush, or with a non-nil error from the reader or the decoder.
func Instructions(r io.Reader, opts ...Option) iter.Seq2[Instruction, error] {
	return func(yield func(Instruction, error) bool) {
		d := NewDecoder(opts...)
		buf := make([]byte, 4096)

		for {
			n, readErr := r.Read(buf)
			if n > 0 {
				instructions, err := d.Feed(buf[:n])
				for _, inst := range instructions {
					if !yield(inst, nil) {
						return
					}
				}
				if err != nil {
					yield(Instruction{}, err)
					return
				}
			}

			if readErr != nil {
				if !errors.Is(readErr, io.EOF) {
					yield(Instruction{}, fmt.Errorf("failed to read stream: %w", readErr))
					return
				}
				break
			}
		}

		tail, err := d.Finish()
		for _, inst := range tail {
			if !yield(inst, nil) {
				return
			}
		}
		if err != nil {
			yield(Instruction{}, err)
		}
	}
}

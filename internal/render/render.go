// internal/render/render.go
package render

import (
	"fmt"
	"strings"

	"escpos-service/internal/escpos"
)

// Level controls how much of the instruction stream is shown
type Level int

const (
	LevelQuiet Level = iota
	LevelInfo
	LevelDebug
)

// ParseLevel converts a -v count or a level name into a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "quiet":
		return LevelQuiet, nil
	case "1", "info":
		return LevelInfo, nil
	case "2", "debug":
		return LevelDebug, nil
	default:
		return LevelQuiet, fmt.Errorf("invalid render level: %s", s)
	}
}

// LevelFromCount maps a repeated verbosity flag onto a Level
func LevelFromCount(n int) Level {
	switch {
	case n <= 0:
		return LevelQuiet
	case n == 1:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Renderer turns instructions into human-readable output
type Renderer interface {
	Render(inst escpos.Instruction, level Level) string
}

// TextRenderer renders instructions as plain text annotated by level.
// Quiet shows only printable text, info adds command descriptions and
// warnings, debug adds raw hex dumps.
type TextRenderer struct{}

// NewTextRenderer creates a text renderer
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

// Render renders a single instruction
func (r *TextRenderer) Render(inst escpos.Instruction, level Level) string {
	switch inst.Kind {
	case escpos.KindText:
		if level >= LevelDebug {
			return fmt.Sprintf("%s[text % X]\n", inst.Content, inst.Raw)
		}
		return string(inst.Content)

	case escpos.KindKnownCommand:
		if level < LevelInfo {
			return ""
		}
		line := fmt.Sprintf("[%s] %s", inst.Mnemonic(), Describe(inst))
		if level >= LevelDebug {
			line += fmt.Sprintf(" {% X}", inst.Raw)
		}
		return line + "\n"

	default:
		if level < LevelInfo {
			return ""
		}
		line := fmt.Sprintf("[WARN] unknown command %s", inst.Mnemonic())
		if inst.Truncated {
			line += " (truncated at end of stream)"
		}
		if level >= LevelDebug {
			line += fmt.Sprintf(" {% X}", inst.Raw)
		}
		return line + "\n"
	}
}

// RenderAll renders instructions in order
func RenderAll(r Renderer, instructions []escpos.Instruction, level Level) string {
	var b strings.Builder
	for _, inst := range instructions {
		b.WriteString(r.Render(inst, level))
	}
	return b.String()
}

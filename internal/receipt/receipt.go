// internal/receipt/receipt.go
package receipt

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"escpos-service/internal/escpos"
)

// Receipt is the printable content recovered from an instruction stream
type Receipt struct {
	Text  string   `json:"text"`
	Lines []string `json:"lines"`

	TextRuns          int `json:"text_runs"`
	DiscardedRuns     int `json:"discarded_runs"`
	KnownCommands     int `json:"known_commands"`
	UnknownCommands   int `json:"unknown_commands"`
	TruncatedCommands int `json:"truncated_commands"`
	Cuts              int `json:"cuts"`

	CodePage string           `json:"code_page"`
	Total    *decimal.Decimal `json:"total,omitempty"`
}

// Clean reports whether every byte was understood
func (r *Receipt) Clean() bool {
	return r.DiscardedRuns == 0 && r.UnknownCommands == 0 && r.TruncatedCommands == 0
}

// Extract builds the receipt text the printer would have produced.
//
// Text runs holding control bytes other than tab, line feed, carriage
// return, vertical tab and form feed are discarded as misinterpreted binary
// data. Line feed commands add newlines, ESC t switches the code page used
// for the text that follows.
func Extract(instructions []escpos.Instruction) *Receipt {
	r := &Receipt{}
	page := DefaultCodePage
	var b strings.Builder

	for _, inst := range instructions {
		switch inst.Kind {
		case escpos.KindText:
			r.TextRuns++
			if !printable(inst.Content) {
				r.DiscardedRuns++
				continue
			}
			text, err := page.Decode(inst.Content)
			if err != nil {
				r.DiscardedRuns++
				continue
			}
			b.WriteString(text)

		case escpos.KindKnownCommand:
			r.KnownCommands++
			switch inst.Name {
			case "feed_lines", "feed_units":
				// motion units are treated as lines
				if len(inst.Parameters) == 1 {
					b.WriteString(strings.Repeat("\n", int(inst.Parameters[0])))
				}
			case "select_character_code_table":
				if len(inst.Parameters) == 1 {
					page, _ = LookupCodePage(inst.Parameters[0])
				}
			case "initialize":
				page = DefaultCodePage
			case "cut_paper", "partial_cut_one_point", "partial_cut_three_points":
				r.Cuts++
			}

		case escpos.KindUnknownCommand:
			if inst.Truncated {
				r.TruncatedCommands++
			} else {
				r.UnknownCommands++
			}
		}
	}

	r.Text = b.String()
	r.Lines = SplitLines(r.Text)
	r.CodePage = page.Name
	r.Total = FindTotal(r.Lines)
	return r
}

func printable(b []byte) bool {
	for _, c := range b {
		switch {
		case c == '\t', c == '\n', c == '\r', c == '\v', c == '\f':
		case c < 0x20, c == 0x7F:
			return false
		}
	}
	return true
}

// SplitLines trims surrounding whitespace and splits on any line ending.
// Blank lines inside the text are kept.
func SplitLines(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

var totalPattern = regexp.MustCompile(`(?i)^\s*(?:grand\s+)?total\b[^0-9-]*(-?\d+(?:[.,]\d+)?)\s*$`)

// FindTotal returns the amount of the last line that reads like a total
func FindTotal(lines []string) *decimal.Decimal {
	for i := len(lines) - 1; i >= 0; i-- {
		m := totalPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", "."))
		if err != nil {
			continue
		}
		return &amount
	}
	return nil
}

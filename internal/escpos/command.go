// internal/escpos/command.go
package escpos

import (
	"fmt"
	"sort"
	"sync"
)

// Prefix bytes that open an ESC/POS command sequence
const (
	DLE byte = 0x10
	ESC byte = 0x1B
	FS  byte = 0x1C
	GS  byte = 0x1D
)

// TableVersion identifies the revision of the default command table
const TableVersion = "2024.1"

// PrefixName returns the mnemonic of a prefix byte
func PrefixName(b byte) string {
	switch b {
	case ESC:
		return "ESC"
	case GS:
		return "GS"
	case FS:
		return "FS"
	case DLE:
		return "DLE"
	default:
		return fmt.Sprintf("0x%02X", b)
	}
}

// RuleKind identifies the shape of a parameter length rule
type RuleKind int

const (
	RuleFixed RuleKind = iota
	RuleLengthPrefixed
	RuleTerminatorDelimited
	RuleDependent
)

func (k RuleKind) String() string {
	switch k {
	case RuleFixed:
		return "fixed"
	case RuleLengthPrefixed:
		return "length_prefixed"
	case RuleTerminatorDelimited:
		return "terminator_delimited"
	case RuleDependent:
		return "dependent"
	default:
		return "unknown"
	}
}

// LengthRule describes how many parameter bytes follow an opcode.
// The zero value is Fixed(0).
type LengthRule struct {
	kind       RuleKind
	count      int
	offset     int
	width      int
	terminator byte
	resolve    func(header []byte) LengthRule
}

// Fixed expects exactly n parameter bytes
func Fixed(n int) LengthRule {
	return LengthRule{kind: RuleFixed, count: n}
}

// LengthPrefixed expects offset leading bytes, then a little-endian length
// field of width bytes, then as many bytes as the field announces.
func LengthPrefixed(offset, width int) LengthRule {
	return LengthRule{kind: RuleLengthPrefixed, offset: offset, width: width}
}

// TerminatorDelimited collects parameter bytes up to and including term
func TerminatorDelimited(term byte) LengthRule {
	return LengthRule{kind: RuleTerminatorDelimited, terminator: term}
}

// Dependent reads header parameter bytes and hands them to resolve, whose
// result governs the bytes that follow. resolve must not retain the slice.
func Dependent(header int, resolve func(header []byte) LengthRule) LengthRule {
	return LengthRule{kind: RuleDependent, count: header, resolve: resolve}
}

// Kind returns the rule shape
func (r LengthRule) Kind() RuleKind { return r.kind }

// Count returns n for Fixed and the header size for Dependent
func (r LengthRule) Count() int { return r.count }

// Offset returns the offset of the length field for LengthPrefixed
func (r LengthRule) Offset() int { return r.offset }

// Width returns the width of the length field for LengthPrefixed
func (r LengthRule) Width() int { return r.width }

// Terminator returns the end byte for TerminatorDelimited
func (r LengthRule) Terminator() byte { return r.terminator }

func (r LengthRule) String() string {
	switch r.kind {
	case RuleFixed:
		return fmt.Sprintf("fixed(%d)", r.count)
	case RuleLengthPrefixed:
		return fmt.Sprintf("length_prefixed(%d,%d)", r.offset, r.width)
	case RuleTerminatorDelimited:
		return fmt.Sprintf("terminator_delimited(0x%02X)", r.terminator)
	case RuleDependent:
		return fmt.Sprintf("dependent(%d)", r.count)
	default:
		return "unknown"
	}
}

// CommandDefinition is one entry of the command table
type CommandDefinition struct {
	Prefix byte
	Opcode byte
	Rule   LengthRule
	Name   string
}

// Mnemonic renders the command as e.g. "ESC @"
func (c CommandDefinition) Mnemonic() string {
	if c.Opcode >= 0x21 && c.Opcode <= 0x7E {
		return fmt.Sprintf("%s %c", PrefixName(c.Prefix), c.Opcode)
	}
	return fmt.Sprintf("%s 0x%02X", PrefixName(c.Prefix), c.Opcode)
}

type commandKey struct {
	prefix byte
	opcode byte
}

// Table maps prefix and opcode pairs to command definitions.
// A Table is read-only after construction and safe to share.
type Table struct {
	commands map[commandKey]CommandDefinition
	prefixes [256]bool
}

// NewTable builds a table from definitions
func NewTable(defs ...CommandDefinition) (*Table, error) {
	t := &Table{
		commands: make(map[commandKey]CommandDefinition, len(defs)),
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("command %s has no name", def.Mnemonic())
		}
		if def.Rule.kind == RuleDependent && def.Rule.resolve == nil {
			return nil, fmt.Errorf("command %s: dependent rule without resolver", def.Mnemonic())
		}
		if def.Rule.kind == RuleLengthPrefixed && (def.Rule.width < 1 || def.Rule.width > 4) {
			return nil, fmt.Errorf("command %s: length field width must be 1-4", def.Mnemonic())
		}

		key := commandKey{prefix: def.Prefix, opcode: def.Opcode}
		if existing, ok := t.commands[key]; ok {
			return nil, fmt.Errorf("duplicate command %s (%s and %s)", def.Mnemonic(), existing.Name, def.Name)
		}
		t.commands[key] = def
		t.prefixes[def.Prefix] = true
	}

	return t, nil
}

// MustNewTable is NewTable that panics on error
func MustNewTable(defs ...CommandDefinition) *Table {
	t, err := NewTable(defs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup finds the definition for a prefix and opcode
func (t *Table) Lookup(prefix, opcode byte) (CommandDefinition, bool) {
	def, ok := t.commands[commandKey{prefix: prefix, opcode: opcode}]
	return def, ok
}

// IsPrefix reports whether b opens a command in this table
func (t *Table) IsPrefix(b byte) bool {
	return t.prefixes[b]
}

// Len returns the number of definitions
func (t *Table) Len() int {
	return len(t.commands)
}

// Definitions returns all definitions ordered by prefix and opcode
func (t *Table) Definitions() []CommandDefinition {
	defs := make([]CommandDefinition, 0, len(t.commands))
	for _, def := range t.commands {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Prefix != defs[j].Prefix {
			return defs[i].Prefix < defs[j].Prefix
		}
		return defs[i].Opcode < defs[j].Opcode
	})
	return defs
}

var (
	defaultTable     *Table
	defaultTableOnce sync.Once
)

// DefaultTable returns the shared ESC/POS command table
func DefaultTable() *Table {
	defaultTableOnce.Do(func() {
		defaultTable = MustNewTable(defaultDefinitions()...)
	})
	return defaultTable
}

func defaultDefinitions() []CommandDefinition {
	return []CommandDefinition{
		// ESC family
		{ESC, 0x0C, Fixed(0), "print_page_mode_data"},        // ESC FF
		{ESC, 0x20, Fixed(1), "set_character_spacing"},       // ESC SP n
		{ESC, 0x21, Fixed(1), "select_print_mode"},           // ESC ! n
		{ESC, 0x24, Fixed(2), "set_absolute_position"},       // ESC $ nL nH
		{ESC, 0x25, Fixed(1), "select_user_defined_charset"}, // ESC % n
		{ESC, 0x26, Dependent(3, userCharacters), "define_user_defined_characters"},
		{ESC, 0x2A, Dependent(3, bitImage), "select_bit_image_mode"},
		{ESC, 0x2D, Fixed(1), "set_underline"},                 // ESC - n
		{ESC, 0x32, Fixed(0), "select_default_line_spacing"},   // ESC 2
		{ESC, 0x33, Fixed(1), "set_line_spacing"},              // ESC 3 n
		{ESC, 0x3D, Fixed(1), "select_peripheral_device"},      // ESC = n
		{ESC, 0x3F, Fixed(1), "cancel_user_defined_character"}, // ESC ? n
		{ESC, 0x40, Fixed(0), "initialize"},                    // ESC @
		{ESC, 0x44, TerminatorDelimited(0x00), "set_horizontal_tabs"},
		{ESC, 0x45, Fixed(1), "set_emphasis"},                      // ESC E n
		{ESC, 0x47, Fixed(1), "set_double_strike"},                 // ESC G n
		{ESC, 0x4A, Fixed(1), "feed_units"},                        // ESC J n
		{ESC, 0x4C, Fixed(0), "select_page_mode"},                  // ESC L
		{ESC, 0x4D, Fixed(1), "select_font"},                       // ESC M n
		{ESC, 0x52, Fixed(1), "select_international_charset"},      // ESC R n
		{ESC, 0x53, Fixed(0), "select_standard_mode"},              // ESC S
		{ESC, 0x54, Fixed(1), "select_page_direction"},             // ESC T n
		{ESC, 0x56, Fixed(1), "set_rotation"},                      // ESC V n
		{ESC, 0x57, Fixed(8), "set_page_print_area"},               // ESC W xL xH yL yH dxL dxH dyL dyH
		{ESC, 0x5C, Fixed(2), "set_relative_position"},             // ESC \ nL nH
		{ESC, 0x61, Fixed(1), "select_justification"},              // ESC a n
		{ESC, 0x63, Fixed(2), "select_paper_sensor"},               // ESC c 3/4/5 n
		{ESC, 0x64, Fixed(1), "feed_lines"},                        // ESC d n
		{ESC, 0x65, Fixed(1), "reverse_feed_lines"},                // ESC e n
		{ESC, 0x69, Fixed(0), "partial_cut_one_point"},             // ESC i
		{ESC, 0x6D, Fixed(0), "partial_cut_three_points"},          // ESC m
		{ESC, 0x70, Fixed(3), "generate_pulse"},                    // ESC p m t1 t2
		{ESC, 0x72, Fixed(1), "select_print_color"},                // ESC r n
		{ESC, 0x74, Fixed(1), "select_character_code_table"},       // ESC t n
		{ESC, 0x75, Fixed(1), "transmit_peripheral_status"},        // ESC u n
		{ESC, 0x76, Fixed(0), "transmit_paper_status"},             // ESC v
		{ESC, 0x7B, Fixed(1), "set_upside_down"},                   // ESC { n

		// GS family
		{GS, 0x21, Fixed(1), "select_character_size"},          // GS ! n
		{GS, 0x24, Fixed(2), "set_absolute_vertical_position"}, // GS $ nL nH
		{GS, 0x28, LengthPrefixed(1, 2), "extended_function"},  // GS ( fn pL pH ...
		{GS, 0x2A, Dependent(2, downloadedImage), "define_downloaded_bit_image"},
		{GS, 0x2F, Fixed(1), "print_downloaded_bit_image"},          // GS / m
		{GS, 0x38, LengthPrefixed(1, 4), "extended_graphics"},       // GS 8 fn p1 p2 p3 p4 ...
		{GS, 0x3A, Fixed(0), "toggle_macro_definition"},             // GS :
		{GS, 0x42, Fixed(1), "set_reverse_print"},                   // GS B n
		{GS, 0x48, Fixed(1), "select_hri_position"},                 // GS H n
		{GS, 0x49, Fixed(1), "transmit_printer_id"},                 // GS I n
		{GS, 0x4C, Fixed(2), "set_left_margin"},                     // GS L nL nH
		{GS, 0x50, Fixed(2), "set_motion_units"},                    // GS P x y
		{GS, 0x56, Dependent(1, cutMode), "cut_paper"},              // GS V m [n]
		{GS, 0x57, Fixed(2), "set_print_area_width"},                // GS W nL nH
		{GS, 0x5C, Fixed(2), "set_relative_vertical_position"},      // GS \ nL nH
		{GS, 0x5E, Fixed(3), "execute_macro"},                       // GS ^ r t m
		{GS, 0x61, Fixed(1), "set_automatic_status_back"},           // GS a n
		{GS, 0x62, Fixed(1), "set_smoothing"},                       // GS b n
		{GS, 0x66, Fixed(1), "select_hri_font"},                     // GS f n
		{GS, 0x67, Fixed(4), "maintenance_counter"},                 // GS g 0/2 m nL nH
		{GS, 0x68, Fixed(1), "set_barcode_height"},                  // GS h n
		{GS, 0x6B, Dependent(1, barcodeData), "print_barcode"},      // GS k m ...
		{GS, 0x72, Fixed(1), "transmit_status"},                     // GS r n
		{GS, 0x76, Dependent(6, rasterImage), "print_raster_image"}, // GS v 0 m xL xH yL yH ...
		{GS, 0x77, Fixed(1), "set_barcode_width"},                   // GS w n

		// FS family
		{FS, 0x21, Fixed(1), "select_kanji_print_mode"},    // FS ! n
		{FS, 0x26, Fixed(0), "select_kanji_mode"},          // FS &
		{FS, 0x28, LengthPrefixed(1, 2), "extended_kanji"}, // FS ( fn pL pH ...
		{FS, 0x2D, Fixed(1), "set_kanji_underline"},        // FS - n
		{FS, 0x2E, Fixed(0), "cancel_kanji_mode"},          // FS .
		{FS, 0x32, Fixed(74), "define_user_kanji"},         // FS 2 c1 c2 d1...d72
		{FS, 0x43, Fixed(1), "select_kanji_code_system"},   // FS C n
		{FS, 0x53, Fixed(2), "set_kanji_spacing"},          // FS S n1 n2
		{FS, 0x57, Fixed(1), "set_kanji_quadruple_size"},   // FS W n
		{FS, 0x70, Fixed(2), "print_nv_bit_image"},         // FS p n m
		{FS, 0x71, Dependent(1, nvImages), "define_nv_bit_image"},

		// DLE family
		{DLE, 0x04, Fixed(1), "realtime_status"},                     // DLE EOT n
		{DLE, 0x05, Fixed(1), "realtime_request"},                    // DLE ENQ n
		{DLE, 0x14, Dependent(1, realtimeCommand), "realtime_command"}, // DLE DC4 fn ...
	}
}

func uint16LE(lo, hi byte) int {
	return int(lo) | int(hi)<<8
}

// userCharacters handles ESC & y c1 c2, followed by one
// [x d1...d(y*x)] block per character code in c1..c2.
func userCharacters(header []byte) LengthRule {
	y, c1, c2 := int(header[0]), int(header[1]), int(header[2])
	if c2 < c1 {
		return Fixed(0)
	}
	return characterBlocks(y, c2-c1+1)
}

func characterBlocks(y, remaining int) LengthRule {
	if remaining == 0 {
		return Fixed(0)
	}
	return Dependent(1, func(header []byte) LengthRule {
		size := y * int(header[0])
		if remaining == 1 {
			return Fixed(size)
		}
		return Dependent(size, func([]byte) LengthRule {
			return characterBlocks(y, remaining-1)
		})
	})
}

// bitImage handles ESC * m nL nH; modes 32 and 33 use three bytes per column.
func bitImage(header []byte) LengthRule {
	columns := uint16LE(header[1], header[2])
	switch header[0] {
	case 32, 33:
		return Fixed(columns * 3)
	default:
		return Fixed(columns)
	}
}

// downloadedImage handles GS * x y with x*y*8 data bytes.
func downloadedImage(header []byte) LengthRule {
	return Fixed(int(header[0]) * int(header[1]) * 8)
}

// cutMode handles GS V: modes 65, 66, 97, 98, 103 and 104 carry a feed amount.
func cutMode(header []byte) LengthRule {
	switch header[0] {
	case 65, 66, 97, 98, 103, 104:
		return Fixed(1)
	default:
		return Fixed(0)
	}
}

// barcodeData handles GS k m. Function A (m 0-6) is NUL terminated,
// function B (m 65-79) carries a count byte.
func barcodeData(header []byte) LengthRule {
	if header[0] <= 6 {
		return TerminatorDelimited(0x00)
	}
	return LengthPrefixed(0, 1)
}

// rasterImage handles GS v 0 m xL xH yL yH.
func rasterImage(header []byte) LengthRule {
	width := uint16LE(header[2], header[3])
	height := uint16LE(header[4], header[5])
	return Fixed(width * height)
}

// nvImages handles FS q n followed by n [xL xH yL yH d...] images.
func nvImages(header []byte) LengthRule {
	return imageBlocks(int(header[0]))
}

func imageBlocks(remaining int) LengthRule {
	if remaining == 0 {
		return Fixed(0)
	}
	return Dependent(4, func(header []byte) LengthRule {
		size := uint16LE(header[0], header[1]) * uint16LE(header[2], header[3]) * 8
		if remaining == 1 {
			return Fixed(size)
		}
		return Dependent(size, func([]byte) LengthRule {
			return imageBlocks(remaining - 1)
		})
	})
}

// realtimeCommand handles DLE DC4 fn; fn 8 (buffer clear) carries seven bytes.
func realtimeCommand(header []byte) LengthRule {
	if header[0] == 8 {
		return Fixed(7)
	}
	return Fixed(2)
}

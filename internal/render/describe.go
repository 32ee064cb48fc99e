// internal/render/describe.go
package render

import (
	"fmt"
	"strings"

	"escpos-service/internal/escpos"
)

// Describe explains a known command and its parameters in plain words.
// Commands without a specific description fall back to their name.
func Describe(inst escpos.Instruction) string {
	p := inst.Parameters

	switch inst.Name {
	case "initialize":
		return "initialize printer"

	case "select_justification":
		if len(p) == 1 {
			return "justify " + justification(p[0])
		}

	case "select_print_mode":
		if len(p) == 1 {
			return "print mode " + printMode(p[0])
		}

	case "set_emphasis":
		if len(p) == 1 {
			return "emphasis " + onOff(p[0])
		}

	case "set_double_strike":
		if len(p) == 1 {
			return "double strike " + onOff(p[0])
		}

	case "set_underline":
		if len(p) == 1 {
			return "underline " + underline(p[0])
		}

	case "select_character_size":
		if len(p) == 1 {
			return fmt.Sprintf("character size width x%d height x%d", (p[0]>>4)+1, (p[0]&0x0F)+1)
		}

	case "feed_lines":
		if len(p) == 1 {
			return fmt.Sprintf("feed %d lines", p[0])
		}

	case "feed_units":
		if len(p) == 1 {
			return fmt.Sprintf("feed %d motion units", p[0])
		}

	case "cut_paper":
		if len(p) >= 1 {
			return cut(p)
		}

	case "generate_pulse":
		if len(p) == 3 {
			return fmt.Sprintf("drawer pulse pin %d on %dms off %dms", 2+int(p[0]&1)*3, int(p[1])*2, int(p[2])*2)
		}

	case "select_character_code_table":
		if len(p) == 1 {
			return fmt.Sprintf("character code table %d", p[0])
		}

	case "print_barcode":
		// m, then either the NUL-terminated data or a count byte and data
		if len(p) >= 2 {
			return fmt.Sprintf("barcode type %d, %d data bytes", p[0], len(p)-2)
		}

	case "print_raster_image":
		if len(p) >= 6 {
			return fmt.Sprintf("raster image %dx%d bytes", int(p[2])|int(p[3])<<8, int(p[4])|int(p[5])<<8)
		}

	case "realtime_status", "transmit_status":
		if len(p) == 1 {
			return fmt.Sprintf("status request %d", p[0])
		}
	}

	name := strings.ReplaceAll(inst.Name, "_", " ")
	if inst.ParameterLength > 0 {
		return fmt.Sprintf("%s (%d parameter bytes)", name, inst.ParameterLength)
	}
	return name
}

func justification(n byte) string {
	switch n {
	case 0, '0':
		return "left"
	case 1, '1':
		return "center"
	case 2, '2':
		return "right"
	default:
		return fmt.Sprintf("unknown(%d)", n)
	}
}

func onOff(n byte) string {
	if n&1 == 1 {
		return "on"
	}
	return "off"
}

func underline(n byte) string {
	switch n {
	case 0, '0':
		return "off"
	case 1, '1':
		return "1-dot"
	case 2, '2':
		return "2-dot"
	default:
		return fmt.Sprintf("unknown(%d)", n)
	}
}

func printMode(n byte) string {
	var flags []string
	if n&0x01 != 0 {
		flags = append(flags, "font-b")
	}
	if n&0x08 != 0 {
		flags = append(flags, "emphasized")
	}
	if n&0x10 != 0 {
		flags = append(flags, "double-height")
	}
	if n&0x20 != 0 {
		flags = append(flags, "double-width")
	}
	if n&0x80 != 0 {
		flags = append(flags, "underline")
	}
	if len(flags) == 0 {
		return "normal"
	}
	return strings.Join(flags, "+")
}

func cut(p []byte) string {
	partial := p[0] == 1 || p[0] == '1' || p[0] == 66 || p[0] == 98 || p[0] == 104
	kind := "full cut"
	if partial {
		kind = "partial cut"
	}
	if len(p) == 2 {
		return fmt.Sprintf("%s after feeding %d units", kind, p[1])
	}
	return kind
}

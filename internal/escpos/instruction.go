// internal/escpos/instruction.go
package escpos

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Kind classifies a decoded instruction
type Kind uint8

const (
	KindText Kind = iota
	KindKnownCommand
	KindUnknownCommand
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindKnownCommand:
		return "KNOWN_COMMAND"
	case KindUnknownCommand:
		return "UNKNOWN_COMMAND"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "TEXT":
		*k = KindText
	case "KNOWN_COMMAND":
		*k = KindKnownCommand
	case "UNKNOWN_COMMAND":
		*k = KindUnknownCommand
	default:
		return fmt.Errorf("unknown instruction kind: %q", text)
	}
	return nil
}

// Instruction is one classified, byte-accounted chunk of the input stream.
//
// Raw always holds exactly the bytes consumed for the instruction. Content is
// set for text, Name and Parameters for known commands. Prefix and Opcode are
// set for both command kinds; an unknown command cut short by the end of the
// stream may have no opcode, and is flagged Truncated.
//
// Slices are owned by the instruction and never alias decoder buffers.
type Instruction struct {
	Kind            Kind
	Raw             []byte
	Content         []byte
	Name            string
	Parameters      []byte
	ParameterLength int
	Prefix          byte
	Opcode          byte
	HasOpcode       bool
	Truncated       bool
}

// Text builds a text instruction
func Text(content []byte) Instruction {
	return Instruction{
		Kind:    KindText,
		Raw:     clone(content),
		Content: clone(content),
	}
}

// Known builds a known command instruction from its definition and parameters
func Known(def CommandDefinition, params []byte) Instruction {
	raw := make([]byte, 0, len(params)+2)
	raw = append(raw, def.Prefix, def.Opcode)
	raw = append(raw, params...)

	return Instruction{
		Kind:            KindKnownCommand,
		Raw:             raw,
		Name:            def.Name,
		Parameters:      clone(params),
		ParameterLength: len(params),
		Prefix:          def.Prefix,
		Opcode:          def.Opcode,
		HasOpcode:       true,
	}
}

// Unknown builds an unknown command instruction from the bytes seen so far
func Unknown(raw []byte, truncated bool) Instruction {
	inst := Instruction{
		Kind:      KindUnknownCommand,
		Raw:       clone(raw),
		Truncated: truncated,
	}
	if len(raw) > 0 {
		inst.Prefix = raw[0]
	}
	if len(raw) > 1 {
		inst.Opcode = raw[1]
		inst.HasOpcode = true
	}
	return inst
}

// Len returns the number of input bytes the instruction accounts for
func (i Instruction) Len() int {
	return len(i.Raw)
}

// Mnemonic renders the prefix and opcode, e.g. "GS V"
func (i Instruction) Mnemonic() string {
	switch i.Kind {
	case KindText:
		return ""
	case KindUnknownCommand:
		if !i.HasOpcode {
			return PrefixName(i.Prefix)
		}
	}
	return CommandDefinition{Prefix: i.Prefix, Opcode: i.Opcode}.Mnemonic()
}

// Equal reports structural equality
func (i Instruction) Equal(other Instruction) bool {
	return i.Kind == other.Kind &&
		bytes.Equal(i.Raw, other.Raw) &&
		bytes.Equal(i.Content, other.Content) &&
		i.Name == other.Name &&
		bytes.Equal(i.Parameters, other.Parameters) &&
		i.ParameterLength == other.ParameterLength &&
		i.Prefix == other.Prefix &&
		i.Opcode == other.Opcode &&
		i.HasOpcode == other.HasOpcode &&
		i.Truncated == other.Truncated
}

func (i Instruction) String() string {
	switch i.Kind {
	case KindText:
		return fmt.Sprintf("Text(%q)", i.Content)
	case KindKnownCommand:
		return fmt.Sprintf("KnownCommand(%s, name=%s, params=% X)", i.Mnemonic(), i.Name, i.Parameters)
	default:
		if i.Truncated {
			return fmt.Sprintf("UnknownCommand(% X, truncated)", i.Raw)
		}
		return fmt.Sprintf("UnknownCommand(% X)", i.Raw)
	}
}

// instructionJSON is the wire form of an Instruction
type instructionJSON struct {
	Kind            Kind   `json:"kind"`
	Raw             string `json:"raw"`
	Length          int    `json:"length"`
	Content         string `json:"content,omitempty"`
	Mnemonic        string `json:"mnemonic,omitempty"`
	Name            string `json:"name,omitempty"`
	Parameters      string `json:"parameters,omitempty"`
	ParameterLength int    `json:"parameter_length,omitempty"`
	Truncated       bool   `json:"truncated,omitempty"`
}

// MarshalJSON renders raw bytes and parameters as hex strings
func (i Instruction) MarshalJSON() ([]byte, error) {
	out := instructionJSON{
		Kind:     i.Kind,
		Raw:      hex.EncodeToString(i.Raw),
		Length:   len(i.Raw),
		Mnemonic: i.Mnemonic(),
	}

	switch i.Kind {
	case KindText:
		out.Content = string(i.Content)
	case KindKnownCommand:
		out.Name = i.Name
		out.Parameters = hex.EncodeToString(i.Parameters)
		out.ParameterLength = i.ParameterLength
	case KindUnknownCommand:
		out.Truncated = i.Truncated
	}

	return json.Marshal(out)
}

// Concat joins the raw bytes of instructions in order
func Concat(instructions []Instruction) []byte {
	size := 0
	for _, inst := range instructions {
		size += len(inst.Raw)
	}

	out := make([]byte, 0, size)
	for _, inst := range instructions {
		out = append(out, inst.Raw...)
	}
	return out
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

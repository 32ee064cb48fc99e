// internal/escpos/errors.go
package escpos

import (
	"errors"
	"fmt"
)

var (
	// ErrRunawayTerminator is reported when a terminator-delimited command
	// exceeds the maximum command length without its terminator.
	ErrRunawayTerminator = errors.New("terminator not found within maximum command length")

	// ErrOversizedCommand is reported when a command announces more parameter
	// bytes than the maximum command length allows.
	ErrOversizedCommand = errors.New("command exceeds maximum command length")
)

// FatalError describes the command that left a decoder in a failed state.
// The decoder must be Reset or replaced before it accepts more input.
type FatalError struct {
	Err       error
	Name      string
	Prefix    byte
	Opcode    byte
	Collected int
	Offset    int64
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s (%s) at offset %d after %d bytes: %v",
		CommandDefinition{Prefix: e.Prefix, Opcode: e.Opcode}.Mnemonic(),
		e.Name, e.Offset, e.Collected, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err left a decoder in a failed state
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

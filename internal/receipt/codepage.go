// internal/receipt/codepage.go
package receipt

import (
	"golang.org/x/text/encoding/charmap"
)

// CodePage is a character table selectable with ESC t
type CodePage struct {
	Number  byte
	Name    string
	charmap *charmap.Charmap
}

// Decode converts printer bytes into UTF-8
func (c CodePage) Decode(b []byte) (string, error) {
	out, err := c.charmap.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

var codePages = map[byte]CodePage{
	0:  {0, "PC437", charmap.CodePage437},
	2:  {2, "PC850", charmap.CodePage850},
	3:  {3, "PC860", charmap.CodePage860},
	4:  {4, "PC863", charmap.CodePage863},
	5:  {5, "PC865", charmap.CodePage865},
	16: {16, "WPC1252", charmap.Windows1252},
	17: {17, "PC866", charmap.CodePage866},
	18: {18, "PC852", charmap.CodePage852},
	19: {19, "PC858", charmap.CodePage858},
}

// DefaultCodePage is active after power-on and ESC @
var DefaultCodePage = codePages[0]

// LookupCodePage returns the table selected by ESC t n. Unsupported tables
// fall back to PC437 and report false.
func LookupCodePage(n byte) (CodePage, bool) {
	cp, ok := codePages[n]
	if !ok {
		return DefaultCodePage, false
	}
	return cp, true
}

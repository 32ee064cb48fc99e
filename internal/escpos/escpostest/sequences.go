// internal/escpos/escpostest/sequences.go

// Package escpostest provides well-formed ESC/POS byte sequences for tests.
package escpostest

// Sequences holds complete command byte sequences commonly sent by POS
// software
var Sequences = struct {
	// Basic commands
	Initialize    []byte
	StatusRequest []byte
	PrinterID     []byte

	// Text formatting
	BoldOn         []byte
	BoldOff        []byte
	UnderlineOn    []byte
	UnderlineOff   []byte
	PrintModeReset []byte
	DoubleSize     []byte
	NormalSize     []byte

	// Alignment
	AlignLeft   []byte
	AlignCenter []byte
	AlignRight  []byte

	// Character tables
	CodePagePC437 []byte
	CodePagePC850 []byte
	CodePagePC858 []byte

	// Paper handling
	FeedThreeLines []byte
	PrintWidth80mm []byte
	CutFull        []byte
	CutPartialFeed []byte

	// Cash drawer
	DrawerKickPin2 []byte

	// Barcodes and graphics
	BarcodeHeight  []byte
	BarcodeCode39  []byte
	QRCodeModel    []byte
	RasterSinglePx []byte
}{
	Initialize:    []byte{0x1B, 0x40},       // ESC @
	StatusRequest: []byte{0x10, 0x04, 0x01}, // DLE EOT 1
	PrinterID:     []byte{0x1D, 0x49, 0x01}, // GS I 1

	BoldOn:         []byte{0x1B, 0x45, 0x01}, // ESC E 1
	BoldOff:        []byte{0x1B, 0x45, 0x00}, // ESC E 0
	UnderlineOn:    []byte{0x1B, 0x2D, 0x01}, // ESC - 1
	UnderlineOff:   []byte{0x1B, 0x2D, 0x00}, // ESC - 0
	PrintModeReset: []byte{0x1B, 0x21, 0x00}, // ESC ! 0
	DoubleSize:     []byte{0x1D, 0x21, 0x11}, // GS ! 17
	NormalSize:     []byte{0x1D, 0x21, 0x00}, // GS ! 0

	AlignLeft:   []byte{0x1B, 0x61, 0x00}, // ESC a 0
	AlignCenter: []byte{0x1B, 0x61, 0x01}, // ESC a 1
	AlignRight:  []byte{0x1B, 0x61, 0x02}, // ESC a 2

	CodePagePC437: []byte{0x1B, 0x74, 0x00}, // ESC t 0
	CodePagePC850: []byte{0x1B, 0x74, 0x02}, // ESC t 2
	CodePagePC858: []byte{0x1B, 0x74, 0x13}, // ESC t 19

	FeedThreeLines: []byte{0x1B, 0x64, 0x03},       // ESC d 3
	PrintWidth80mm: []byte{0x1D, 0x57, 0x00, 0x02}, // GS W 512
	CutFull:        []byte{0x1D, 0x56, 0x00},       // GS V 0
	CutPartialFeed: []byte{0x1D, 0x56, 0x42, 0x10}, // GS V 66 16

	DrawerKickPin2: []byte{0x1B, 0x70, 0x00, 0x19, 0x19}, // ESC p 0 25 25

	BarcodeHeight:  []byte{0x1D, 0x68, 0x50},                                     // GS h 80
	BarcodeCode39:  []byte{0x1D, 0x6B, 0x04, 'A', 'B', 'C', '1', '2', '3', 0x00}, // GS k 4 ... NUL
	QRCodeModel:    []byte{0x1D, 0x28, 0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00}, // GS ( k pL pH cn fn n1 n2
	RasterSinglePx: []byte{0x1D, 0x76, 0x30, 0x00, 0x01, 0x00, 0x01, 0x00, 0x80}, // GS v 0 m 1x1 image
}

package escpos

import (
	"bytes"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"escpos-service/internal/escpos/escpostest"
)

func join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestDecodeMixedStream(t *testing.T) {
	input := join([]byte("HELLO"), []byte{ESC, '@'}, []byte("WORLD"))

	got, err := Decode(input)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, KindText, got[0].Kind)
	assert.Equal(t, []byte("HELLO"), got[0].Content)

	assert.Equal(t, KindKnownCommand, got[1].Kind)
	assert.Equal(t, "initialize", got[1].Name)
	assert.Empty(t, got[1].Parameters)
	assert.Equal(t, 0, got[1].ParameterLength)
	assert.Equal(t, []byte{ESC, '@'}, got[1].Raw)

	assert.Equal(t, KindText, got[2].Kind)
	assert.Equal(t, []byte("WORLD"), got[2].Content)
}

func TestDecodePlainText(t *testing.T) {
	input := []byte("Total:\t12.50\r\nThank you!\n")

	got, err := Decode(input)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(Text(input)))
}

func TestDecodeEmptyInput(t *testing.T) {
	got, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeKnownCommands(t *testing.T) {
	tests := []struct {
		name       string
		input      []byte
		command    string
		parameters []byte
	}{
		{"bold on", escpostest.Sequences.BoldOn, "set_emphasis", []byte{0x01}},
		{"align center", escpostest.Sequences.AlignCenter, "select_justification", []byte{0x01}},
		{"drawer kick", escpostest.Sequences.DrawerKickPin2, "generate_pulse", []byte{0x00, 0x19, 0x19}},
		{"print width", escpostest.Sequences.PrintWidth80mm, "set_print_area_width", []byte{0x00, 0x02}},
		{"full cut", escpostest.Sequences.CutFull, "cut_paper", []byte{0x00}},
		{"partial cut with feed", escpostest.Sequences.CutPartialFeed, "cut_paper", []byte{0x42, 0x10}},
		{"status request", escpostest.Sequences.StatusRequest, "realtime_status", []byte{0x01}},
		{"code39 barcode", escpostest.Sequences.BarcodeCode39, "print_barcode", []byte{0x04, 'A', 'B', 'C', '1', '2', '3', 0x00}},
		{"qr model", escpostest.Sequences.QRCodeModel, "extended_function", []byte{0x6B, 0x04, 0x00, 0x31, 0x41, 0x32, 0x00}},
		{"raster image", escpostest.Sequences.RasterSinglePx, "print_raster_image", []byte{0x30, 0x00, 0x01, 0x00, 0x01, 0x00, 0x80}},
		{
			"code128 counted barcode",
			[]byte{GS, 'k', 73, 3, 'x', 'y', 'z'},
			"print_barcode",
			[]byte{73, 3, 'x', 'y', 'z'},
		},
		{
			"double density bit image",
			[]byte{ESC, '*', 33, 2, 0, 1, 2, 3, 4, 5, 6},
			"select_bit_image_mode",
			[]byte{33, 2, 0, 1, 2, 3, 4, 5, 6},
		},
		{
			"user defined characters",
			[]byte{ESC, '&', 3, 'A', 'B', 1, 0xA, 0xB, 0xC, 2, 1, 2, 3, 4, 5, 6},
			"define_user_defined_characters",
			[]byte{3, 'A', 'B', 1, 0xA, 0xB, 0xC, 2, 1, 2, 3, 4, 5, 6},
		},
		{
			"user defined character with zero width",
			[]byte{ESC, '&', 3, 'A', 'A', 0},
			"define_user_defined_characters",
			[]byte{3, 'A', 'A', 0},
		},
		{
			"nv images",
			[]byte{FS, 'q', 2, 1, 0, 1, 0, 1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0},
			"define_nv_bit_image",
			[]byte{2, 1, 0, 1, 0, 1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0},
		},
		{
			"realtime buffer clear",
			[]byte{DLE, 0x14, 8, 1, 3, 20, 1, 6, 2, 8},
			"realtime_command",
			[]byte{8, 1, 3, 20, 1, 6, 2, 8},
		},
		{
			"horizontal tabs",
			[]byte{ESC, 'D', 8, 16, 24, 0},
			"set_horizontal_tabs",
			[]byte{8, 16, 24, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.input)
			require.NoError(t, err)
			require.Len(t, got, 1, "got %v", got)

			inst := got[0]
			assert.Equal(t, KindKnownCommand, inst.Kind)
			assert.Equal(t, tt.command, inst.Name)
			assert.Equal(t, tt.parameters, inst.Parameters)
			assert.Equal(t, len(tt.parameters), inst.ParameterLength)
			assert.Equal(t, tt.input, inst.Raw)
		})
	}
}

func TestDecodeUnknownCommandRecovery(t *testing.T) {
	input := []byte("Banana\x1b\x42Hello\x1b\x23 Wurl\x01\x02d")

	got, err := Decode(input)
	require.NoError(t, err)

	want := []Instruction{
		Text([]byte("Banana")),
		Unknown([]byte{ESC, 0x42}, false),
		Text([]byte("Hello")),
		Unknown([]byte{ESC, 0x23}, false),
		Text([]byte(" Wurl\x01\x02d")),
	}
	assert.Equal(t, want, got)

	assert.Equal(t, 2, got[1].Len())
	assert.True(t, got[1].HasOpcode)
	assert.Equal(t, byte(0x42), got[1].Opcode)
	assert.False(t, got[1].Truncated)
}

func TestUnknownOpcodeIsNotSpeculativelyConsumed(t *testing.T) {
	// GS 0xFF is unknown; the following ESC must still open a command.
	input := []byte{GS, 0xFF, ESC, 'E', 1, 'x'}

	got, err := Decode(input)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, KindUnknownCommand, got[0].Kind)
	assert.Equal(t, "set_emphasis", got[1].Name)
	assert.Equal(t, []byte("x"), got[2].Content)
}

func TestFinishTruncatedCommand(t *testing.T) {
	table := MustNewTable(CommandDefinition{Prefix: ESC, Opcode: 'X', Rule: Fixed(5), Name: "five"})
	d := NewDecoder(WithTable(table))

	got, err := d.Feed([]byte{ESC, 'X', 1, 2})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 4, d.Pending())

	tail, err := d.Finish()
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, KindUnknownCommand, tail[0].Kind)
	assert.Equal(t, []byte{ESC, 'X', 1, 2}, tail[0].Raw)
	assert.True(t, tail[0].Truncated)
	assert.Equal(t, 0, d.Pending())
}

func TestFinishAfterLonePrefix(t *testing.T) {
	d := NewDecoder()

	got, err := d.Feed([]byte{'a', GS})
	require.NoError(t, err)
	require.Len(t, got, 1)

	tail, err := d.Finish()
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, []byte{GS}, tail[0].Raw)
	assert.False(t, tail[0].HasOpcode)
	assert.True(t, tail[0].Truncated)
	assert.Equal(t, "GS", tail[0].Mnemonic())
}

func TestFinishReturnsToIdle(t *testing.T) {
	d := NewDecoder()

	_, err := d.Feed([]byte{ESC, 'd'})
	require.NoError(t, err)
	_, err = d.Finish()
	require.NoError(t, err)

	got, err := d.Feed([]byte{ESC, 'd', 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "feed_lines", got[0].Name)
}

func TestRunawayTerminator(t *testing.T) {
	d := NewDecoder(WithMaxCommandLength(4))

	got, err := d.Feed([]byte{'a', ESC, 'D', 1, 2, 3, 4, 5, 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunawayTerminator))
	assert.True(t, IsFatal(err))
	require.Len(t, got, 1)
	assert.Equal(t, []byte("a"), got[0].Content)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "set_horizontal_tabs", fatal.Name)
	assert.Equal(t, int64(1), fatal.Offset)
	assert.Equal(t, 6, fatal.Collected)

	// The decoder stays failed until reset.
	_, err = d.Feed([]byte("more"))
	assert.ErrorIs(t, err, ErrRunawayTerminator)
	_, err = d.Finish()
	assert.ErrorIs(t, err, ErrRunawayTerminator)

	d.Reset()
	got, err = d.Feed([]byte{ESC, 'D', 1, 0})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "set_horizontal_tabs", got[0].Name)
}

func TestOversizedLengthPrefixedCommand(t *testing.T) {
	input := []byte{GS, '8', 'L', 0xFF, 0xFF, 0xFF, 0x7F, 0x30}

	got, err := Decode(input)
	assert.Empty(t, got)
	assert.ErrorIs(t, err, ErrOversizedCommand)
}

func TestChunkedFeedMatchesSingleFeed(t *testing.T) {
	input := join(
		escpostest.Sequences.Initialize,
		escpostest.Sequences.AlignCenter,
		[]byte("RECEIPT\n"),
		escpostest.Sequences.QRCodeModel,
		escpostest.Sequences.BarcodeCode39,
		[]byte("TOTAL 9.99\n"),
		escpostest.Sequences.CutPartialFeed,
	)

	want, err := Decode(input)
	require.NoError(t, err)

	d := NewDecoder()
	var got []Instruction
	for _, b := range input {
		out, err := d.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, out...)
	}
	tail, err := d.Finish()
	require.NoError(t, err)
	got = append(got, tail...)

	assert.Equal(t, want, got)
	assert.Equal(t, input, Concat(got))
}

func TestInstructionsIterator(t *testing.T) {
	input := join([]byte("AB"), escpostest.Sequences.BoldOn, []byte("CD"), []byte{GS})

	var got []Instruction
	for inst, err := range Instructions(iotest.OneByteReader(bytes.NewReader(input))) {
		require.NoError(t, err)
		got = append(got, inst)
	}

	require.Len(t, got, 4)
	assert.Equal(t, input, Concat(got))
	assert.True(t, got[3].Truncated)
}

func TestInstructionsIteratorReadError(t *testing.T) {
	r := iotest.TimeoutReader(bytes.NewReader([]byte("abc")))

	var errs []error
	for _, err := range Instructions(r) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], iotest.ErrTimeout)
}

func TestDecoderDebugLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDecoder(WithLogger(zap.New(core)))

	_, err := d.Feed([]byte{ESC, 0x01})
	require.NoError(t, err)

	entries := logs.FilterMessage("Unrecognized command").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "1B 01", entries[0].ContextMap()["command"])
}

func TestDecoderOffset(t *testing.T) {
	d := NewDecoder()
	_, err := d.Feed([]byte("abc"))
	require.NoError(t, err)
	_, err = d.Feed(escpostest.Sequences.Initialize)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Offset())

	d.Reset()
	assert.Equal(t, int64(0), d.Offset())
}

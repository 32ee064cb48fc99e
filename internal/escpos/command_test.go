package escpos

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escpos-service/internal/escpos/escpostest"
)

func TestDefaultTablePrefixes(t *testing.T) {
	table := DefaultTable()

	for _, b := range []byte{ESC, GS, FS, DLE} {
		assert.True(t, table.IsPrefix(b), PrefixName(b))
	}
	for _, b := range []byte{0x00, 0x0A, 'A', 0x7F, 0xFF} {
		assert.False(t, table.IsPrefix(b), "0x%02X", b)
	}
}

func TestDefaultTableLookup(t *testing.T) {
	table := DefaultTable()

	def, ok := table.Lookup(ESC, '@')
	require.True(t, ok)
	assert.Equal(t, "initialize", def.Name)
	assert.Equal(t, RuleFixed, def.Rule.Kind())
	assert.Equal(t, 0, def.Rule.Count())
	assert.Equal(t, "ESC @", def.Mnemonic())

	def, ok = table.Lookup(GS, '(')
	require.True(t, ok)
	assert.Equal(t, RuleLengthPrefixed, def.Rule.Kind())
	assert.Equal(t, 1, def.Rule.Offset())
	assert.Equal(t, 2, def.Rule.Width())

	def, ok = table.Lookup(ESC, 'D')
	require.True(t, ok)
	assert.Equal(t, RuleTerminatorDelimited, def.Rule.Kind())
	assert.Equal(t, byte(0x00), def.Rule.Terminator())

	_, ok = table.Lookup(ESC, 0x01)
	assert.False(t, ok)
}

func TestDefaultTableIsShared(t *testing.T) {
	assert.Same(t, DefaultTable(), DefaultTable())
}

func TestDefinitionsAreOrdered(t *testing.T) {
	defs := DefaultTable().Definitions()
	require.Len(t, defs, DefaultTable().Len())

	for i := 1; i < len(defs); i++ {
		prev, cur := defs[i-1], defs[i]
		less := prev.Prefix < cur.Prefix || (prev.Prefix == cur.Prefix && prev.Opcode < cur.Opcode)
		assert.True(t, less, "%s before %s", prev.Mnemonic(), cur.Mnemonic())
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name string
		defs []CommandDefinition
		want string
	}{
		{
			name: "missing name",
			defs: []CommandDefinition{{Prefix: ESC, Opcode: 'x', Rule: Fixed(1)}},
			want: "has no name",
		},
		{
			name: "dependent without resolver",
			defs: []CommandDefinition{{Prefix: ESC, Opcode: 'x', Rule: Dependent(1, nil), Name: "x"}},
			want: "without resolver",
		},
		{
			name: "length field too wide",
			defs: []CommandDefinition{{Prefix: GS, Opcode: 'x', Rule: LengthPrefixed(0, 5), Name: "x"}},
			want: "width must be 1-4",
		},
		{
			name: "duplicate",
			defs: []CommandDefinition{
				{Prefix: ESC, Opcode: 'x', Rule: Fixed(1), Name: "first"},
				{Prefix: ESC, Opcode: 'x', Rule: Fixed(2), Name: "second"},
			},
			want: "duplicate command ESC x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.defs...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCustomTablePrefixes(t *testing.T) {
	table := MustNewTable(CommandDefinition{Prefix: 0xFE, Opcode: 0x01, Rule: Fixed(1), Name: "custom"})

	assert.True(t, table.IsPrefix(0xFE))
	assert.False(t, table.IsPrefix(ESC))

	got, err := Decode([]byte{ESC, '@', 0xFE, 0x01, 0x07}, WithTable(table))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, KindText, got[0].Kind)
	assert.Equal(t, "custom", got[1].Name)
	assert.Equal(t, "0xFE 0x01", got[1].Mnemonic())
}

func TestMustNewTablePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustNewTable(CommandDefinition{Prefix: ESC, Opcode: 'x'})
	})
}

func TestRuleString(t *testing.T) {
	assert.Equal(t, "fixed(3)", Fixed(3).String())
	assert.Equal(t, "length_prefixed(1,2)", LengthPrefixed(1, 2).String())
	assert.Equal(t, "terminator_delimited(0x00)", TerminatorDelimited(0).String())
	assert.Equal(t, "dependent(6)", Dependent(6, rasterImage).String())
	assert.Equal(t, Fixed(0), LengthRule{})
}

func TestInstructionJSON(t *testing.T) {
	got, err := Decode(join([]byte("Hi"), escpostest.Sequences.AlignCenter, []byte{ESC, 0x01}))
	require.NoError(t, err)
	require.Len(t, got, 3)

	data, err := json.Marshal(got)
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 3)

	assert.Equal(t, "TEXT", decoded[0]["kind"])
	assert.Equal(t, "Hi", decoded[0]["content"])
	assert.Equal(t, "4869", decoded[0]["raw"])

	assert.Equal(t, "KNOWN_COMMAND", decoded[1]["kind"])
	assert.Equal(t, "select_justification", decoded[1]["name"])
	assert.Equal(t, "ESC a", decoded[1]["mnemonic"])
	assert.Equal(t, "01", decoded[1]["parameters"])
	assert.EqualValues(t, 1, decoded[1]["parameter_length"])

	assert.Equal(t, "UNKNOWN_COMMAND", decoded[2]["kind"])
	assert.Equal(t, "1b01", decoded[2]["raw"])
	assert.EqualValues(t, 2, decoded[2]["length"])
}

func TestKindText(t *testing.T) {
	for _, k := range []Kind{KindText, KindKnownCommand, KindUnknownCommand} {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var back Kind
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, k, back)
	}

	var k Kind
	assert.Error(t, k.UnmarshalText([]byte("BOGUS")))
}

package workbooks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCell(t *testing.T) {
	numberProbe := func() (Type, bool) { return TypeNumber, true }
	stringProbe := func() (Type, bool) { return TypeString, true }
	boolProbe := func() (Type, bool) { return TypeBool, true }

	cases := []struct {
		name  string
		text  string
		probe cellProbe
		want  Type
	}{
		{"empty", "", nil, TypeEmpty},
		{"plain text", "hello", nil, TypeString},
		{"number without probe", "42.5", nil, TypeNumber},
		{"number confirmed", "1e3", numberProbe, TypeNumber},
		{"numeric text", "007", stringProbe, TypeString},
		{"bool confirmed", "TRUE", boolProbe, TypeBool},
		{"bool text without probe", "FALSE", nil, TypeString},
		{"infinity is text", "Inf", nil, TypeString},
		{"hex is text", "0x1F", nil, TypeString},
		{"underscore is text", "1_000", nil, TypeString},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := decodeCell(tc.text, tc.probe)
			require.Equal(t, tc.want, v.Type)
			require.Equal(t, tc.text, v.Text())
		})
	}
}

func TestValueJSON(t *testing.T) {
	row := []Value{{}, StringValue("a"), NumberValue(1.5, ""), BoolValue(true)}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	require.JSONEq(t, `[null,"a",1.5,true]`, string(b))
}

func TestParseBounds(t *testing.T) {
	cases := map[string]Bounds{
		"A1:D20": {Col1: 1, Row1: 1, Col2: 4, Row2: 20},
		"b2":     {Col1: 2, Row1: 2, Col2: 2, Row2: 2},
		"A:C":    {Col1: 1, Row1: 1, Col2: 3},
		"2:10":   {Col1: 1, Row1: 2, Row2: 10},
		"$C$3":   {Col1: 3, Row1: 3, Col2: 3, Row2: 3},
	}
	for in, want := range cases {
		got, err := parseBounds(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "A", "7", "B2:A1", "A1:B", "1:A", "A0", "A1:A99999999"} {
		_, err := parseBounds(bad)
		require.Error(t, err, bad)
	}
}

func TestA1(t *testing.T) {
	require.Equal(t, "B2", A1(2, 2, 2, 2))
	require.Equal(t, "A1:AA10", A1(1, 1, 27, 10))
	require.Empty(t, A1(0, 1, 1, 1))
}

package workbooks

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// Type enumerates the closed set of decoded cell types.
type Type uint8

const (
	TypeEmpty Type = iota
	TypeString
	TypeNumber
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "bool"
	default:
		return "empty"
	}
}

// Value is a decoded cell. Display holds the text the workbook shows for the
// cell; it is the single textual form used for output and search.
type Value struct {
	Type    Type
	Display string
	Number  float64
	Bool    bool
}

// StringValue, NumberValue and BoolValue build typed values.
func StringValue(s string) Value { return Value{Type: TypeString, Display: s} }

func NumberValue(f float64, display string) Value {
	if display == "" {
		display = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return Value{Type: TypeNumber, Number: f, Display: display}
}

func BoolValue(b bool) Value {
	if b {
		return Value{Type: TypeBool, Bool: true, Display: "TRUE"}
	}
	return Value{Type: TypeBool, Display: "FALSE"}
}

// IsEmpty reports whether the cell holds no value.
func (v Value) IsEmpty() bool { return v.Type == TypeEmpty }

// Text returns the textual representation shared by reads and searches.
func (v Value) Text() string {
	if v.Type == TypeEmpty {
		return ""
	}
	return v.Display
}

// MarshalJSON renders empty as null and typed values as native JSON scalars.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case TypeNumber:
		return json.Marshal(v.Number)
	case TypeBool:
		return json.Marshal(v.Bool)
	case TypeString:
		return json.Marshal(v.Display)
	default:
		return []byte("null"), nil
	}
}

// JSONSchema describes the scalar encoding produced by MarshalJSON for tool
// output schemas.
func (Value) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "cell value; null when empty",
		AnyOf: []*jsonschema.Schema{
			{Type: "string"}, {Type: "number"}, {Type: "boolean"}, {Type: "null"},
		},
	}
}

// cellProbe reports backend type information for a cell when the displayed
// text alone is ambiguous. Backends without type information pass nil.
type cellProbe func() (Type, bool)

// decodeCell classifies displayed text. A number is produced only when the
// text parses as one and the probe (if any) does not contradict it; booleans
// require the probe to confirm the cell is boolean.
func decodeCell(text string, probe cellProbe) Value {
	if text == "" {
		return Value{}
	}
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if upper == "TRUE" || upper == "FALSE" {
		if probe != nil {
			if t, ok := probe(); ok && t == TypeBool {
				return BoolValue(upper == "TRUE")
			}
		}
		return StringValue(text)
	}
	if f, ok := parseNumber(trimmed); ok {
		if probe == nil {
			return NumberValue(f, text)
		}
		if t, ok := probe(); ok && t == TypeNumber {
			return NumberValue(f, text)
		}
	}
	return StringValue(text)
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	// reject forms strconv accepts but spreadsheets do not display as numbers
	switch strings.ToLower(s) {
	case "inf", "+inf", "-inf", "infinity", "+infinity", "-infinity", "nan":
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") || strings.Contains(s, "_") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

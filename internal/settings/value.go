package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Value is an exported field value: a bool for checkbox/radio inputs and a
// string for everything else.
type Value struct {
	isBool bool
	b      bool
	s      string
}

// BoolValue wraps a checked state.
func BoolValue(b bool) Value { return Value{isBool: true, b: b} }

// StringValue wraps a textual value.
func StringValue(s string) Value { return Value{s: s} }

// IsBool reports whether the value carries a checked state.
func (v Value) IsBool() bool { return v.isBool }

// Bool returns the checked state. Strings "true" and "on" count as checked.
func (v Value) Bool() bool {
	if v.isBool {
		return v.b
	}
	s := strings.ToLower(strings.TrimSpace(v.s))
	return s == "true" || s == "on"
}

// String returns the textual form of the value.
func (v Value) String() string {
	if v.isBool {
		return strconv.FormatBool(v.b)
	}
	return v.s
}

// Float parses the value as a number.
func (v Value) Float() (float64, bool) {
	if v.isBool {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Any returns the value as a plain Go value for JSON transport.
func (v Value) Any() any {
	if v.isBool {
		return v.b
	}
	return v.s
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isBool {
		return []byte(strconv.FormatBool(v.b)), nil
	}
	return marshalNoEscape(v.s)
}

// UnmarshalJSON accepts booleans and strings. Numbers keep their literal text
// and null becomes the empty string.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*v = BoolValue(true)
	case bytes.Equal(data, []byte("false")):
		*v = BoolValue(false)
	case bytes.Equal(data, []byte("null")):
		*v = StringValue("")
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		*v = StringValue(string(data))
	default:
		return fmt.Errorf("settings: unsupported value %s", data)
	}
	return nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

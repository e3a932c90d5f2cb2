package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ParamKind identifies which variant a ParamValue holds.
type ParamKind uint8

const (
	KindInvalid ParamKind = iota
	KindNumber
	KindString
)

func (k ParamKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// ParamValue is a strategy parameter: either a number or a string. The zero
// value is invalid and refuses to marshal.
type ParamValue struct {
	kind ParamKind
	num  float64
	str  string
}

// NumberParam returns a numeric parameter value.
func NumberParam(f float64) ParamValue { return ParamValue{kind: KindNumber, num: f} }

// StringParam returns a string parameter value.
func StringParam(s string) ParamValue { return ParamValue{kind: KindString, str: s} }

// ParseParam turns command-line text into a parameter value. Anything that
// parses as a finite float becomes a number.
func ParseParam(s string) ParamValue {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return NumberParam(f)
	}
	return StringParam(s)
}

func (v ParamValue) Kind() ParamKind { return v.kind }
func (v ParamValue) IsNumber() bool  { return v.kind == KindNumber }
func (v ParamValue) IsString() bool  { return v.kind == KindString }

// Float returns the numeric value and whether v holds a number.
func (v ParamValue) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Int returns the numeric value truncated to an int, and whether v holds a
// number with no fractional part.
func (v ParamValue) Int() (int, bool) {
	if v.kind != KindNumber || v.num != math.Trunc(v.num) {
		return 0, false
	}
	return int(v.num), true
}

// Text returns the string value and whether v holds a string.
func (v ParamValue) Text() (string, bool) {
	return v.str, v.kind == KindString
}

// String renders the value for display.
func (v ParamValue) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindString:
		return v.str
	default:
		return "<invalid>"
	}
}

// MarshalJSON implements json.Marshaler.
func (v ParamValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		if math.IsInf(v.num, 0) || math.IsNaN(v.num) {
			return nil, fmt.Errorf("parameter value %v is not representable in JSON", v.num)
		}
		return json.Marshal(v.num)
	case KindString:
		return json.Marshal(v.str)
	default:
		return nil, fmt.Errorf("marshaling invalid parameter value")
	}
}

// UnmarshalJSON implements json.Unmarshaler. Only JSON numbers and strings
// are accepted.
func (v *ParamValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty parameter value")
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringParam(s)
		return nil
	case c == '-' || (c >= '0' && c <= '9'):
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = NumberParam(f)
		return nil
	default:
		return fmt.Errorf("parameter value must be a number or a string, got %s", data)
	}
}

// Params is a strategy's parameter map.
type Params map[string]ParamValue

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy. A nil map clones to an empty one.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p with every entry of overrides applied on top.
func (p Params) Merge(overrides Params) Params {
	out := p.Clone()
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// RequireNumber returns the named parameter as a float, checking that it is
// present, numeric and within [min, max].
func (p Params) RequireNumber(name string, min, max float64) (float64, error) {
	v, ok := p[name]
	if !ok {
		return 0, &ValidationError{Field: name, Reason: "missing"}
	}
	f, ok := v.Float()
	if !ok {
		return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("expected number, got %s", v.Kind())}
	}
	if f < min || f > max {
		return 0, &ValidationError{Field: name, Reason: fmt.Sprintf("%v outside [%v, %v]", f, min, max)}
	}
	return f, nil
}

// RequireString returns the named parameter as a non-empty string.
func (p Params) RequireString(name string) (string, error) {
	v, ok := p[name]
	if !ok {
		return "", &ValidationError{Field: name, Reason: "missing"}
	}
	s, ok := v.Text()
	if !ok {
		return "", &ValidationError{Field: name, Reason: fmt.Sprintf("expected string, got %s", v.Kind())}
	}
	if s == "" {
		return "", &ValidationError{Field: name, Reason: "empty"}
	}
	return s, nil
}

// ValidationError reports caller input rejected before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

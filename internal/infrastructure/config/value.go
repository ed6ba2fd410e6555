package config

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a resolved configuration value.
//
// Values that came from the environment are always strings; the typed
// accessors parse them, so "!ENV" works for numeric and boolean keys too.
type Value struct {
	path Path
	raw  any
}

// Raw returns the underlying value: string, bool, json.Number, int, float64,
// nil, or map[string]any for a subsection.
func (v Value) Raw() any {
	return v.raw
}

// String returns the value as a string. Numbers and booleans are formatted.
func (v Value) String() (string, error) {
	switch t := v.raw.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", v.wrongType("string")
	}
}

// Int64 returns the value as an integer. Strings are parsed in base 10.
func (v Value) Int64() (int64, error) {
	switch t := v.raw.(type) {
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, v.wrongType("integer")
		}
		return n, nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, v.wrongType("integer")
		}
		return int64(t), nil
	case float64:
		// float64(math.MaxInt64) is 2^63, one past the largest int64.
		if t != math.Trunc(t) || t >= math.MaxInt64 || t < math.MinInt64 {
			return 0, v.wrongType("integer")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, v.wrongType("integer")
		}
		return n, nil
	default:
		return 0, v.wrongType("integer")
	}
}

// Int returns the value as an int.
func (v Value) Int() (int, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt || n < math.MinInt {
		return 0, v.wrongType("int")
	}
	return int(n), nil
}

// Bool returns the value as a boolean. Strings are parsed with strconv.ParseBool.
func (v Value) Bool() (bool, error) {
	switch t := v.raw.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, v.wrongType("boolean")
		}
		return b, nil
	default:
		return false, v.wrongType("boolean")
	}
}

func (v Value) wrongType(want string) error {
	return &ResolveError{
		Path: v.path,
		Err:  fmt.Errorf("%w: want %s, got %T", ErrWrongType, want, v.raw),
	}
}

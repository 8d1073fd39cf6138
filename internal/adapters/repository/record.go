package repository

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Record is a stored document. Fields holds user data; system fields live on
// the struct.
type Record struct {
	ID       string
	Created  time.Time
	Updated  time.Time
	Revision int64
	Fields   map[string]any
}

// Get returns the raw value of a field, system fields included.
func (r Record) Get(key string) any {
	switch key {
	case FieldID:
		return r.ID
	case FieldCreated:
		return FormatTime(r.Created)
	case FieldUpdated:
		return FormatTime(r.Updated)
	case FieldRevision:
		return float64(r.Revision)
	}
	return r.Fields[key]
}

// String returns a field as a string, "" when absent.
func (r Record) String(key string) string {
	switch v := r.Get(key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns a numeric field, 0 when absent or not numeric.
func (r Record) Float(key string) float64 {
	f, _ := toFloat(r.Get(key))
	return f
}

// Int returns a numeric field truncated to int.
func (r Record) Int(key string) int {
	return int(r.Float(key))
}

// Time returns a timestamp field, zero when absent or malformed.
func (r Record) Time(key string) time.Time {
	t, _ := r.timeValue(key)
	return t
}

// TimePtr returns a timestamp field, nil when absent or empty.
func (r Record) TimePtr(key string) *time.Time {
	t, ok := r.timeValue(key)
	if !ok {
		return nil
	}
	return &t
}

func (r Record) timeValue(key string) (time.Time, bool) {
	switch v := r.Get(key).(type) {
	case time.Time:
		return v.UTC(), !v.IsZero()
	case string:
		return ParseTime(v)
	}
	return time.Time{}, false
}

// MarshalJSON flattens system fields and data into one object.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[FieldID] = r.ID
	out[FieldCreated] = FormatTime(r.Created)
	out[FieldUpdated] = FormatTime(r.Updated)
	out[FieldRevision] = r.Revision
	return json.Marshal(out)
}

func (r Record) clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}

// normalizeFields converts values to the representation every driver stores:
// numbers as float64, times as TimeLayout strings, nil times as "".
func normalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if err := validateName(k); err != nil {
			return nil, err
		}
		switch k {
		case FieldID, FieldCreated, FieldUpdated, FieldRevision:
			return nil, fmt.Errorf("%w: field %q is managed by the store", ErrInvalidInput, k)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool:
		return x, nil
	case time.Time:
		if x.IsZero() {
			return "", nil
		}
		return FormatTime(x), nil
	case *time.Time:
		if x == nil || x.IsZero() {
			return "", nil
		}
		return FormatTime(*x), nil
	}
	if f, ok := toFloat(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite number", ErrInvalidInput)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: unsupported value type %T", ErrInvalidInput, v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

package dyntable

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// Value coercion maps Go values to the storage type of a column kind.
//
//	Kind    Accepted Go values                      Stored as
//	text    string                                  string
//	float   any integer or float, json.Number       float64
//	int     any integer, whole floats, json.Number  int64
//	bool    bool                                    bool
//	object  non-empty string, ObjectNamer           string (object name)
//
// Fixed-shape columns accept slices or arrays (nested for more than one
// dimension) and store a flat typed slice: []string, []float64, []int64 or
// []bool.

// Kind is the scalar type of a column.
type Kind string

const (
	// KindText stores strings.
	KindText Kind = "text"
	// KindFloat stores float64 values.
	KindFloat Kind = "float"
	// KindInt stores int64 values.
	KindInt Kind = "int"
	// KindBool stores booleans.
	KindBool Kind = "bool"
	// KindObject stores the name of a referenced non-table container.
	KindObject Kind = "object"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindFloat, KindInt, KindBool, KindObject:
		return true
	default:
		return false
	}
}

// ObjectNamer is implemented by containers that object columns can reference.
type ObjectNamer interface {
	NodeName() string
}

func coerceScalar(k Kind, v any) (any, bool) {
	switch k {
	case KindText:
		s, ok := v.(string)
		return s, ok
	case KindBool:
		b, ok := v.(bool)
		return b, ok
	case KindFloat:
		return toFloat(v)
	case KindInt:
		return toInt(v)
	case KindObject:
		switch x := v.(type) {
		case string:
			return x, x != ""
		case ObjectNamer:
			name := x.NodeName()
			return name, name != ""
		}
	}
	return nil, false
}

// number is implemented by json.Number, which keeps the literal so large
// integers decode exactly.
type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
}

func toFloat(v any) (float64, bool) {
	if n, ok := v.(number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	if n, ok := v.(number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	}
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case float64:
		if x != math.Trunc(x) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	}
	return 0, false
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// coerce normalizes v for a column of kind k and the given fixed shape.
func coerce(k Kind, shape []int, v any) (any, error) {
	if len(shape) == 0 {
		if out, ok := coerceScalar(k, v); ok {
			return out, nil
		}
		return nil, fmt.Errorf("%w: %T is not %s", ErrTypeMismatch, v, k)
	}
	var flat []any
	if err := flatten(k, shape, reflect.ValueOf(v), &flat); err != nil {
		return nil, err
	}
	switch k {
	case KindFloat:
		return typedSlice[float64](flat), nil
	case KindInt:
		return typedSlice[int64](flat), nil
	case KindBool:
		return typedSlice[bool](flat), nil
	default:
		return typedSlice[string](flat), nil
	}
}

func flatten(k Kind, shape []int, rv reflect.Value, out *[]any) error {
	if rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("%w: want %s array of shape %v", ErrTypeMismatch, k, shape)
	}
	if rv.Len() != shape[0] {
		return fmt.Errorf("%w: got %d elements, want shape %v", ErrTypeMismatch, rv.Len(), shape)
	}
	for i := range rv.Len() {
		elem := rv.Index(i)
		if len(shape) > 1 {
			if err := flatten(k, shape[1:], elem, out); err != nil {
				return err
			}
			continue
		}
		x, ok := coerceScalar(k, elem.Interface())
		if !ok {
			return fmt.Errorf("%w: element %d is %s, not %s", ErrTypeMismatch, i, elem.Type(), k)
		}
		*out = append(*out, x)
	}
	return nil
}

func typedSlice[T any](flat []any) []T {
	out := make([]T, len(flat))
	for i, x := range flat {
		out[i] = x.(T)
	}
	return out
}

// zeroValue is the filler used when a column is added to a non-empty table.
func zeroValue(k Kind, shape []int) any {
	n := shapeSize(shape)
	switch k {
	case KindFloat:
		if len(shape) != 0 {
			return make([]float64, n)
		}
		return float64(0)
	case KindInt:
		if len(shape) != 0 {
			return make([]int64, n)
		}
		return int64(0)
	case KindBool:
		if len(shape) != 0 {
			return make([]bool, n)
		}
		return false
	default:
		if len(shape) != 0 {
			return make([]string, n)
		}
		return ""
	}
}

// cloneValue copies the slice-backed values so stored rows stay immutable.
func cloneValue(v any) any {
	switch x := v.(type) {
	case []float64:
		return slices.Clone(x)
	case []int64:
		return slices.Clone(x)
	case []bool:
		return slices.Clone(x)
	case []string:
		return slices.Clone(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []int:
		return slices.Clone(x)
	default:
		return v
	}
}

// inferKind guesses the column declaration for an ad-hoc value.
func inferKind(v any) (Kind, []int, error) {
	if _, ok := v.(ObjectNamer); ok {
		return KindObject, nil, nil
	}
	if n, ok := v.(number); ok {
		if _, err := n.Int64(); err == nil {
			return KindInt, nil, nil
		}
		return KindFloat, nil, nil
	}
	switch v.(type) {
	case nil:
		return "", nil, fmt.Errorf("%w: cannot infer the kind of nil", ErrTypeMismatch)
	case string:
		return KindText, nil, nil
	case bool:
		return KindBool, nil, nil
	case float32, float64:
		return KindFloat, nil, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt, nil, nil
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Len() > 0 {
		k, inner, err := inferKind(rv.Index(0).Interface())
		if err != nil {
			return "", nil, err
		}
		if k == KindObject {
			return "", nil, fmt.Errorf("%w: arrays of objects are not supported", ErrTypeMismatch)
		}
		return k, append([]int{rv.Len()}, inner...), nil
	}
	return "", nil, fmt.Errorf("%w: cannot infer the kind of %T", ErrTypeMismatch, v)
}

// asSlice turns a group value (any slice or array) into []any.
func asSlice(v any) ([]any, error) {
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("%w: %T is not a group of values", ErrTypeMismatch, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

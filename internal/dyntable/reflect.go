// Derives schemas from Go row structs and rows from struct values.

package dyntable

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFromType builds a schema from the exported fields of struct T.
//
// Column names come from `json` tags. Descriptions and required columns come
// from JSON Schema reflection: `jsonschema:"description=..."` sets the
// description and fields without omitempty are required. The `dyntable` tag
// adds column options:
//
//	target=NAME   the field is a region into the table registered as NAME
//	type=TYPE     the region's target, or the object's container, is a TYPE
//	unit=UNIT     unit attribute of the column
//	object        the string field names a non-table container
//
// Fixed-size arrays become fixed-shape columns, slices become ragged
// columns.
func SchemaFromType[T any](typ, name, description string) (*Schema, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type must be a struct or pointer to struct, got %s", t.Kind())
	}

	// Generate JSON Schema from type with inline properties (no $ref).
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	js := r.ReflectFromType(t)

	required := make(map[string]bool)
	for _, n := range js.Required {
		required[n] = true
	}

	fields := make(map[string]reflect.StructField)
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("json") == "-" {
			continue
		}
		fields[jsonFieldName(&f)] = f
	}

	s := &Schema{Type: typ, Name: name, Description: description}
	for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
		f, ok := fields[pair.Key]
		if !ok {
			continue
		}
		spec, err := specFromField(&f)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		spec.Name = pair.Key
		spec.Description = pair.Value.Description
		spec.Required = required[pair.Key]
		s.Columns = append(s.Columns, spec)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func specFromField(f *reflect.StructField) (ColumnSpec, error) {
	var spec ColumnSpec
	object := false
	for opt := range strings.SplitSeq(f.Tag.Get("dyntable"), ",") {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "":
		case "target":
			spec.Target = val
		case "type":
			spec.TargetType = val
		case "unit":
			spec.Unit = val
		case "object":
			object = true
		default:
			return spec, fmt.Errorf("unknown dyntable option %q", key)
		}
	}
	t := f.Type
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8 {
		spec.Ragged = true
		t = t.Elem()
	}
	for t.Kind() == reflect.Array {
		spec.Shape = append(spec.Shape, t.Len())
		t = t.Elem()
	}
	k := goTypeToKind(t)
	if k == "" {
		return spec, fmt.Errorf("unsupported type %s", f.Type)
	}
	if object {
		if k != KindText {
			return spec, fmt.Errorf("object column must be a string, got %s", f.Type)
		}
		k = KindObject
	}
	if spec.IsRegion() && k != KindInt {
		return spec, fmt.Errorf("region must hold integers, got %s", f.Type)
	}
	spec.Kind = k
	return spec, nil
}

// goTypeToKind maps scalar Go types to column kinds.
func goTypeToKind(t reflect.Type) Kind {
	switch t.Kind() {
	case reflect.String:
		return KindText
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	default:
		return ""
	}
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(field *reflect.StructField) string {
	tag := field.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

// ValuesOf converts a row struct into AddRow values.
//
// Zero-valued fields tagged omitempty are left out so that optional columns
// fall back to their default.
func ValuesOf(row any) (map[string]any, error) {
	v := reflect.ValueOf(row)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil row", ErrTypeMismatch)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: row must be a struct, got %T", ErrTypeMismatch, row)
	}
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if !f.IsExported() || tag == "-" {
			continue
		}
		fv := v.Field(i)
		if strings.Contains(tag, ",omitempty") && fv.IsZero() {
			continue
		}
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		out[jsonFieldName(&f)] = fv.Interface()
	}
	return out, nil
}

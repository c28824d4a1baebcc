package logger

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultDumpDepth bounds how far Dump descends into nested values.
const DefaultDumpDepth = 5

var timeType = reflect.TypeOf(time.Time{})

// Dump renders v as a zap field. Nested maps, slices and structs are
// expanded up to DefaultDumpDepth levels; anything deeper is replaced by its
// type name. Values under keys that look like credentials are masked.
func Dump(key string, v any) zap.Field {
	return DumpDepth(key, v, DefaultDumpDepth)
}

func DumpDepth(key string, v any, depth int) zap.Field {
	return zap.Any(key, render(reflect.ValueOf(v), depth))
}

func render(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		elem := v.Elem()
		if k := elem.Kind(); k == reflect.Pointer || k == reflect.Interface {
			// Chains of indirections cost depth so that cycles end.
			if depth <= 0 {
				return fmt.Sprintf("<%s>", v.Type())
			}
			depth--
		}
		return render(elem, depth)
	}

	if v.Type() == timeType && v.CanInterface() {
		return v.Interface()
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if depth <= 0 {
			return fmt.Sprintf("<%s>", v.Type())
		}
	}

	switch v.Kind() {
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			out[k] = renderField(k, iter.Value(), depth-1)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return string(v.Bytes())
		}
		fallthrough
	case reflect.Array:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = render(v.Index(i), depth-1)
		}
		return out

	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			out[f.Name] = renderField(f.Name, v.Field(i), depth-1)
		}
		return out

	default:
		if v.CanInterface() {
			return v.Interface()
		}
		return v.String()
	}
}

func renderField(name string, v reflect.Value, depth int) any {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "secret") || strings.Contains(lower, "password") {
		return "***"
	}
	return render(v, depth)
}

package config

import (
	"reflect"
	"strings"
	"time"
)

// ToMap converts cfg to nested maps keyed by koanf tags, the shape the
// loader reads. Durations print as strings, nil pointers are omitted and
// zero times print as "".
func ToMap(cfg *ServerConfig) map[string]any {
	return structToMap(reflect.ValueOf(cfg).Elem())
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

func structToMap(v reflect.Value) map[string]any {
	out := make(map[string]any, v.NumField())
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("koanf"), ",")
		if name == "" || name == "-" || !field.IsExported() {
			continue
		}
		if val, ok := exportValue(v.Field(i)); ok {
			out[name] = val
		}
	}
	return out
}

func exportValue(v reflect.Value) (any, bool) {
	switch {
	case v.Type() == durationType:
		return time.Duration(v.Int()).String(), true
	case v.Type() == timeType:
		ts := v.Interface().(time.Time)
		if ts.IsZero() {
			return "", true
		}
		return ts.UTC().Format(time.RFC3339), true
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, false
		}
		return exportValue(v.Elem())
	case reflect.Struct:
		return structToMap(v), true
	case reflect.Slice:
		list := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if val, ok := exportValue(v.Index(i)); ok {
				list = append(list, val)
			}
		}
		return list, true
	default:
		return v.Interface(), true
	}
}

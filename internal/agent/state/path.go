package state

import (
	"fmt"
	"reflect"
	"strings"
)

// setPath walks struct fields by their json tag names and assigns value to the
// addressed leaf. Supported leaves are plain fields; the value must be
// assignable or convertible to the field type.
func setPath(st *AgentState, path []string, value any) error {
	v := reflect.ValueOf(st).Elem()
	for i, segment := range path {
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("path %q: %q is not a struct", strings.Join(path, "."), path[i-1])
		}
		field, ok := fieldByTag(v, segment)
		if !ok {
			return fmt.Errorf("path %q: unknown field %q", strings.Join(path, "."), segment)
		}
		if i == len(path)-1 {
			return assign(field, value, strings.Join(path, "."))
		}
		v = field
	}
	return nil
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		tag = strings.Split(tag, ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func assign(field reflect.Value, value any, path string) error {
	if !field.CanSet() {
		return fmt.Errorf("path %q: field not settable", path)
	}
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("path %q: cannot assign %T", path, value)
}

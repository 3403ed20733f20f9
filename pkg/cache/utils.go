package cache

import (
	"fmt"
	"reflect"
	"strings"
)

// GenerateKeyWithParams creates a cache key with multiple parameters.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, param := range params {
		fmt.Fprintf(&b, ":%v", param)
	}
	return b.String()
}

// BuildPattern creates a glob pattern matching every key under prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s*", prefix)
}

// assign copies value into the pointer dest.
func assign(dest, value interface{}) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("cache: dest must be a non-nil pointer, got %T", dest)
	}
	target := dv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(target.Type()):
		target.Set(vv)
	case vv.Kind() == reflect.Ptr && !vv.IsNil() && vv.Elem().Type().AssignableTo(target.Type()):
		target.Set(vv.Elem())
	default:
		return fmt.Errorf("%w: have %T, want %s", ErrTypeMismatch, value, target.Type())
	}
	return nil
}

package typereg

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
)

var ErrUnsupportedType = errors.New("typereg: unsupported type")

// Kinder lets a type choose its own wire name.
type Kinder interface {
	Kind() string
}

// TypeNameFor is TypeNameFrom for a static type. It panics when T cannot be
// named, which only happens on programming mistakes at startup.
func TypeNameFor[T any](opts ...typeNameFromOption) string {
	var zero T
	if k, ok := any(zero).(Kinder); ok && !isNilPointer(zero) {
		return k.Kind()
	}
	name, err := typeName(reflect.TypeFor[T](), opts...)
	if err != nil {
		panic(err)
	}
	return name
}

type typeNameFromOption string

func WithDelimiter(delimiter string) typeNameFromOption {
	return typeNameFromOption(delimiter)
}

// TypeNameFrom returns the Kind of e when it implements Kinder, otherwise the
// struct name qualified with a hash of its package path. Values that are
// neither yield ErrUnsupportedType.
func TypeNameFrom(e any, opts ...typeNameFromOption) (string, error) {
	if e == nil {
		return "", fmt.Errorf("%w: nil", ErrUnsupportedType)
	}
	if k, ok := e.(Kinder); ok && !isNilPointer(e) {
		return k.Kind(), nil
	}
	return typeName(reflect.TypeOf(e), opts...)
}

func typeName(t reflect.Type, opts ...typeNameFromOption) (string, error) {
	delim := "::"
	for _, opt := range opts {
		delim = string(opt)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedType, t)
	}
	sha := sha1.New()
	sha.Write([]byte(t.PkgPath()))
	bctx := base64.RawURLEncoding.EncodeToString(sha.Sum(nil))
	return fmt.Sprintf("%s%s%s", t.Name(), delim, bctx), nil
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// Package failfast turns programming errors into immediate panics.
// Use it for misconfiguration at wiring time (nil handlers, nil
// middleware), never for runtime conditions such as a full queue.
package failfast

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// ErrFailFast is wrapped by every panic value raised by this package
var ErrFailFast = errors.New("fail-fast")

// Err panics if err != nil, attaching the current stack
func Err(err error) {
	if err != nil {
		panic(fmt.Errorf("%w: %w\n%s", ErrFailFast, err, debug.Stack()))
	}
}

// If panics with the formatted message when condition is false
func If(condition bool, message string, args ...interface{}) {
	if !condition {
		panic(fmt.Errorf("%w: %s", ErrFailFast, fmt.Sprintf(message, args...)))
	}
}

// NotNil panics if v is nil, including typed nils hidden in an interface
func NotNil(v interface{}, name string) {
	if isNil(v) {
		panic(fmt.Errorf("%w: %s is nil", ErrFailFast, name))
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

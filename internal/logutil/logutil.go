// Package logutil names functions and runner types for log output. Actions
// and runners arrive at the runtime as bare values; these helpers recover a
// readable identifier so log lines say which action committed or which
// effect failed.
package logutil

import (
	"reflect"
	"runtime"
	"strings"
)

// FuncName returns the package-qualified name of fn, with the import path
// prefix trimmed. Method values lose the -fm suffix the runtime appends.
// Non-function and nil values yield placeholder names rather than panicking.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return "<nil>"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "<unknown>"
	}
	name := f.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "-fm")
}

// TypeName returns the string form of v's dynamic type, or a placeholder for
// nil interfaces.
func TypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

// Package structkey derives deterministic string keys from arbitrary Go
// values. Two values with the same structure produce the same key regardless
// of when or where they were allocated, which is what lets freshly built
// descriptors stand in for running ones during reconciliation.
//
// Scalars, strings, structs, pointers, slices, arrays, maps, and interfaces
// are keyed by their contents. Map entries are sorted, so insertion order
// does not leak into the key. Functions and channels have no useful
// structure; they are keyed by identity (code address for functions, channel
// value for channels). Cyclic values terminate with a cycle marker instead
// of recursing forever.
package structkey

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Of returns the structural key for v. Keys embed kind and type markers, so
// values of different types never collide even when their payloads print the
// same way.
func Of(v any) string {
	e := encoder{seen: make(map[uintptr]bool)}
	e.encode(reflect.ValueOf(v))
	return e.b.String()
}

type encoder struct {
	b    strings.Builder
	seen map[uintptr]bool
}

func (e *encoder) encode(v reflect.Value) {
	if !v.IsValid() {
		e.b.WriteString("nil")
		return
	}
	switch v.Kind() {
	case reflect.Bool:
		e.b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.b.WriteString("i:")
		e.b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.b.WriteString("u:")
		e.b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		e.b.WriteString("f:")
		e.b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		fmt.Fprintf(&e.b, "c:%g/%g", real(c), imag(c))
	case reflect.String:
		e.b.WriteString(strconv.Quote(v.String()))
	case reflect.Func:
		if v.IsNil() {
			e.b.WriteString("func:nil")
			return
		}
		fmt.Fprintf(&e.b, "func:%x", v.Pointer())
	case reflect.Chan:
		if v.IsNil() {
			e.b.WriteString("chan:nil")
			return
		}
		fmt.Fprintf(&e.b, "chan:%x", v.Pointer())
	case reflect.UnsafePointer:
		fmt.Fprintf(&e.b, "ptr:%x", v.Pointer())
	case reflect.Interface:
		if v.IsNil() {
			e.b.WriteString("nil")
			return
		}
		e.encode(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			e.b.WriteString("nil")
			return
		}
		p := v.Pointer()
		if e.seen[p] {
			e.b.WriteString("cycle")
			return
		}
		e.seen[p] = true
		e.b.WriteByte('&')
		e.encode(v.Elem())
		delete(e.seen, p)
	case reflect.Struct:
		e.encodeStruct(v)
	case reflect.Slice:
		if v.IsNil() {
			e.b.WriteString("nil")
			return
		}
		p := v.Pointer()
		if p != 0 && e.seen[p] {
			e.b.WriteString("cycle")
			return
		}
		if p != 0 {
			e.seen[p] = true
			defer delete(e.seen, p)
		}
		e.encodeList(v)
	case reflect.Array:
		e.encodeList(v)
	case reflect.Map:
		if v.IsNil() {
			e.b.WriteString("nil")
			return
		}
		p := v.Pointer()
		if e.seen[p] {
			e.b.WriteString("cycle")
			return
		}
		e.seen[p] = true
		e.encodeMap(v)
		delete(e.seen, p)
	default:
		fmt.Fprintf(&e.b, "%s:?", v.Kind())
	}
}

func (e *encoder) encodeStruct(v reflect.Value) {
	t := v.Type()
	e.b.WriteString(t.String())
	e.b.WriteByte('{')
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			e.b.WriteByte(',')
		}
		e.b.WriteString(t.Field(i).Name)
		e.b.WriteByte('=')
		e.encode(v.Field(i))
	}
	e.b.WriteByte('}')
}

func (e *encoder) encodeList(v reflect.Value) {
	e.b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.b.WriteByte(',')
		}
		e.encode(v.Index(i))
	}
	e.b.WriteByte(']')
}

func (e *encoder) encodeMap(v reflect.Value) {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k := encoder{seen: e.seen}
		k.encode(iter.Key())
		entries = append(entries, entry{key: k.b.String(), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	e.b.WriteString("map{")
	for i, ent := range entries {
		if i > 0 {
			e.b.WriteByte(',')
		}
		e.b.WriteString(ent.key)
		e.b.WriteByte(':')
		e.encode(ent.val)
	}
	e.b.WriteByte('}')
}

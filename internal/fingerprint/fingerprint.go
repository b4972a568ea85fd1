// Package fingerprint computes canonical identities for store descriptions.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"reflect"
	"strconv"
)

// Of hashes the ordered parts into a 128-bit hex identity.
// Each part is length-prefixed so ("ab", "c") and ("a", "bc") differ.
func Of(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Identity returns a stable textual identity for v.
// Reference kinds (pointers, maps, funcs, channels) are identified by type and
// address, so two distinct validators with equal fields stay distinct.
// Everything else is identified by type and formatted value.
func Identity(v any) string {
	if v == nil {
		return "<nil>"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%T@%x", v, rv.Pointer())
	case reflect.Slice:
		if rv.IsNil() {
			return fmt.Sprintf("%T@nil", v)
		}
		return fmt.Sprintf("%T@%x/%d", v, rv.Pointer(), rv.Len())
	default:
		return fmt.Sprintf("%T:%+v", v, v)
	}
}

// Values hashes a list of values by their formatted content with FNV-1a.
// It is used for seed documents, where content rather than address matters.
func Values[T any](values []T) string {
	if len(values) == 0 {
		return "0"
	}
	h := fnv.New64a()
	for _, v := range values {
		fmt.Fprintf(h, "%T:%+v;", v, v)
	}
	return fmt.Sprintf("%d-%016x", len(values), h.Sum64())
}

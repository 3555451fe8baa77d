package cowtrie

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

func appendLength(buf []byte, n int) []byte {
	var tmpbuf [binary.MaxVarintLen64]byte
	len := binary.PutUvarint(tmpbuf[:], uint64(n))
	return append(buf, tmpbuf[:len]...)
}

func appendBytes(buf []byte, body []byte) []byte {
	buf = appendLength(buf, len(body))
	return append(buf, body...)
}

// encodeNode produces the canonical form of a node that its digest is
// computed over: a value flag, the value's type and encoding when present,
// then each child symbol with the child's digest, in symbol order.
func encodeNode(n *node, marshal func(interface{}) ([]byte, error), childDigest func(*node) ([32]byte, error)) ([]byte, error) {
	var buf []byte
	if n.value == nil {
		buf = append(buf, 0)
	} else {
		body, err := marshal(derefPayload(n.value.payload))
		if err != nil {
			return nil, fmt.Errorf("marshal %v: %w", n.value.typ, err)
		}
		buf = append(buf, 1)
		buf = appendBytes(buf, []byte(typeName(n.value.typ)))
		buf = appendBytes(buf, body)
	}
	buf = appendLength(buf, len(n.children))
	for _, b := range n.sortedSymbols() {
		d, err := childDigest(n.children[b])
		if err != nil {
			return nil, fmt.Errorf("child %q: %w", b, err)
		}
		buf = append(buf, b)
		buf = append(buf, d[:]...)
	}
	return buf, nil
}

// typeName identifies a type by its import path rather than its package
// name, so that equally named types from different packages differ.
func typeName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeName(t.Elem()))
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	}
	return t.String()
}

package cowtrie

import (
	"maps"
	"reflect"
)

// node is one symbol position in the trie. A node with a nil value is a
// plain branch; otherwise it also carries a value of the type recorded in
// value.typ.
//
// Once reachable from a published Trie, a node is never modified. The
// children map may be shared between a node and the nodes derived from it
// by withValue/withoutValue, so it must be copied (see clone) before any
// mutation.
type node struct {
	children map[byte]*node
	value    *typedValue
}

// typedValue is a type-erased value: payload is always a *T whose T is typ.
type typedValue struct {
	typ     reflect.Type
	payload interface{}
}

func newTypedValue[T any](value T) *typedValue {
	return &typedValue{
		typ:     reflect.TypeFor[T](),
		payload: &value,
	}
}

// as returns the payload if it was stored as a T.
func as[T any](v *typedValue) (*T, bool) {
	if v == nil || v.typ != reflect.TypeFor[T]() {
		return nil, false
	}
	p, ok := v.payload.(*T)
	return p, ok
}

// clone returns a copy of the node that can be modified without disturbing
// any version that references the original.
func (n *node) clone() *node {
	return &node{
		children: maps.Clone(n.children),
		value:    n.value,
	}
}

func (n *node) withValue(v *typedValue) *node {
	if n == nil {
		return &node{value: v}
	}
	return &node{children: n.children, value: v}
}

// withoutValue demotes a value node to a plain branch, or returns nil if it
// would be left with nothing at all.
func (n *node) withoutValue() *node {
	if len(n.children) == 0 {
		return nil
	}
	return &node{children: n.children}
}

func (n *node) hasValue() bool {
	return n.value != nil
}

func (n *node) setChild(b byte, child *node) {
	if n.children == nil {
		n.children = make(map[byte]*node, 1)
	}
	n.children[b] = child
}

// derefPayload returns the T that a *T payload points to.
func derefPayload(payload interface{}) interface{} {
	return reflect.ValueOf(payload).Elem().Interface()
}

package cowtrie

import (
	"fmt"
	"slices"
	"strings"
)

// Trie is an immutable version of a byte-keyed trie. The zero Trie is
// empty. Put and Remove return new versions and never modify the receiver,
// so a Trie can be shared between goroutines without locking.
type Trie struct {
	root *node
	size uint64
}

// Get returns a copy of the value stored at key, if it was stored as a T.
// A value of any other type is reported the same way as a missing key.
//
// The copy is shallow: if T is a pointer, map or slice, what it refers to
// is shared with every version holding the value and must not be modified.
func Get[T any](t Trie, key []byte) (T, bool) {
	var zero T
	n := t.root
	for _, b := range key {
		if n == nil {
			return zero, false
		}
		n = n.children[b]
	}
	if n == nil {
		return zero, false
	}
	p, ok := as[T](n.value)
	if !ok {
		return zero, false
	}
	return *p, true
}

// Put returns a new version of the trie with value stored at key,
// replacing any value already there. Only the nodes on the path to key are
// copied; all other subtrees are shared with t.
func Put[T any](t Trie, key []byte, value T) Trie {
	v := newTypedValue(value)
	size := t.size
	if len(key) == 0 {
		if t.root == nil || !t.root.hasValue() {
			size++
		}
		return Trie{root: t.root.withValue(v), size: size}
	}

	var root *node
	if t.root != nil {
		root = t.root.clone()
	} else {
		root = &node{}
	}
	n := root
	for _, b := range key[:len(key)-1] {
		var next *node
		if existing, ok := n.children[b]; ok {
			next = existing.clone()
		} else {
			next = &node{}
		}
		n.setChild(b, next)
		n = next
	}
	last := key[len(key)-1]
	existing := n.children[last]
	if existing == nil || !existing.hasValue() {
		size++
	}
	n.setChild(last, existing.withValue(v))
	return Trie{root: root, size: size}
}

// Remove returns a version of the trie without a value at key. If there is
// no value at key, t itself is returned and nothing is copied.
//
// Ancestors that are left with no children and no value are pruned, so
// every reachable node other than the root leads to at least one value.
func (t Trie) Remove(key []byte) Trie {
	if t.root == nil {
		return t
	}
	path := make([]*node, 0, len(key))
	n := t.root
	for _, b := range key {
		child, ok := n.children[b]
		if !ok {
			return t
		}
		path = append(path, n)
		n = child
	}
	if !n.hasValue() {
		return t
	}

	replacement := n.withoutValue()
	for i := len(key) - 1; i >= 0; i-- {
		parent := path[i]
		if replacement == nil && len(parent.children) == 1 && !parent.hasValue() {
			// the removed child was all that kept parent alive
			continue
		}
		p := parent.clone()
		if replacement != nil {
			p.children[key[i]] = replacement
		} else {
			delete(p.children, key[i])
		}
		replacement = p
	}
	return Trie{root: replacement, size: t.size - 1}
}

// Len returns the number of keys that hold a value.
func (t Trie) Len() uint64 {
	return t.size
}

// IsEmpty reports whether the trie holds no values.
func (t Trie) IsEmpty() bool {
	return t.root == nil
}

// Identical reports whether t and o are the same version, i.e. share the
// same root. Tries with equal contents built separately are not Identical.
func (t Trie) Identical(o Trie) bool {
	return t.root == o.root
}

// String renders the structure of the trie, children in byte order, for
// debugging.
func (t Trie) String() string {
	if t.root == nil {
		return "NIL\n"
	}
	return fmt.Sprintf("{%s\n%s}\n", t.root.label(), t.root.string("   "))
}

func (n *node) label() string {
	if n.value == nil {
		return ""
	}
	return fmt.Sprintf(" %v: %v", n.value.typ, n.value.payloadString())
}

func (n *node) string(indent string) string {
	var sb strings.Builder
	for _, b := range n.sortedSymbols() {
		child := n.children[b]
		fmt.Fprintf(&sb, "%s%q%s", indent, b, child.label())
		if len(child.children) == 0 {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(" {\n")
		sb.WriteString(child.string(indent + "   "))
		sb.WriteString(indent + "}\n")
	}
	return sb.String()
}

func (n *node) sortedSymbols() []byte {
	symbols := make([]byte, 0, len(n.children))
	for b := range n.children {
		symbols = append(symbols, b)
	}
	slices.Sort(symbols)
	return symbols
}

func (v *typedValue) payloadString() string {
	return fmt.Sprintf("%v", derefPayload(v.payload))
}

package cowtrie

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/minio/blake2b-simd"
	"google.golang.org/protobuf/proto"
)

// EmptyDigest is the digest of a trie holding no values.
var EmptyDigest = blake2b.Sum256(nil)

var deterministicProto = proto.MarshalOptions{Deterministic: true}

// ErrHiddenState is returned by DefaultMarshal for values whose JSON
// encoding would leave out unexported struct fields, so that values that
// differ could encode, and digest, the same.
var ErrHiddenState = errors.New("cowtrie: value has unexported fields")

// DefaultMarshal encodes values for digesting. Protobuf messages use their
// deterministic wire encoding, byte slices and strings are used as-is, and
// anything else is encoded as JSON.
//
// Structs with unexported fields, anywhere inside the value, fail with
// ErrHiddenState unless they implement json.Marshaler or
// encoding.TextMarshaler. Values held in interface-typed fields are
// encoded as JSON sees them and are not checked; use a custom marshaler
// with NewDigester for such values.
func DefaultMarshal(v interface{}) ([]byte, error) {
	switch v := v.(type) {
	case proto.Message:
		return deterministicProto.Marshal(v)
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return json.Marshal(v)
	}
	if t := reflect.TypeOf(v); hasHiddenState(t) {
		return nil, fmt.Errorf("%v: %w", t, ErrHiddenState)
	}
	return json.Marshal(v)
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

	// reflect.Type -> bool
	hiddenStateCache sync.Map
)

func hasHiddenState(t reflect.Type) bool {
	if hidden, ok := hiddenStateCache.Load(t); ok {
		return hidden.(bool)
	}
	hidden := findHiddenState(t, map[reflect.Type]bool{})
	hiddenStateCache.Store(t, hidden)
	return hidden
}

func findHiddenState(t reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[t] {
		return false
	}
	seen[t] = true
	if encodesItself(t) {
		return false
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return findHiddenState(t.Elem(), seen)
	case reflect.Map:
		return findHiddenState(t.Key(), seen) || findHiddenState(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() && !(f.Anonymous && isStruct(f.Type)) {
				return true
			}
			if findHiddenState(f.Type, seen) {
				return true
			}
		}
	}
	return false
}

func encodesItself(t reflect.Type) bool {
	for _, m := range []reflect.Type{t, reflect.PointerTo(t)} {
		if m.Implements(jsonMarshalerType) || m.Implements(textMarshalerType) {
			return true
		}
	}
	return false
}

// isStruct reports whether t is a struct or a pointer to one; JSON promotes
// the exported fields of such embedded fields even when the embedded type
// is unexported.
func isStruct(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// Digester computes content digests of trie versions. Two tries holding
// the same keys with equal values of the same types have the same digest,
// no matter the order of operations that produced them.
type Digester struct {
	marshal func(interface{}) ([]byte, error)
	cache   NodeCache
}

// NewDigester returns a Digester that encodes values with marshal
// (DefaultMarshal if nil). If cache is non-nil, node digests are memoized
// in it; since versions share unmodified subtrees, digesting a version
// derived from an already-digested one only rehashes the modified path.
//
// A cache must not be shared between digesters with different marshalers.
func NewDigester(marshal func(interface{}) ([]byte, error), cache NodeCache) *Digester {
	if marshal == nil {
		marshal = DefaultMarshal
	}
	return &Digester{marshal: marshal, cache: cache}
}

// Digest returns the content digest of t.
func (d *Digester) Digest(t Trie) ([32]byte, error) {
	if t.root == nil {
		return EmptyDigest, nil
	}
	digest, err := d.node(t.root)
	if err != nil {
		return [32]byte{}, fmt.Errorf("digest: %w", err)
	}
	return digest, nil
}

func (d *Digester) node(n *node) ([32]byte, error) {
	if d.cache != nil {
		if cached, ok := d.cache.Get(n); ok {
			return cached.([32]byte), nil
		}
	}
	encoded, err := encodeNode(n, d.marshal, d.node)
	if err != nil {
		return [32]byte{}, err
	}
	digest := blake2b.Sum256(encoded)
	if d.cache != nil {
		d.cache.Add(n, digest)
	}
	return digest, nil
}

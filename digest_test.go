package cowtrie

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func mustDigest(t *testing.T, d *Digester, trie Trie) [32]byte {
	t.Helper()
	digest, err := d.Digest(trie)
	require.NoError(t, err)
	return digest
}

func TestDigestEmpty(t *testing.T) {
	t.Parallel()
	d := NewDigester(nil, nil)
	require.Equal(t, EmptyDigest, mustDigest(t, d, Trie{}))
	trie := Put(Trie{}, b("a"), 1)
	require.NotEqual(t, EmptyDigest, mustDigest(t, d, trie))
	require.Equal(t, EmptyDigest, mustDigest(t, d, trie.Remove(b("a"))))
}

func TestDigestDiffersOnUpsert(t *testing.T) {
	t.Parallel()
	d := NewDigester(nil, nil)
	one := mustDigest(t, d, Put(Trie{}, b("1"), "one"))
	two := mustDigest(t, d, Put(Trie{}, b("2"), "two"))
	twoAgain := mustDigest(t, d, Put(Trie{}, b("2"), "two"))
	upper := mustDigest(t, d, Put(Trie{}, b("2"), "TWO"))
	require.NotEqual(t, one, two)
	require.Equal(t, two, twoAgain)
	require.NotEqual(t, two, upper)
}

func TestDigestDependsOnType(t *testing.T) {
	t.Parallel()
	d := NewDigester(nil, nil)
	require.NotEqual(t,
		mustDigest(t, d, Put(Trie{}, b("k"), uint32(1))),
		mustDigest(t, d, Put(Trie{}, b("k"), uint64(1))))
	require.NotEqual(t,
		mustDigest(t, d, Put(Trie{}, b("k"), "x")),
		mustDigest(t, d, Put(Trie{}, b("k"), []byte("x"))))
}

func TestDigestDependsOnPlacement(t *testing.T) {
	t.Parallel()
	d := NewDigester(nil, nil)
	ab := Put(Put(Trie{}, b("a"), 1), b("ab"), 2)
	ba := Put(Put(Trie{}, b("a"), 2), b("ab"), 1)
	require.NotEqual(t, mustDigest(t, d, ab), mustDigest(t, d, ba))
	require.NotEqual(t,
		mustDigest(t, d, Put(Trie{}, b("a"), 1)),
		mustDigest(t, d, Put(Trie{}, b("b"), 1)))
}

func TestDigestProto(t *testing.T) {
	t.Parallel()
	d := NewDigester(nil, nil)
	x := mustDigest(t, d, Put(Trie{}, b("k"), wrapperspb.String("x")))
	xAgain := mustDigest(t, d, Put(Trie{}, b("k"), wrapperspb.String("x")))
	y := mustDigest(t, d, Put(Trie{}, b("k"), wrapperspb.String("y")))
	require.Equal(t, x, xAgain)
	require.NotEqual(t, x, y)

	encoded, err := DefaultMarshal(wrapperspb.String("x"))
	require.NoError(t, err)
	var decoded wrapperspb.StringValue
	require.NoError(t, proto.Unmarshal(encoded, &decoded))
	require.Equal(t, "x", decoded.GetValue())
}

func TestDefaultMarshal(t *testing.T) {
	t.Parallel()
	encoded, err := DefaultMarshal("raw")
	require.NoError(t, err)
	require.Equal(t, []byte("raw"), encoded)
	encoded, err = DefaultMarshal([]byte{0, 1})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1}, encoded)
	encoded, err = DefaultMarshal(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1,"b":2}`, string(encoded))
}

func TestDigestMarshalError(t *testing.T) {
	t.Parallel()
	trie := Put(Trie{}, b("ok"), 1)
	trie = Put(trie, b("bad"), make(chan int))
	_, err := NewDigester(nil, nil).Digest(trie)
	require.Error(t, err)
	var unsupported *json.UnsupportedTypeError
	require.ErrorAs(t, err, &unsupported)
	require.Contains(t, err.Error(), "chan int")
}

type opaque struct {
	n int
}

type partlyOpaque struct {
	Visible int
	hidden  int
}

type hasOpaque struct {
	Items []opaque
}

type embedded struct {
	Inner int
}

type promoted struct {
	embedded
	Outer int
}

type text struct {
	n int
}

func (t text) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprint(t.n)), nil
}

func TestDigestRejectsHiddenState(t *testing.T) {
	t.Parallel()
	d := NewDigester(nil, nil)
	for _, trie := range []Trie{
		Put(Trie{}, b("k"), opaque{n: 1}),
		Put(Trie{}, b("k"), partlyOpaque{Visible: 1, hidden: 2}),
		Put(Trie{}, b("k"), &opaque{n: 1}),
		Put(Trie{}, b("k"), hasOpaque{Items: []opaque{{n: 1}}}),
		Put(Trie{}, b("k"), map[string]opaque{"a": {n: 1}}),
	} {
		_, err := d.Digest(trie)
		require.ErrorIs(t, err, ErrHiddenState, "%s", trie)
	}
}

func TestDefaultMarshalAcceptsEncodableStructs(t *testing.T) {
	t.Parallel()
	encoded, err := DefaultMarshal(promoted{embedded: embedded{Inner: 1}, Outer: 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"Inner":1,"Outer":2}`, string(encoded))

	encoded, err = DefaultMarshal(text{n: 7})
	require.NoError(t, err)
	require.Equal(t, `"7"`, string(encoded))

	_, err = DefaultMarshal(time.Unix(0, 0).UTC())
	require.NoError(t, err)
	_, err = DefaultMarshal(nil)
	require.NoError(t, err)

	d := NewDigester(nil, nil)
	require.NotEqual(t,
		mustDigest(t, d, Put(Trie{}, b("k"), text{n: 1})),
		mustDigest(t, d, Put(Trie{}, b("k"), text{n: 2})))
}

func TestDigestHiddenStateWithCustomMarshal(t *testing.T) {
	t.Parallel()
	goSyntax := func(v interface{}) ([]byte, error) {
		return []byte(fmt.Sprintf("%#v", v)), nil
	}
	d := NewDigester(goSyntax, nil)
	require.NotEqual(t,
		mustDigest(t, d, Put(Trie{}, b("k"), opaque{n: 1})),
		mustDigest(t, d, Put(Trie{}, b("k"), opaque{n: 2})))
}

func TestTypeName(t *testing.T) {
	t.Parallel()
	const pkg = "github.com/jrhy/cowtrie"
	for _, tc := range []struct {
		typ      reflect.Type
		expected string
	}{
		{reflect.TypeFor[int](), "int"},
		{reflect.TypeFor[opaque](), pkg + ".opaque"},
		{reflect.TypeFor[*opaque](), "*" + pkg + ".opaque"},
		{reflect.TypeFor[[]opaque](), "[]" + pkg + ".opaque"},
		{reflect.TypeFor[[2]opaque](), "[2]" + pkg + ".opaque"},
		{reflect.TypeFor[map[string]*opaque](), "map[string]*" + pkg + ".opaque"},
		{reflect.TypeFor[wrapperspb.StringValue](), "google.golang.org/protobuf/types/known/wrapperspb.StringValue"},
	} {
		require.Equal(t, tc.expected, typeName(tc.typ))
	}
}

func TestDigestCustomMarshal(t *testing.T) {
	t.Parallel()
	constant := func(interface{}) ([]byte, error) { return []byte("same"), nil }
	d := NewDigester(constant, nil)
	require.Equal(t,
		mustDigest(t, d, Put(Trie{}, b("k"), 1)),
		mustDigest(t, d, Put(Trie{}, b("k"), 2)))
}

func TestDigestCacheRehashesOnlyModifiedPath(t *testing.T) {
	t.Parallel()
	marshaled := 0
	counting := func(v interface{}) ([]byte, error) {
		marshaled++
		return DefaultMarshal(v)
	}
	cached := NewDigester(counting, NewNodeCache(1000))
	cold := NewDigester(nil, nil)

	var trie Trie
	for _, key := range []string{"x", "xy", "y", "z", "zz", "zzz"} {
		trie = Put(trie, b(key), key)
	}
	require.Equal(t, mustDigest(t, cold, trie), mustDigest(t, cached, trie))
	require.Equal(t, 6, marshaled)

	mustDigest(t, cached, trie)
	require.Equal(t, 6, marshaled, "every node should have been cached")

	updated := Put(trie, b("w"), "w")
	require.Equal(t, mustDigest(t, cold, updated), mustDigest(t, cached, updated))
	require.Equal(t, 7, marshaled, "only the new value should be marshaled")

	removed := updated.Remove(b("zz"))
	require.Equal(t, mustDigest(t, cold, removed), mustDigest(t, cached, removed))
	require.Equal(t, 8, marshaled, "only the cloned \"z\" node holds a value")
}

func TestDigestCongruence(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(defaultGopterParameters)
	d := NewDigester(nil, NewNodeCache(10_000))
	properties.Property("tries digest the same no matter what order the puts are done", prop.ForAll(
		func(keys [][]byte, seed int64) bool {
			var forward Trie
			for _, key := range keys {
				forward = Put(forward, key, string(key))
			}
			shuffled := append([][]byte{}, keys...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			// keys are never this long, so the detour is removed entirely
			backward := Put(Trie{}, []byte("detour"), 0)
			for _, key := range shuffled {
				backward = Put(backward, key, string(key))
			}
			backward = backward.Remove([]byte("detour"))
			f, err := d.Digest(forward)
			if err != nil {
				return false
			}
			bd, err := d.Digest(backward)
			if err != nil {
				return false
			}
			if f != bd {
				t.Logf("forward:\n%s\nbackward:\n%s", forward, backward)
			}
			return f == bd && forward.Len() == backward.Len()
		},
		gen.SliceOf(gen.SliceOfN(3, gen.UInt8Range('a', 'd'))),
		gen.Int64(),
	))
	properties.TestingRun(t)
}

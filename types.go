package zarr

import (
	"fmt"
	"sort"
)

// Record is a typed record with named fields. Fields are encoded in the
// order they are returned.
type Record interface {
	RecordFields() []NamedValue
}

// NamedValue is one field of a Record
type NamedValue struct {
	Name  string
	Value any
}

// Enum is implemented by enumerated types. A member is stored as its
// underlying value, never its symbolic name.
type Enum interface {
	EnumValue() any
}

// CodecConfigurer is implemented by compression and transform codecs.
// The returned mapping is the codec's own document representation.
type CodecConfigurer interface {
	CodecConfig() map[string]any
}

// Setter is implemented by set values
type Setter interface {
	SetMembers() []any
}

// Tupler is implemented by fixed-arity heterogeneous tuples
type Tupler interface {
	TupleElems() []any
}

// Set is an unordered collection of distinct values. Encoding order is
// whatever iteration yields; callers must not rely on it.
type Set[T comparable] map[T]struct{}

// NewSet builds a set holding vals
func NewSet[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Has reports membership of v
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// SetMembers implements Setter
func (s Set[T]) SetMembers() []any {
	members := make([]any, 0, len(s))
	for v := range s {
		members = append(members, v)
	}
	return members
}

// Pair is a two element heterogeneous tuple
type Pair[A, B any] struct {
	First  A
	Second B
}

// TupleElems implements Tupler
func (p Pair[A, B]) TupleElems() []any { return []any{p.First, p.Second} }

// Triple is a three element heterogeneous tuple
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// TupleElems implements Tupler
func (t Triple[A, B, C]) TupleElems() []any { return []any{t.First, t.Second, t.Third} }

// TimeUnit is a NumPy datetime64 / timedelta64 unit code
type TimeUnit string

const (
	UnitYear        TimeUnit = "Y"
	UnitMonth       TimeUnit = "M"
	UnitWeek        TimeUnit = "W"
	UnitDay         TimeUnit = "D"
	UnitHour        TimeUnit = "h"
	UnitMinute      TimeUnit = "m"
	UnitSecond      TimeUnit = "s"
	UnitMillisecond TimeUnit = "ms"
	UnitMicrosecond TimeUnit = "us"
	UnitNanosecond  TimeUnit = "ns"
)

// Datetime64 is a count of Unit since the unix epoch. It is stored as the
// bare signed count.
type Datetime64 struct {
	Count int64
	Unit  TimeUnit
}

func (d Datetime64) String() string { return fmt.Sprintf("%d[%s]", d.Count, d.Unit) }

// Timedelta64 is a duration measured in Unit. It is stored as the bare
// signed count.
type Timedelta64 struct {
	Count int64
	Unit  TimeUnit
}

func (d Timedelta64) String() string { return fmt.Sprintf("%d[%s]", d.Count, d.Unit) }

// sortedKeys returns the keys of m in lexical order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

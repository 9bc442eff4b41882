package brush

import (
	"fmt"
	"sort"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	KindNumber ValueKind = iota + 1
	KindBool
	KindString
	KindRange
	KindTree
	KindBytes
)

func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindRange:
		return "range"
	case KindTree:
		return "tree"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Range is a nested numeric range as stored by the source application.
type Range struct {
	Min float64
	Max float64
}

// Value is one node of a raw settings tree. Only the field matching Kind is meaningful.
type Value struct {
	Kind  ValueKind
	Num   float64
	Bool  bool
	Str   string
	Range Range
	Tree  Tree
	Bytes []byte
}

func Number(v float64) Value { return Value{Kind: KindNumber, Num: v} }
func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }
func String(v string) Value { return Value{Kind: KindString, Str: v} }
func RangeOf(lo, hi float64) Value { return Value{Kind: KindRange, Range: Range{Min: lo, Max: hi}} }
func Nested(t Tree) Value { return Value{Kind: KindTree, Tree: t} }
func Bytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// Float reports the numeric reading of a scalar value. Booleans read as 0/1.
func (v Value) Float() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return strconv.Quote(v.Str)
	case KindRange:
		return fmt.Sprintf("[%g, %g]", v.Range.Min, v.Range.Max)
	case KindTree:
		return fmt.Sprintf("{%d keys}", len(v.Tree))
	case KindBytes:
		return fmt.Sprintf("<%d bytes>", len(v.Bytes))
	default:
		return "<invalid>"
	}
}

// Tree is a raw settings tree keyed by the source application's setting names.
type Tree map[string]Value

// Field is one flattened leaf of a Tree.
type Field struct {
	Key   string
	Value Value
}

// Flatten returns the leaves of t sorted by key. Nested trees produce dotted keys and
// ranges produce "<key>.min" and "<key>.max" leaves.
func (t Tree) Flatten() []Field {
	var out []Field
	t.flattenInto("", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (t Tree) flattenInto(prefix string, out *[]Field) {
	for k, v := range t {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v.Kind {
		case KindTree:
			v.Tree.flattenInto(key, out)
		case KindRange:
			*out = append(*out,
				Field{Key: key + ".min", Value: Number(v.Range.Min)},
				Field{Key: key + ".max", Value: Number(v.Range.Max)},
			)
		default:
			*out = append(*out, Field{Key: key, Value: v})
		}
	}
}

// Index returns the flattened leaves keyed by dotted path.
func (t Tree) Index() map[string]Value {
	fields := t.Flatten()
	out := make(map[string]Value, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for k, v := range t {
		switch v.Kind {
		case KindTree:
			v.Tree = v.Tree.Clone()
		case KindBytes:
			v.Bytes = append([]byte(nil), v.Bytes...)
		}
		out[k] = v
	}
	return out
}

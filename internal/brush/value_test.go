package brush

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTreeFlatten_SortedDottedKeys(t *testing.T) {
	t.Parallel()

	tree := Tree{
		"BrushSize": Number(20),
		"Pressure": Nested(Tree{
			"Curve": RangeOf(0.1, 0.9),
			"On":    Bool(true),
		}),
		"Alpha": String("50"),
	}

	var keys []string
	for _, f := range tree.Flatten() {
		keys = append(keys, f.Key)
	}
	want := []string{"Alpha", "BrushSize", "Pressure.Curve.max", "Pressure.Curve.min", "Pressure.On"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("Flatten keys mismatch (-want +got):\n%s", diff)
	}

	idx := tree.Index()
	if v, ok := idx["Pressure.Curve.max"].Float(); !ok || v != 0.9 {
		t.Fatalf("Pressure.Curve.max=%v ok=%v, want 0.9", v, ok)
	}
}

func TestValueFloat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		v    Value
		want float64
		ok   bool
	}{
		{Number(3.5), 3.5, true},
		{Bool(true), 1, true},
		{Bool(false), 0, true},
		{String("42"), 42, true},
		{String("soft"), 0, false},
		{Bytes([]byte{1}), 0, false},
		{RangeOf(0, 1), 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.v.Float()
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s.Float()=(%v,%v), want (%v,%v)", tc.v, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTreeClone_Deep(t *testing.T) {
	t.Parallel()

	orig := Tree{"Nested": Nested(Tree{"A": Number(1)}), "Blob": Bytes([]byte{1, 2})}
	cp := orig.Clone()
	cp["Nested"].Tree["A"] = Number(2)
	cp["Blob"].Bytes[0] = 9

	if got := orig["Nested"].Tree["A"].Num; got != 1 {
		t.Fatalf("clone shares nested tree: A=%v", got)
	}
	if got := orig["Blob"].Bytes[0]; got != 1 {
		t.Fatalf("clone shares bytes: %v", got)
	}
}

func TestSettingsMerge_OverridesWin(t *testing.T) {
	t.Parallel()

	base := Settings{"a": Float(1), "b": Flag(false)}
	merged := base.Merge(Settings{"b": Flag(true), "c": Int(3)})

	want := Settings{"a": Float(1), "b": Flag(true), "c": Int(3)}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("Merge mismatch (-want +got):\n%s", diff)
	}
	if base["b"].Bool {
		t.Fatalf("Merge mutated the receiver")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, merged.Keys()); diff != "" {
		t.Fatalf("Keys mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingAny(t *testing.T) {
	t.Parallel()

	if v, ok := Int(4).Any().(int64); !ok || v != 4 {
		t.Fatalf("Int(4).Any()=%#v", Int(4).Any())
	}
	if v, ok := Flag(true).Any().(bool); !ok || !v {
		t.Fatalf("Flag(true).Any()=%#v", Flag(true).Any())
	}
	if v, ok := Float(0.5).Any().(float64); !ok || v != 0.5 {
		t.Fatalf("Float(0.5).Any()=%#v", Float(0.5).Any())
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("boom"), ""},
		{fmt.Errorf("%w: x", ErrCorruptContainer), "CorruptContainer"},
		{fmt.Errorf("read: %w", fmt.Errorf("%w: y", ErrUnsupportedAssetFormat)), "UnsupportedAssetFormat"},
		{fmt.Errorf("%w: z", ErrWrite), "WriteError"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v)=%q, want %q", tc.err, got, tc.want)
		}
	}
}

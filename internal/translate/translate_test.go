package translate

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/floegence/brushport/internal/brush"
	"github.com/floegence/brushport/internal/mapping"
)

func newTranslator(t *testing.T) (*Translator, *mapping.Table) {
	t.Helper()
	table, err := mapping.Default()
	if err != nil {
		t.Fatalf("mapping.Default: %v", err)
	}
	return New(table), table
}

func diagsOf(diags []brush.Diagnostic, kind brush.DiagnosticKind, field string) []brush.Diagnostic {
	var out []brush.Diagnostic
	for _, d := range diags {
		if d.Kind == kind && d.Field == field {
			out = append(out, d)
		}
	}
	return out
}

func approx(t *testing.T, settings brush.Settings, key string, want float64) {
	t.Helper()
	got, ok := settings[key]
	if !ok {
		t.Fatalf("%s missing from settings", key)
	}
	if math.Abs(got.Num-want) > 1e-9 {
		t.Fatalf("%s=%v, want %g", key, got, want)
	}
}

func TestBrush_Deterministic(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	tree := brush.Tree{
		"BrushSize":       brush.Number(20),
		"BrushInterval":   brush.Number(10),
		"BrushOpacity":    brush.Number(140),
		"BrushUseTexture": brush.Number(1),
		"BrushGlitter":    brush.Number(3),
		"BrushMixColor":   brush.Number(80),
	}

	s1, d1 := tr.Brush(tree)
	s2, d2 := tr.Brush(tree.Clone())
	if diff := cmp.Diff(s1, s2); diff != "" {
		t.Fatalf("settings differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(d1, d2); diff != "" {
		t.Fatalf("diagnostics differ between runs (-first +second):\n%s", diff)
	}
}

func TestBrush_EmptyTreeDefaultsEverySupportedKey(t *testing.T) {
	t.Parallel()

	tr, table := newTranslator(t)
	settings, diags := tr.Brush(brush.Tree{})

	var wantFields []string
	for _, src := range table.Sources() {
		if table.Supported(src) {
			wantFields = append(wantFields, src)
		}
	}
	var gotFields []string
	for _, d := range diags {
		if d.Kind != brush.DefaultedMissing {
			t.Fatalf("unexpected diagnostic %s", d)
		}
		gotFields = append(gotFields, d.Field)
	}
	if diff := cmp.Diff(wantFields, gotFields); diff != "" {
		t.Fatalf("DefaultedMissing fields (-want +got):\n%s", diff)
	}

	for _, e := range table.Entries() {
		if e.Unsupported {
			continue
		}
		if got := settings[e.Target]; got != e.Default {
			t.Fatalf("%s=%v, want default %v", e.Target, got, e.Default)
		}
	}
	if diff := cmp.Diff(table.Targets(), settings.Keys()); diff != "" {
		t.Fatalf("emitted keys (-want +got):\n%s", diff)
	}
}

func TestBrush_ClampedOncePerSourceKey(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	settings, diags := tr.Brush(brush.Tree{
		"BrushInLength": brush.Number(150),
		"BrushUseIn":    brush.Number(1),
	})

	clamped := diagsOf(diags, brush.Clamped, "BrushInLength")
	if len(clamped) != 1 {
		t.Fatalf("want exactly one Clamped diagnostic, got %v", clamped)
	}
	if !strings.Contains(clamped[0].Detail, "150") {
		t.Fatalf("detail should mention the original value: %q", clamped[0].Detail)
	}
	approx(t, settings, "taperStartLength", 0.25)
	approx(t, settings, "pencilTaperStartLength", 0.25)
	if len(diagsOf(diags, brush.DefaultedMissing, "BrushInLength")) != 0 {
		t.Fatalf("present key must not be defaulted")
	}
}

func TestBrush_OutOfRangeInputsClampOnceAndStayInDomain(t *testing.T) {
	t.Parallel()

	tr, table := newTranslator(t)
	gates := map[string]float64{"BrushUseIn": 1, "BrushUseOut": 1, "BrushPatternOrderType": 3}

	for _, src := range table.Sources() {
		if !table.Supported(src) {
			continue
		}
		entries, _ := table.Lookup(src)
		d := entries[0].SourceDomain
		for _, x := range []float64{d.Min - 1, d.Max + 1} {
			for _, open := range []bool{false, true} {
				tree := brush.Tree{src: brush.Number(x)}
				if open {
					for k, v := range gates {
						if k != src {
							tree[k] = brush.Number(v)
						}
					}
				}
				settings, diags := tr.Brush(tree)

				var clamped []brush.Diagnostic
				for _, diag := range diags {
					if diag.Kind == brush.Clamped {
						clamped = append(clamped, diag)
					}
				}
				if len(clamped) != 1 || clamped[0].Field != src {
					t.Fatalf("%s=%g gates=%v: Clamped diagnostics=%v, want one on %s", src, x, open, clamped, src)
				}

				for _, e := range table.Entries() {
					if e.Unsupported {
						continue
					}
					got, ok := settings[e.Target]
					if !ok {
						t.Fatalf("%s=%g: %s missing", src, x, e.Target)
					}
					if got.Kind != e.Type {
						t.Fatalf("%s=%g: %s kind %s, want %s", src, x, e.Target, got.Kind, e.Type)
					}
					if got.Kind != brush.SettingBool && (math.IsNaN(got.Num) || !e.TargetDomain.Contains(got.Num)) {
						t.Fatalf("%s=%g gates=%v: %s=%g outside %v", src, x, open, e.Target, got.Num, e.TargetDomain)
					}
				}
			}
		}
	}
}

func TestBrush_UnknownAndUnsupportedKeys(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	_, diags := tr.Brush(brush.Tree{
		"BrushGlitter":    brush.Number(1),
		"BrushUseTexture": brush.Number(1),
	})

	unknown := diagsOf(diags, brush.Unsupported, "BrushGlitter")
	if len(unknown) != 1 || unknown[0].Detail != noAnalog {
		t.Fatalf("unknown key diagnostics: %v", unknown)
	}
	texture := diagsOf(diags, brush.Unsupported, "BrushUseTexture")
	if len(texture) != 1 || !strings.Contains(texture[0].Detail, "texture compositing") {
		t.Fatalf("unsupported key diagnostics: %v", texture)
	}
}

func TestBrush_NonNumericValueIsDefaulted(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	settings, diags := tr.Brush(brush.Tree{"BrushOpacity": brush.String("opaque")})

	got := diagsOf(diags, brush.DefaultedMissing, "BrushOpacity")
	if len(got) != 1 || !strings.Contains(got[0].Detail, "non-numeric") {
		t.Fatalf("diagnostics: %v", got)
	}
	approx(t, settings, "maxOpacity", 1)
}

func TestBrush_SpacingUsesSize(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	settings, _ := tr.Brush(brush.Tree{
		"BrushSize":     brush.Number(20),
		"BrushInterval": brush.Number(10),
		"BrushOpacity":  brush.Number(50),
	})
	approx(t, settings, "plotSpacing", 0.075)
	approx(t, settings, "maxOpacity", 0.5)
	approx(t, settings, "minSize", 0.02)
	approx(t, settings, "maxSize", 3)
}

func TestTip_OverridesReevaluateDependentRows(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	base := brush.Tree{
		"BrushSize":     brush.Number(20),
		"BrushInterval": brush.Number(10),
	}
	over := brush.Tree{
		"BrushSize":    brush.Number(100),
		"BrushOpacity": brush.Number(150),
		"BrushSparkle": brush.Number(1),
	}

	settings, diags := tr.Tip(base, over, 1)

	approx(t, settings, "plotSpacing", 0.06)
	approx(t, settings, "maxOpacity", 1)
	if _, ok := settings["shapeHardness"]; ok {
		t.Fatalf("rows untouched by overrides must not be emitted")
	}

	want := []brush.Diagnostic{
		{Field: "tips[1].BrushOpacity", Kind: brush.Clamped, Detail: "150 outside [0, 100], clamped to 100"},
	}
	if diff := cmp.Diff(want, diagsOf(diags, brush.Clamped, "tips[1].BrushOpacity")); diff != "" {
		t.Fatalf("Clamped diagnostics (-want +got):\n%s", diff)
	}
	if got := diagsOf(diags, brush.Unsupported, "tips[1].BrushSparkle"); len(got) != 1 {
		t.Fatalf("unknown override diagnostics: %v", got)
	}
	for _, d := range diags {
		if d.Kind == brush.DefaultedMissing {
			t.Fatalf("tip translation must not default: %s", d)
		}
	}
}

func TestTip_NoOverrides(t *testing.T) {
	t.Parallel()

	tr, _ := newTranslator(t)
	settings, diags := tr.Tip(brush.Tree{"BrushSize": brush.Number(20)}, nil, 0)
	if settings != nil || diags != nil {
		t.Fatalf("got %v %v, want nothing", settings, diags)
	}
}

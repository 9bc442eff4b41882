// Package translate turns a raw source settings tree into destination settings using a
// mapping table, collecting a diagnostic for every field it could not carry over verbatim.
package translate

import (
	"fmt"
	"math"
	"strings"

	"github.com/floegence/brushport/internal/brush"
	"github.com/floegence/brushport/internal/mapping"
)

const noAnalog = "no destination analog"

// Translator is safe for concurrent use; the table is never mutated.
type Translator struct {
	table *mapping.Table
}

// New returns a Translator driven by table.
func New(table *mapping.Table) *Translator {
	return &Translator{table: table}
}

// Brush translates brush-level settings. Every supported table key absent from tree is
// filled with its default and reported once as DefaultedMissing.
func (t *Translator) Brush(tree brush.Tree) (brush.Settings, []brush.Diagnostic) {
	index := tree.Index()
	lookup := numericLookup(index)
	out := make(brush.Settings)
	var diags []brush.Diagnostic
	seen := make(map[string]bool)

	for _, f := range tree.Flatten() {
		entries, ok := t.table.Lookup(f.Key)
		if !ok {
			diags = append(diags, unsupported(f.Key, noAnalog))
			continue
		}
		if entries[0].Unsupported {
			diags = append(diags, unsupported(f.Key, concept(entries[0])))
			continue
		}
		x, ok := f.Value.Float()
		if !ok {
			// Handled with the missing keys below.
			continue
		}
		seen[f.Key] = true
		x, diag := clamp(f.Key, x, entries[0].SourceDomain)
		if diag != nil {
			diags = append(diags, *diag)
		}
		for _, e := range entries {
			out[e.Target] = e.Apply(x, lookup)
		}
	}

	for _, src := range t.table.Sources() {
		if seen[src] || !t.table.Supported(src) {
			continue
		}
		entries, _ := t.table.Lookup(src)
		targets := make([]string, 0, len(entries))
		for _, e := range entries {
			out[e.Target] = e.Default
			targets = append(targets, fmt.Sprintf("%s=%s", e.Target, e.Default))
		}
		detail := "absent from source; default " + strings.Join(targets, ", ")
		if v, present := index[src]; present {
			detail = fmt.Sprintf("non-numeric value %s ignored; default %s", v, strings.Join(targets, ", "))
		}
		diags = append(diags, brush.Diagnostic{Field: src, Kind: brush.DefaultedMissing, Detail: detail})
	}
	return out, diags
}

// Tip translates tip-local overrides. Rows whose source key, gate key or secondary inputs
// appear in overrides are re-evaluated against overrides layered over base; nothing is
// defaulted. Diagnostic fields are prefixed with "tips[N].".
func (t *Translator) Tip(base, overrides brush.Tree, tip int) (brush.Settings, []brush.Diagnostic) {
	if len(overrides) == 0 {
		return nil, nil
	}
	prefix := fmt.Sprintf("tips[%d].", tip)
	overIndex := overrides.Index()
	layered := base.Index()
	for k, v := range overIndex {
		layered[k] = v
	}
	lookup := numericLookup(layered)

	out := make(brush.Settings)
	var diags []brush.Diagnostic
	for _, f := range overrides.Flatten() {
		entries, ok := t.table.Lookup(f.Key)
		switch {
		case !ok:
			diags = append(diags, unsupported(prefix+f.Key, noAnalog))
		case entries[0].Unsupported:
			diags = append(diags, unsupported(prefix+f.Key, concept(entries[0])))
		default:
			if _, numeric := f.Value.Float(); !numeric {
				diags = append(diags, unsupported(prefix+f.Key, fmt.Sprintf("non-numeric override %s ignored", f.Value)))
			}
		}
	}

	for _, e := range t.table.Entries() {
		if e.Unsupported || !touches(e, overIndex) {
			continue
		}
		v, ok := layered[e.Source]
		if !ok {
			continue
		}
		x, numeric := v.Float()
		if !numeric {
			continue
		}
		if _, overridden := overIndex[e.Source]; overridden {
			var diag *brush.Diagnostic
			x, diag = clamp(prefix+e.Source, x, e.SourceDomain)
			if diag != nil && !hasDiag(diags, *diag) {
				diags = append(diags, *diag)
			}
		} else {
			x = e.SourceDomain.Clamp(x)
		}
		out[e.Target] = e.Apply(x, lookup)
	}
	return out, diags
}

func touches(e mapping.Entry, overrides map[string]brush.Value) bool {
	for _, k := range e.Keys() {
		if _, ok := overrides[k]; ok {
			return true
		}
	}
	return false
}

func numericLookup(index map[string]brush.Value) mapping.Lookup {
	return func(key string) (float64, bool) {
		v, ok := index[key]
		if !ok {
			return 0, false
		}
		return v.Float()
	}
}

func clamp(field string, x float64, d mapping.Domain) (float64, *brush.Diagnostic) {
	if d.Contains(x) {
		return x, nil
	}
	c := d.Clamp(x)
	if math.IsNaN(x) {
		c = d.Min
	}
	return c, &brush.Diagnostic{
		Field:  field,
		Kind:   brush.Clamped,
		Detail: fmt.Sprintf("%g outside %s, clamped to %g", x, d, c),
	}
}

func unsupported(field, detail string) brush.Diagnostic {
	return brush.Diagnostic{Field: field, Kind: brush.Unsupported, Detail: detail}
}

func concept(e mapping.Entry) string {
	return e.Concept + " cannot be represented"
}

func hasDiag(diags []brush.Diagnostic, d brush.Diagnostic) bool {
	for _, existing := range diags {
		if existing == d {
			return true
		}
	}
	return false
}

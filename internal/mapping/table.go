package mapping

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/floegence/brushport/internal/brush"
)

//go:embed table.yaml
var builtinTable []byte

// Entry is one row of the mapping table.
type Entry struct {
	Source       string
	Target       string
	Type         brush.SettingKind
	Transform    Transform
	SourceDomain Domain
	TargetDomain Domain
	Default      brush.Setting
	When         *Condition
	Otherwise    brush.Setting
	// Unsupported rows have no Target; Concept names what cannot be represented.
	Unsupported bool
	Concept     string
}

// Apply evaluates the entry for an input already bounded to SourceDomain. The result is
// always of the entry's Type and within TargetDomain.
func (e Entry) Apply(x float64, lookup Lookup) brush.Setting {
	if e.When != nil {
		v, ok := 0.0, false
		if lookup != nil {
			v, ok = lookup(e.When.Key)
		}
		if !ok || !e.When.Holds(v) {
			return e.Otherwise
		}
	}
	return e.coerce(e.Transform.apply(x, e.SourceDomain, e.TargetDomain, lookup))
}

// Keys returns every source key the entry reads: the source key, the gate key and the
// transform's secondary inputs.
func (e Entry) Keys() []string {
	keys := []string{e.Source}
	if e.When != nil {
		keys = append(keys, e.When.Key)
	}
	return append(keys, e.Transform.Keys()...)
}

func (e Entry) coerce(o output) brush.Setting {
	switch e.Type {
	case brush.SettingBool:
		if o.isBool {
			return brush.Flag(o.b)
		}
		return brush.Flag(o.num != 0)
	}
	v := o.num
	if o.isBool {
		v = 0
		if o.b {
			v = 1
		}
	}
	if math.IsNaN(v) {
		v = e.TargetDomain.Min
	}
	v = e.TargetDomain.Clamp(v)
	if e.Type == brush.SettingInt {
		return brush.Int(int64(e.TargetDomain.Clamp(math.Round(v))))
	}
	return brush.Float(v)
}

// Table is the read-only mapping from source keys to entries. The zero value is empty.
type Table struct {
	version  string
	entries  []Entry
	bySource map[string][]int
	sources  []string
}

var defaultTable = sync.OnceValues(func() (*Table, error) {
	return Parse(builtinTable)
})

// Default returns the built-in table. It is parsed once per process.
func Default() (*Table, error) {
	return defaultTable()
}

// Load reads a table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping table %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("mapping table %s: %w", path, err)
	}
	return t, nil
}

// Parse builds a table from YAML and validates it.
func Parse(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mapping table: %w", err)
	}
	if len(f.Entries) == 0 {
		return nil, errors.New("mapping table has no entries")
	}

	t := &Table{
		version:  strings.TrimSpace(f.Version),
		bySource: make(map[string][]int, len(f.Entries)),
	}
	if t.version == "" {
		t.version = "1"
	}
	var errs error
	for i, raw := range f.Entries {
		e, err := buildEntry(raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("entry %d (%s): %w", i, raw.Source, err))
			continue
		}
		if _, seen := t.bySource[e.Source]; !seen {
			t.sources = append(t.sources, e.Source)
		}
		t.bySource[e.Source] = append(t.bySource[e.Source], len(t.entries))
		t.entries = append(t.entries, e)
	}
	if errs != nil {
		return nil, errs
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) validate() error {
	var errs error
	targets := make(map[string]string)
	for _, src := range t.sources {
		rows := t.bySource[src]
		first := t.entries[rows[0]]
		for _, idx := range rows[1:] {
			e := t.entries[idx]
			if e.Unsupported != first.Unsupported {
				errs = multierr.Append(errs, fmt.Errorf("source %s mixes supported and unsupported rows", src))
			}
			if !e.Unsupported && e.SourceDomain != first.SourceDomain {
				errs = multierr.Append(errs, fmt.Errorf("source %s declares domains %s and %s", src, first.SourceDomain, e.SourceDomain))
			}
		}
		for _, idx := range rows {
			e := t.entries[idx]
			if e.Unsupported {
				continue
			}
			if prev, dup := targets[e.Target]; dup {
				errs = multierr.Append(errs, fmt.Errorf("target %s is written by both %s and %s", e.Target, prev, src))
				continue
			}
			targets[e.Target] = src
		}
	}
	return errs
}

func buildEntry(raw entryYAML) (Entry, error) {
	e := Entry{
		Source:      strings.TrimSpace(raw.Source),
		Target:      strings.TrimSpace(raw.Target),
		Unsupported: raw.Unsupported,
		Concept:     strings.TrimSpace(raw.Concept),
	}
	if e.Source == "" {
		return Entry{}, errors.New("missing source")
	}
	if e.Unsupported {
		if e.Target != "" {
			return Entry{}, errors.New("unsupported entry must not name a target")
		}
		if e.Concept == "" {
			e.Concept = "no destination analog"
		}
		return e, nil
	}
	if e.Target == "" {
		return Entry{}, errors.New("missing target")
	}

	switch strings.ToLower(strings.TrimSpace(raw.Type)) {
	case "", "float":
		e.Type = brush.SettingFloat
	case "int":
		e.Type = brush.SettingInt
	case "bool":
		e.Type = brush.SettingBool
	default:
		return Entry{}, fmt.Errorf("unknown type %q", raw.Type)
	}

	var err error
	if e.SourceDomain, err = parseDomain(raw.SourceDomain); err != nil {
		return Entry{}, fmt.Errorf("source_domain: %w", err)
	}
	if e.Type == brush.SettingBool {
		e.TargetDomain = Domain{Min: 0, Max: 1}
	} else if e.TargetDomain, err = parseDomain(raw.TargetDomain); err != nil {
		return Entry{}, fmt.Errorf("target_domain: %w", err)
	}

	if e.Transform, err = buildTransform(raw.Transform); err != nil {
		return Entry{}, fmt.Errorf("transform: %w", err)
	}

	if !raw.Default.Set {
		return Entry{}, errors.New("missing default")
	}
	if e.Default, err = e.setting(raw.Default); err != nil {
		return Entry{}, fmt.Errorf("default: %w", err)
	}

	if raw.When != nil {
		key := strings.TrimSpace(raw.When.Key)
		if key == "" {
			return Entry{}, errors.New("when: missing key")
		}
		e.When = &Condition{Key: key, Equals: raw.When.Equals}
		if !raw.Otherwise.Set {
			return Entry{}, errors.New("when requires otherwise")
		}
		if e.Otherwise, err = e.setting(raw.Otherwise); err != nil {
			return Entry{}, fmt.Errorf("otherwise: %w", err)
		}
	}

	if e.Transform.Kind == Constant && e.Type != brush.SettingBool && !e.TargetDomain.Contains(e.Transform.Value) {
		return Entry{}, fmt.Errorf("constant %g outside target domain %s", e.Transform.Value, e.TargetDomain)
	}
	return e, nil
}

// setting converts a literal to the entry's type, rejecting values outside TargetDomain.
func (e Entry) setting(s scalar) (brush.Setting, error) {
	switch e.Type {
	case brush.SettingBool:
		return brush.Flag(s.truth()), nil
	case brush.SettingInt:
		v := s.float()
		if v != math.Trunc(v) {
			return brush.Setting{}, fmt.Errorf("%g is not an integer", v)
		}
		if !e.TargetDomain.Contains(v) {
			return brush.Setting{}, fmt.Errorf("%g outside target domain %s", v, e.TargetDomain)
		}
		return brush.Int(int64(v)), nil
	default:
		v := s.float()
		if !e.TargetDomain.Contains(v) {
			return brush.Setting{}, fmt.Errorf("%g outside target domain %s", v, e.TargetDomain)
		}
		return brush.Float(v), nil
	}
}

func parseDomain(bounds []float64) (Domain, error) {
	if len(bounds) != 2 {
		return Domain{}, fmt.Errorf("want [min, max], got %d values", len(bounds))
	}
	d := Domain{Min: bounds[0], Max: bounds[1]}
	if math.IsNaN(d.Min) || math.IsNaN(d.Max) || d.Min >= d.Max {
		return Domain{}, fmt.Errorf("invalid domain %s", d)
	}
	return d, nil
}

func buildTransform(raw transformYAML) (Transform, error) {
	t := Transform{
		Kind:      TransformKind(strings.ToLower(strings.TrimSpace(raw.Kind))),
		Equals:    raw.Equals,
		Then:      raw.Then.float(),
		Else:      raw.Else.float(),
		Component: strings.TrimSpace(raw.Component),
	}
	switch t.Kind {
	case Linear, Flip, Truth, All, Spacing, WetMix, Blend:
	case Curve:
		if len(raw.Points) < 2 {
			return Transform{}, errors.New("curve needs at least two points")
		}
		for i, p := range raw.Points {
			if len(p) != 2 {
				return Transform{}, fmt.Errorf("point %d: want [x, y]", i)
			}
			pt := Point{X: p[0], Y: p[1]}
			if pt.X < 0 || pt.X > 1 || pt.Y < 0 || pt.Y > 1 {
				return Transform{}, fmt.Errorf("point %d: (%g, %g) outside the unit square", i, pt.X, pt.Y)
			}
			if i > 0 && pt.X <= t.Points[i-1].X {
				return Transform{}, fmt.Errorf("point %d: x must increase", i)
			}
			t.Points = append(t.Points, pt)
		}
	case Constant:
		if !raw.Value.Set {
			return Transform{}, errors.New("constant needs a value")
		}
		t.Value = raw.Value.float()
		t.ValueBool = raw.Value.IsBool
	case Match:
		if !raw.Then.Set || !raw.Else.Set {
			return Transform{}, errors.New("match needs then and else")
		}
	case "":
		return Transform{}, errors.New("missing kind")
	default:
		return Transform{}, fmt.Errorf("unknown kind %q", raw.Kind)
	}

	if allowed, ok := components[t.Kind]; ok {
		if t.Component == "" {
			t.Component = allowed[0]
		}
		found := false
		for _, c := range allowed {
			found = found || c == t.Component
		}
		if !found {
			return Transform{}, fmt.Errorf("unknown %s component %q", t.Kind, t.Component)
		}
	}

	for role, in := range raw.With {
		key := strings.TrimSpace(in.Key)
		if key == "" {
			return Transform{}, fmt.Errorf("with %s: missing key", role)
		}
		t.With = append(t.With, Input{Role: role, Key: key, Default: in.Default})
	}
	sort.Slice(t.With, func(i, j int) bool { return t.With[i].Role < t.With[j].Role })
	for _, role := range requiredRoles[t.Kind] {
		found := false
		for _, in := range t.With {
			found = found || in.Role == role
		}
		if !found {
			return Transform{}, fmt.Errorf("%s needs input %q", t.Kind, role)
		}
	}
	return t, nil
}

// Version is the table's declared schema version.
func (t *Table) Version() string { return t.version }

// Len is the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Lookup returns the entries for a source key in table order.
func (t *Table) Lookup(source string) ([]Entry, bool) {
	rows, ok := t.bySource[source]
	if !ok {
		return nil, false
	}
	out := make([]Entry, 0, len(rows))
	for _, idx := range rows {
		out = append(out, t.entries[idx])
	}
	return out, true
}

// Entries returns a copy of all entries in table order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Sources returns the distinct source keys in table order.
func (t *Table) Sources() []string {
	return append([]string(nil), t.sources...)
}

// Targets returns every target key the table can emit, sorted.
func (t *Table) Targets() []string {
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		if !e.Unsupported {
			out = append(out, e.Target)
		}
	}
	sort.Strings(out)
	return out
}

// Supported reports whether the source key maps to at least one destination key.
func (t *Table) Supported(source string) bool {
	rows, ok := t.bySource[source]
	return ok && !t.entries[rows[0]].Unsupported
}

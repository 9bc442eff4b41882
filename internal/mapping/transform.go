package mapping

import (
	"fmt"
	"math"
	"sort"
)

// TransformKind tags the transform variant of an Entry.
type TransformKind string

const (
	// Linear rescales the source domain onto the target domain.
	Linear TransformKind = "linear"
	// Curve evaluates a piecewise-linear response in normalized space.
	Curve TransformKind = "curve"
	// Flip is a boolean polarity flip.
	Flip TransformKind = "flip"
	// Truth reads any non-zero input as true.
	Truth TransformKind = "truth"
	// Constant ignores the input.
	Constant TransformKind = "constant"
	// Match selects Then or Else depending on the input.
	Match TransformKind = "match"
	// All is true when the input and every With input are non-zero.
	All TransformKind = "all"
	// Spacing derives stamp spacing from the interval and the brush size.
	Spacing TransformKind = "spacing"
	// WetMix derives wet-mix dilution or charge from color blending intensity.
	WetMix TransformKind = "wetmix"
	// Blend derives the rendering blend flags from color blending intensity.
	Blend TransformKind = "blend"
)

// Roles each compound kind reads through With.
var requiredRoles = map[TransformKind][]string{
	Spacing: {"size"},
	WetMix:  {"watercolor", "alpha", "flow"},
	Blend:   {"watercolor", "alpha", "flow"},
}

var components = map[TransformKind][]string{
	WetMix: {"dilution", "charge"},
	Blend:  {"max_transfer", "modulated_transfer", "recursive_mixing"},
}

// Domain is a closed numeric interval.
type Domain struct {
	Min float64
	Max float64
}

func (d Domain) Contains(v float64) bool { return v >= d.Min && v <= d.Max }

// Clamp returns v bounded to d.
func (d Domain) Clamp(v float64) float64 {
	return math.Min(d.Max, math.Max(d.Min, v))
}

// Normalize maps v onto [0, 1].
func (d Domain) Normalize(v float64) float64 {
	if d.Max == d.Min {
		return 0
	}
	return (d.Clamp(v) - d.Min) / (d.Max - d.Min)
}

// Lerp maps t in [0, 1] onto d.
func (d Domain) Lerp(t float64) float64 {
	return d.Min + t*(d.Max-d.Min)
}

func (d Domain) String() string { return fmt.Sprintf("[%g, %g]", d.Min, d.Max) }

// Point is a control point of a response curve. X and Y are normalized.
type Point struct {
	X float64
	Y float64
}

// Input is a secondary source key read by a compound transform.
type Input struct {
	Role    string
	Key     string
	Default float64
}

// Condition gates an entry on another source key. A nil Equals means "non-zero".
type Condition struct {
	Key    string
	Equals *float64
}

func (c Condition) Holds(v float64) bool {
	if c.Equals == nil {
		return v != 0
	}
	return v == *c.Equals
}

// Lookup reads a numeric source value by flattened key.
type Lookup func(key string) (float64, bool)

// Transform is the tagged transform variant of an Entry.
type Transform struct {
	Kind      TransformKind
	Points    []Point
	Value     float64
	ValueBool bool
	Equals    *float64
	Then      float64
	Else      float64
	Component string
	// With is sorted by role.
	With []Input
}

// Keys returns the secondary source keys the transform reads.
func (t Transform) Keys() []string {
	out := make([]string, 0, len(t.With))
	for _, in := range t.With {
		out = append(out, in.Key)
	}
	return out
}

func (t Transform) input(role string, lookup Lookup) float64 {
	for _, in := range t.With {
		if in.Role != role {
			continue
		}
		if lookup != nil {
			if v, ok := lookup(in.Key); ok {
				return v
			}
		}
		return in.Default
	}
	return 0
}

// output is the raw result of a transform before it is coerced to the entry's type.
type output struct {
	num    float64
	b      bool
	isBool bool
}

func number(v float64) output { return output{num: v} }
func truth(v bool) output { return output{b: v, isBool: true} }

func (t Transform) apply(x float64, src, dst Domain, lookup Lookup) output {
	switch t.Kind {
	case Linear:
		return number(dst.Lerp(src.Normalize(x)))
	case Curve:
		return number(dst.Lerp(evalCurve(t.Points, src.Normalize(x))))
	case Flip:
		return truth(x == 0)
	case Truth:
		return truth(x != 0)
	case Constant:
		if t.ValueBool {
			return truth(t.Value != 0)
		}
		return number(t.Value)
	case Match:
		hit := x != 0
		if t.Equals != nil {
			hit = x == *t.Equals
		}
		if hit {
			return number(t.Then)
		}
		return number(t.Else)
	case All:
		ok := x != 0
		for _, in := range t.With {
			ok = ok && t.input(in.Role, lookup) != 0
		}
		return truth(ok)
	case Spacing:
		return number(plotSpacing(x, t.input("size", lookup)))
	case WetMix:
		w := newWetInputs(x, t, lookup)
		switch t.Component {
		case "charge":
			return number(w.charge())
		default:
			return number(w.dilution())
		}
	case Blend:
		w := newWetInputs(x, t, lookup)
		maxTransfer, modulated, recursive := w.blendFlags()
		switch t.Component {
		case "modulated_transfer":
			return truth(modulated)
		case "recursive_mixing":
			return truth(recursive)
		default:
			return truth(maxTransfer)
		}
	default:
		return number(0)
	}
}

// evalCurve interpolates linearly between the points surrounding t. Points are sorted by X.
func evalCurve(points []Point, t float64) float64 {
	if len(points) == 0 {
		return t
	}
	if t <= points[0].X {
		return points[0].Y
	}
	last := points[len(points)-1]
	if t >= last.X {
		return last.Y
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].X >= t })
	a, b := points[i-1], points[i]
	if b.X == a.X {
		return b.Y
	}
	return a.Y + (t-a.X)/(b.X-a.X)*(b.Y-a.Y)
}

// plotSpacing converts a stamp interval in pixels to spacing relative to the brush size.
// Larger brushes tolerate a larger multiplier before strokes look beaded.
func plotSpacing(interval, size float64) float64 {
	if size <= 0 {
		return 0.01
	}
	factor := 0.6
	switch {
	case size < 50:
		factor = 0.15
	case size < 100:
		factor = 0.3
	}
	return interval / size * factor
}

type wetInputs struct {
	watercolor bool
	color      float64
	alpha      float64
	flow       float64
}

func newWetInputs(color float64, t Transform, lookup Lookup) wetInputs {
	unit := Domain{Min: 0, Max: 1}
	return wetInputs{
		watercolor: t.input("watercolor", lookup) != 0,
		color:      unit.Clamp(color / 100),
		alpha:      unit.Clamp(t.input("alpha", lookup) / 100),
		flow:       unit.Clamp(t.input("flow", lookup) / 100),
	}
}

const (
	dilutionGamma = 0.75
	dilutionCap   = 0.7
	minCharge     = 0.2
)

func (w wetInputs) dilution() float64 {
	if !w.watercolor && w.color < 0.5 {
		return 0
	}
	base := math.Pow(w.color, dilutionGamma)
	flowBrake := 0.5 + 0.5*(1-w.flow)
	alphaPush := 0.2 * w.alpha
	return math.Min(dilutionCap, base*dilutionCap*flowBrake+alphaPush*dilutionCap)
}

func (w wetInputs) charge() float64 {
	return math.Max(minCharge, 1-w.dilution())
}

// blendFlags picks one of the glaze presets: light (no mixing), intense, heavy or uniform.
func (w wetInputs) blendFlags() (maxTransfer, modulated, recursive bool) {
	if !w.watercolor && w.color <= 0.05 && w.alpha <= 0.05 {
		return true, false, false
	}
	switch {
	case w.color >= 0.75 || w.alpha >= 0.75:
		return true, true, true
	case w.flow > 0.8:
		return true, false, true
	default:
		return false, true, true
	}
}

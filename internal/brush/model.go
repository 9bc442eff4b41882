package brush

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// SourceBrush is one parsed source brush. It is owned by a single conversion run.
type SourceBrush struct {
	// Name is the source file stem; it names the output file.
	Name string
	// Modified is the source file's modification time. It stamps every output entry so
	// converting the same file twice yields identical bytes.
	Modified time.Time
	Settings Tree
	// Tips are in declaration order.
	Tips []SourceTip
}

// SourceTip is one brush-tip asset group. Grain and Preview are optional.
type SourceTip struct {
	Index     int
	Shape     []byte
	Grain     []byte
	Preview   []byte
	Overrides Tree
}

// SettingKind is the destination type of a translated setting.
type SettingKind uint8

const (
	SettingFloat SettingKind = iota + 1
	SettingInt
	SettingBool
)

func (k SettingKind) String() string {
	switch k {
	case SettingFloat:
		return "float"
	case SettingInt:
		return "int"
	case SettingBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Setting is a single destination value. Num holds float and int settings.
type Setting struct {
	Kind SettingKind
	Num  float64
	Bool bool
}

// Float builds a float setting.
func Float(v float64) Setting { return Setting{Kind: SettingFloat, Num: v} }

// Int stores v as a whole number; it is serialized as an integer.
func Int(v int64) Setting { return Setting{Kind: SettingInt, Num: float64(v)} }

// Flag builds a boolean setting.
func Flag(v bool) Setting { return Setting{Kind: SettingBool, Bool: v} }

// Any returns the Go value used when the setting is serialized.
func (s Setting) Any() any {
	switch s.Kind {
	case SettingBool:
		return s.Bool
	case SettingInt:
		return int64(s.Num)
	default:
		return s.Num
	}
}

func (s Setting) String() string {
	switch s.Kind {
	case SettingBool:
		return strconv.FormatBool(s.Bool)
	case SettingInt:
		return strconv.FormatInt(int64(s.Num), 10)
	default:
		return strconv.FormatFloat(s.Num, 'g', -1, 64)
	}
}

// Settings maps destination keys to values.
type Settings map[string]Setting

// Keys returns the keys of s in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a copy of s with over applied on top.
func (s Settings) Merge(over Settings) Settings {
	out := make(Settings, len(s)+len(over))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// TargetTip holds PNG-encoded destination assets. Grain is nil when the source had none.
type TargetTip struct {
	Index     int
	Shape     []byte
	Grain     []byte
	Preview   []byte
	Overrides Settings
}

// TargetBrush is the translated counterpart of a SourceBrush.
type TargetBrush struct {
	Name     string
	Created  time.Time
	Settings Settings
	Tips     []TargetTip
}

// DiagnosticKind classifies a non-fatal translation finding.
type DiagnosticKind uint8

const (
	Unsupported DiagnosticKind = iota + 1
	Clamped
	DefaultedMissing
)

func (k DiagnosticKind) String() string {
	switch k {
	case Unsupported:
		return "Unsupported"
	case Clamped:
		return "Clamped"
	case DefaultedMissing:
		return "DefaultedMissing"
	default:
		return "Unknown"
	}
}

// Diagnostic is surfaced to the caller and never aborts a run.
type Diagnostic struct {
	Field  string
	Kind   DiagnosticKind
	Detail string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Kind, d.Field, d.Detail)
}

// Result is returned by a successful conversion.
type Result struct {
	ProducedPaths []string
	Diagnostics   []Diagnostic
}

package mapping

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk shape of a mapping table.
type tableFile struct {
	Version string      `yaml:"version"`
	Entries []entryYAML `yaml:"entries"`
}

type entryYAML struct {
	Source       string         `yaml:"source"`
	Target       string         `yaml:"target"`
	Type         string         `yaml:"type"`
	Transform    transformYAML  `yaml:"transform"`
	SourceDomain []float64      `yaml:"source_domain"`
	TargetDomain []float64      `yaml:"target_domain"`
	Default      scalar         `yaml:"default"`
	When         *conditionYAML `yaml:"when"`
	Otherwise    scalar         `yaml:"otherwise"`
	Unsupported  bool           `yaml:"unsupported"`
	Concept      string         `yaml:"concept"`
}

type transformYAML struct {
	Kind      string               `yaml:"kind"`
	Points    [][]float64          `yaml:"points"`
	Value     scalar               `yaml:"value"`
	Equals    *float64             `yaml:"equals"`
	Then      scalar               `yaml:"then"`
	Else      scalar               `yaml:"else"`
	Component string               `yaml:"component"`
	With      map[string]inputYAML `yaml:"with"`
}

type inputYAML struct {
	Key     string  `yaml:"key"`
	Default float64 `yaml:"default"`
}

type conditionYAML struct {
	Key    string   `yaml:"key"`
	Equals *float64 `yaml:"equals"`
}

// scalar is a YAML scalar that may be a number or a boolean.
type scalar struct {
	Set    bool
	IsBool bool
	Bool   bool
	Num    float64
}

// UnmarshalYAML accepts a number or a boolean.
func (s *scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected number or boolean, got %v", node.Line, node.Kind)
	}
	switch node.Tag {
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*s = scalar{Set: true, IsBool: true, Bool: b}
		return nil
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*s = scalar{Set: true, Num: f}
		return nil
	default:
		return fmt.Errorf("line %d: expected number or boolean, got %q", node.Line, node.Value)
	}
}

func (s scalar) float() float64 {
	if s.IsBool {
		if s.Bool {
			return 1
		}
		return 0
	}
	return s.Num
}

func (s scalar) truth() bool {
	if s.IsBool {
		return s.Bool
	}
	return s.Num != 0
}

// Package scenario describes a scene and a sequence animating it in YAML and
// builds both against an evaluation linker.
package scenario

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = eris.New("invalid scenario")

// Scenario is the root document.
type Scenario struct {
	Name       string              `yaml:"name"`
	Range      []float64           `yaml:"range"`
	Completion string              `yaml:"completion"`
	Objects    []Object            `yaml:"objects"`
	Bindings   map[string][]string `yaml:"bindings"`
	Tracks     []Track             `yaml:"tracks"`
	Protocol   []ProtocolEntity    `yaml:"protocol"`
}

// Object is a host object placed in the scene. Every object is bound under
// its ID.
type Object struct {
	ID       string      `yaml:"id"`
	Kind     string      `yaml:"kind"` // actor, component or light
	Mobility string      `yaml:"mobility"`
	Parent   string      `yaml:"parent"`
	Location [3]float64  `yaml:"location"`
	Rotation [3]float64  `yaml:"rotation"` // pitch, yaw, roll in degrees
	Scale    *[3]float64 `yaml:"scale"`
	Opacity  *float64    `yaml:"opacity"`
}

// Track animates one binding.
type Track struct {
	Name     string    `yaml:"name"`
	Binding  string    `yaml:"binding"`
	Sections []Section `yaml:"sections"`
}

// Section is a property or attach section. Fields that do not apply to its
// kind are ignored.
type Section struct {
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"` // property (default) or attach
	Range       []float64 `yaml:"range"`
	Blend       string    `yaml:"blend"`
	Completion  string    `yaml:"completion"`
	Bias        int16     `yaml:"bias"`
	EaseIn      float64   `yaml:"ease_in"`
	EaseOut     float64   `yaml:"ease_out"`
	EaseInKind  string    `yaml:"ease_in_kind"`
	EaseOutKind string    `yaml:"ease_out_kind"`
	Weight      *Channel  `yaml:"weight"`
	Inactive    bool      `yaml:"inactive"`

	Property string             `yaml:"property"`
	Path     string             `yaml:"path"`
	Channels map[string]Channel `yaml:"channels"`
	Bool     *BoolChannel       `yaml:"bool"`
	BaseTime float64            `yaml:"base_time"`

	Parent     string `yaml:"parent"`
	AttachRule string `yaml:"attach_rule"`
	DetachRule string `yaml:"detach_rule"`
}

// Channel is a keyed curve or a scripted expression.
type Channel struct {
	Keys       []Key    `yaml:"keys"`
	Default    *float64 `yaml:"default"`
	Expression string   `yaml:"expression"`
}

// Key is one curve keyframe.
type Key struct {
	Time   float64 `yaml:"time"`
	Value  float64 `yaml:"value"`
	Interp string  `yaml:"interp"`
	Arrive float64 `yaml:"arrive"`
	Leave  float64 `yaml:"leave"`
}

// BoolChannel is a stepped boolean curve.
type BoolChannel struct {
	Keys []struct {
		Time  float64 `yaml:"time"`
		Value bool    `yaml:"value"`
	} `yaml:"keys"`
	Default *bool `yaml:"default"`
}

// ProtocolEntity maps a remote control address onto a float property.
type ProtocolEntity struct {
	Name     string    `yaml:"name"`
	Protocol string    `yaml:"protocol"`
	Address  string    `yaml:"address"`
	Object   string    `yaml:"object"`
	Path     string    `yaml:"path"`
	Mappings []Mapping `yaml:"mappings"`
}

// Mapping is one protocol range mapping entry.
type Mapping struct {
	Input float64 `yaml:"input"`
	Value float64 `yaml:"value"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading scenario %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "loading scenario %s", path)
	}
	return s, nil
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "parsing scenario")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the document is self-consistent. Property names and paths
// are checked when building.
func (s *Scenario) Validate() error {
	if err := validRange(s.Range, "scenario range"); err != nil {
		return err
	}
	ids := make(map[string]bool, len(s.Objects))
	for _, o := range s.Objects {
		if o.ID == "" {
			return eris.Wrap(ErrInvalid, "object without id")
		}
		if ids[o.ID] {
			return eris.Wrapf(ErrInvalid, "duplicate object %q", o.ID)
		}
		ids[o.ID] = true
	}
	for _, o := range s.Objects {
		if o.Parent != "" && !ids[o.Parent] {
			return eris.Wrapf(ErrInvalid, "object %q has unknown parent %q", o.ID, o.Parent)
		}
	}
	for id, members := range s.Bindings {
		for _, m := range members {
			if !ids[m] {
				return eris.Wrapf(ErrInvalid, "binding %q references unknown object %q", id, m)
			}
		}
	}
	for _, t := range s.Tracks {
		for _, sec := range t.Sections {
			if err := validRange(sec.Range, "section "+sec.Name); err != nil {
				return err
			}
			switch sec.Kind {
			case "", "property":
				if sec.Property == "" {
					return eris.Wrapf(ErrInvalid, "section %q has no property", sec.Name)
				}
				for name, ch := range sec.Channels {
					if len(ch.Keys) > 0 && ch.Expression != "" {
						return eris.Wrapf(ErrInvalid, "channel %s of section %q has both keys and an expression", name, sec.Name)
					}
				}
			case "attach":
				if sec.Parent == "" {
					return eris.Wrapf(ErrInvalid, "attach section %q has no parent binding", sec.Name)
				}
			default:
				return eris.Wrapf(ErrInvalid, "section %q has unknown kind %q", sec.Name, sec.Kind)
			}
		}
	}
	for _, p := range s.Protocol {
		if !ids[p.Object] {
			return eris.Wrapf(ErrInvalid, "protocol entity %q targets unknown object %q", p.Name, p.Object)
		}
		if len(p.Mappings) < 2 {
			return eris.Wrapf(ErrInvalid, "protocol entity %q needs at least two mappings", p.Name)
		}
	}
	return nil
}

func validRange(r []float64, what string) error {
	switch {
	case len(r) == 0:
		return nil
	case len(r) != 2:
		return eris.Wrapf(ErrInvalid, "%s must be [start, end]", what)
	case r[1] < r[0]:
		return eris.Wrapf(ErrInvalid, "%s ends before it starts", what)
	}
	return nil
}

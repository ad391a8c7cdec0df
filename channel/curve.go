// Package channel provides the time-varying value sources sections animate
// properties with: keyframed curves, boolean curves, scripted expressions and
// easing functions.
package channel

import (
	"slices"
	"sort"
)

// Interpolation is how a curve moves from one key to the next.
type Interpolation uint8

const (
	Constant Interpolation = iota
	Linear
	Cubic
)

func (i Interpolation) String() string {
	switch i {
	case Constant:
		return "constant"
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	}
	return "unknown"
}

// ParseInterpolation maps a name to an Interpolation. Unknown names are linear.
func ParseInterpolation(s string) Interpolation {
	switch s {
	case "constant":
		return Constant
	case "cubic":
		return Cubic
	}
	return Linear
}

// Key is one keyframe. Tangents are slopes in value per second and are only
// used by cubic interpolation.
type Key struct {
	Time          float64
	Value         float64
	Interp        Interpolation
	ArriveTangent float64
	LeaveTangent  float64
}

// Curve is a keyframed scalar channel.
type Curve struct {
	Keys       []Key
	Default    float64
	HasDefault bool
}

// NewCurve builds a curve from keys in any order.
func NewCurve(keys ...Key) *Curve {
	c := &Curve{Keys: slices.Clone(keys)}
	slices.SortStableFunc(c.Keys, func(a, b Key) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
	return c
}

// ConstantCurve is a curve with no keys and a default value.
func ConstantCurve(v float64) *Curve {
	return &Curve{Default: v, HasDefault: true}
}

// Evaluate samples the curve. Times before the first key or after the last
// one hold the boundary value.
func (c *Curve) Evaluate(t float64) (float64, bool) {
	n := len(c.Keys)
	if n == 0 {
		return c.Default, c.HasDefault
	}
	if t <= c.Keys[0].Time {
		return c.Keys[0].Value, true
	}
	if t >= c.Keys[n-1].Time {
		return c.Keys[n-1].Value, true
	}
	i := sort.Search(n, func(i int) bool { return c.Keys[i].Time > t }) - 1
	k0, k1 := c.Keys[i], c.Keys[i+1]
	dt := k1.Time - k0.Time
	if dt <= 0 {
		return k1.Value, true
	}
	s := (t - k0.Time) / dt
	switch k0.Interp {
	case Constant:
		return k0.Value, true
	case Cubic:
		s2 := s * s
		s3 := s2 * s
		h00 := 2*s3 - 3*s2 + 1
		h10 := s3 - 2*s2 + s
		h01 := -2*s3 + 3*s2
		h11 := s3 - s2
		return h00*k0.Value + h10*dt*k0.LeaveTangent + h01*k1.Value + h11*dt*k1.ArriveTangent, true
	}
	return k0.Value + (k1.Value-k0.Value)*s, true
}

// SetKey sets the value at time t, updating an existing key at exactly that
// time or inserting a new one with the given interpolation. It returns the key
// index.
func (c *Curve) SetKey(t, v float64, interp Interpolation) int {
	i := sort.Search(len(c.Keys), func(i int) bool { return c.Keys[i].Time >= t })
	if i < len(c.Keys) && c.Keys[i].Time == t {
		c.Keys[i].Value = v
		return i
	}
	c.Keys = slices.Insert(c.Keys, i, Key{Time: t, Value: v, Interp: interp})
	return i
}

// BoolKey is one key of a boolean curve.
type BoolKey struct {
	Time  float64
	Value bool
}

// BoolCurve is a stepped boolean channel.
type BoolCurve struct {
	Keys       []BoolKey
	Default    bool
	HasDefault bool
}

// EvaluateBool samples the curve: the value of the last key at or before t.
func (c *BoolCurve) EvaluateBool(t float64) (bool, bool) {
	if len(c.Keys) == 0 {
		return c.Default, c.HasDefault
	}
	i := sort.Search(len(c.Keys), func(i int) bool { return c.Keys[i].Time > t }) - 1
	if i < 0 {
		i = 0
	}
	return c.Keys[i].Value, true
}

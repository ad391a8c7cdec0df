// Package math3d holds the value types animated properties are made of:
// vectors, rotators, quaternions, transforms and colors.
package math3d

import "math"

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi

	// KindaSmallNumber is the tolerance used by the NearlyEqual helpers.
	KindaSmallNumber = 1e-4
)

// Vector3 is a 3-component vector.
type Vector3 struct {
	X, Y, Z float64
}

// Vec3 constructs a vector.
func Vec3(x, y, z float64) Vector3 { return Vector3{x, y, z} }

// One is the unit-scale vector.
var One = Vector3{1, 1, 1}

func (v Vector3) Add(o Vector3) Vector3 { return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vector3) Sub(o Vector3) Vector3 { return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vector3) Mul(o Vector3) Vector3 { return Vector3{v.X * o.X, v.Y * o.Y, v.Z * o.Z} }
func (v Vector3) Scale(s float64) Vector3 {
	return Vector3{v.X * s, v.Y * s, v.Z * s}
}
func (v Vector3) Dot(o Vector3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vector3) Cross(o Vector3) Vector3 {
	return Vector3{v.Y*o.Z - v.Z*o.Y, v.Z*o.X - v.X*o.Z, v.X*o.Y - v.Y*o.X}
}
func (v Vector3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Lerp interpolates between v and o.
func (v Vector3) Lerp(o Vector3, alpha float64) Vector3 {
	return v.Add(o.Sub(v).Scale(alpha))
}

// NearlyEqual compares component-wise within tol.
func (v Vector3) NearlyEqual(o Vector3, tol float64) bool {
	return math.Abs(v.X-o.X) <= tol && math.Abs(v.Y-o.Y) <= tol && math.Abs(v.Z-o.Z) <= tol
}

// Rotator is an Euler rotation in degrees.
type Rotator struct {
	Pitch, Yaw, Roll float64
}

// NormalizeAxis wraps an angle into (-180, 180].
func NormalizeAxis(angle float64) float64 {
	angle = math.Mod(angle, 360)
	if angle < 0 {
		angle += 360
	}
	if angle > 180 {
		angle -= 360
	}
	return angle
}

// Normalize wraps every axis into (-180, 180].
func (r Rotator) Normalize() Rotator {
	return Rotator{NormalizeAxis(r.Pitch), NormalizeAxis(r.Yaw), NormalizeAxis(r.Roll)}
}

func (r Rotator) Add(o Rotator) Rotator {
	return Rotator{r.Pitch + o.Pitch, r.Yaw + o.Yaw, r.Roll + o.Roll}
}

// NearlyEqual compares normalized axes within tol degrees.
func (r Rotator) NearlyEqual(o Rotator, tol float64) bool {
	d := r.Normalize()
	e := o.Normalize()
	return math.Abs(NormalizeAxis(d.Pitch-e.Pitch)) <= tol &&
		math.Abs(NormalizeAxis(d.Yaw-e.Yaw)) <= tol &&
		math.Abs(NormalizeAxis(d.Roll-e.Roll)) <= tol
}

// Quaternion converts the rotator to a quaternion.
func (r Rotator) Quaternion() Quat {
	const half = degToRad / 2
	sp, cp := math.Sincos(math.Mod(r.Pitch, 360) * half)
	sy, cy := math.Sincos(math.Mod(r.Yaw, 360) * half)
	sr, cr := math.Sincos(math.Mod(r.Roll, 360) * half)
	return Quat{
		X: cr*sp*sy - sr*cp*cy,
		Y: -cr*sp*cy - sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
		W: cr*cp*cy + sr*sp*sy,
	}
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// Mul returns q*o: the rotation o followed by q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Inverse returns the conjugate of a unit quaternion.
func (q Quat) Inverse() Quat {
	return Quat{-q.X, -q.Y, -q.Z, q.W}
}

// RotateVector rotates v by q.
func (q Quat) RotateVector(v Vector3) Vector3 {
	qv := Vector3{q.X, q.Y, q.Z}
	t := qv.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(qv.Cross(t))
}

// Rotator converts the quaternion to Euler angles.
func (q Quat) Rotator() Rotator {
	const singularity = 0.4999995
	test := q.Z*q.X - q.W*q.Y
	yawY := 2 * (q.W*q.Z + q.X*q.Y)
	yawX := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	var r Rotator
	switch {
	case test < -singularity:
		r.Pitch = -90
		r.Yaw = math.Atan2(yawY, yawX) * radToDeg
		r.Roll = NormalizeAxis(-r.Yaw - 2*math.Atan2(q.X, q.W)*radToDeg)
	case test > singularity:
		r.Pitch = 90
		r.Yaw = math.Atan2(yawY, yawX) * radToDeg
		r.Roll = NormalizeAxis(r.Yaw - 2*math.Atan2(q.X, q.W)*radToDeg)
	default:
		r.Pitch = math.Asin(2*test) * radToDeg
		r.Yaw = math.Atan2(yawY, yawX) * radToDeg
		r.Roll = math.Atan2(-2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y)) * radToDeg
	}
	return r
}

// Transform is a translation, rotation and scale applied scale-first.
type Transform struct {
	Translation Vector3
	Rotation    Quat
	Scale       Vector3
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rotation: IdentityQuat, Scale: One}
}

// TransformPosition applies the transform to a point.
func (t Transform) TransformPosition(v Vector3) Vector3 {
	return t.Rotation.RotateVector(t.Scale.Mul(v)).Add(t.Translation)
}

// Compose returns t expressed in parent's space: t is applied first.
func (t Transform) Compose(parent Transform) Transform {
	return Transform{
		Translation: parent.TransformPosition(t.Translation),
		Rotation:    parent.Rotation.Mul(t.Rotation),
		Scale:       t.Scale.Mul(parent.Scale),
	}
}

// Inverse returns the inverse transform. Scale is assumed non-zero.
func (t Transform) Inverse() Transform {
	inv := t.Rotation.Inverse()
	invScale := Vector3{1 / t.Scale.X, 1 / t.Scale.Y, 1 / t.Scale.Z}
	return Transform{
		Translation: invScale.Mul(inv.RotateVector(t.Translation.Scale(-1))),
		Rotation:    inv,
		Scale:       invScale,
	}
}

// Euler converts the transform to its Euler operational form.
func (t Transform) Euler() EulerTransform {
	return EulerTransform{Location: t.Translation, Rotation: t.Rotation.Rotator(), Scale: t.Scale}
}

// EulerTransform is the operational form of a transform: nine independent
// scalars that can be blended channel by channel.
type EulerTransform struct {
	Location Vector3
	Rotation Rotator
	Scale    Vector3
}

// Transform converts back to a quaternion transform.
func (e EulerTransform) Transform() Transform {
	return Transform{Translation: e.Location, Rotation: e.Rotation.Quaternion(), Scale: e.Scale}
}

// NearlyEqual compares two Euler transforms.
func (e EulerTransform) NearlyEqual(o EulerTransform, tol float64) bool {
	return e.Location.NearlyEqual(o.Location, tol) && e.Rotation.NearlyEqual(o.Rotation, tol) && e.Scale.NearlyEqual(o.Scale, tol)
}

// LinearColor is a linear-space RGBA color.
type LinearColor struct {
	R, G, B, A float64
}

// Lerp interpolates between c and o.
func (c LinearColor) Lerp(o LinearColor, alpha float64) LinearColor {
	return LinearColor{
		R: c.R + (o.R-c.R)*alpha,
		G: c.G + (o.G-c.G)*alpha,
		B: c.B + (o.B-c.B)*alpha,
		A: c.A + (o.A-c.A)*alpha,
	}
}

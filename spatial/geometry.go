// Package spatial provides the scene geometry and psychoacoustic cue
// model for the binaural renderer.
//
// The coordinate system is right-handed with +X forward, +Y left and +Z
// up, seen from the listener. Azimuth is reported in degrees clockwise
// from above (+90 is to the listener's right), elevation in degrees above
// the horizontal plane.
package spatial

import "math"

// Vec3 is a 3D vector in meters.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z}
}

// Sub returns v - w.
func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and w.
func (v Vec3) Dot(w Vec3) float64 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}

// Length returns the Euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length, or the zero vector for
// near-zero input.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l < 1e-12 {
		return Vec3{}
	}

	return v.Scale(1 / l)
}

// Quaternion is a rotation quaternion. Orientation quaternions are
// expected to be (close to) unit length; Normalize before storing
// externally sourced values.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion returns the no-rotation quaternion.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// QuaternionFromAxisAngle builds a rotation of angleRad around axis.
func QuaternionFromAxisAngle(axis Vec3, angleRad float64) Quaternion {
	a := axis.Normalize()
	s := math.Sin(angleRad / 2)

	return Quaternion{
		W: math.Cos(angleRad / 2),
		X: a.X * s,
		Y: a.Y * s,
		Z: a.Z * s,
	}
}

// Normalize returns q scaled to unit length; the identity is returned
// for degenerate input.
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n < 1e-12 {
		return IdentityQuaternion()
	}

	return Quaternion{q.W / n, q.X / n, q.Y / n, q.Z / n}
}

// Conjugate returns the conjugate, which inverts a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{q.W, -q.X, -q.Y, -q.Z}
}

// Mul returns the Hamilton product q*r.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Rotate applies the rotation to v.
func (q Quaternion) Rotate(v Vec3) Vec3 {
	p := Quaternion{0, v.X, v.Y, v.Z}
	r := q.Mul(p).Mul(q.Conjugate())

	return Vec3{r.X, r.Y, r.Z}
}

// Listener holds the single listener's pose.
type Listener struct {
	Position    Vec3
	Orientation Quaternion
}

// Direction is a listener-relative source direction.
type Direction struct {
	AzimuthDeg   float64 // [-180, 180], +90 = right
	ElevationDeg float64 // [-90, 90]
	Distance     float64 // meters
}

// RelativeDirection derives the direction of source as seen by the
// listener, compensating for head orientation by rotating the offset
// into head space with the inverse orientation. A source at (or
// extremely close to) the listener resolves to the frontal direction at
// distance zero.
func RelativeDirection(l Listener, source Vec3) Direction {
	rel := source.Sub(l.Position)
	local := l.Orientation.Conjugate().Rotate(rel)

	dist := local.Length()
	if dist < 1e-9 {
		return Direction{}
	}

	// +Y is left, so clockwise azimuth needs the sign flipped.
	az := -math.Atan2(local.Y, local.X) * 180 / math.Pi

	horizontal := math.Hypot(local.X, local.Y)
	if horizontal < 1e-9 {
		horizontal = 1e-9
	}

	el := math.Atan2(local.Z, horizontal) * 180 / math.Pi

	if az > 180 {
		az -= 360
	} else if az < -180 {
		az += 360
	}

	return Direction{
		AzimuthDeg:   az,
		ElevationDeg: el,
		Distance:     dist,
	}
}

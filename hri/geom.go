package hri

import (
	"image"
	"math"
	"time"
)

// Rectangle is an axis-aligned region in image coordinates.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Image converts rectangle to integer image.Rectangle (truncating)
func (rect Rectangle) Image() image.Rectangle {
	return image.Rect(int(rect.X), int(rect.Y), int(rect.X+rect.Width), int(rect.Y+rect.Height))
}

// Center returns center of rectangle
func (rect Rectangle) Center() Point {
	return Point{
		X: rect.X + rect.Width/2.0,
		Y: rect.Y + rect.Height/2.0,
	}
}

type Point struct {
	X float64
	Y float64
}

// Vector3 is a translation in meters.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

// Quaternion is a rotation. The zero value is not a valid rotation, use IdentityQuaternion.
type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// IdentityQuaternion returns rotation which does nothing
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Mul returns q*other (apply other first, then q)
func (q Quaternion) Mul(other Quaternion) Quaternion {
	return Quaternion{
		X: q.W*other.X + q.X*other.W + q.Y*other.Z - q.Z*other.Y,
		Y: q.W*other.Y - q.X*other.Z + q.Y*other.W + q.Z*other.X,
		Z: q.W*other.Z + q.X*other.Y - q.Y*other.X + q.Z*other.W,
		W: q.W*other.W - q.X*other.X - q.Y*other.Y - q.Z*other.Z,
	}
}

// Conjugate returns inverse rotation for unit quaternion
func (q Quaternion) Conjugate() Quaternion {
	return Quaternion{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Normalized returns unit quaternion. Degenerate quaternion becomes identity.
func (q Quaternion) Normalized() Quaternion {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n < 1e-12 {
		return IdentityQuaternion()
	}
	return Quaternion{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Rotate applies rotation to vector
func (q Quaternion) Rotate(v Vector3) Vector3 {
	p := Quaternion{X: v.X, Y: v.Y, Z: v.Z}
	r := q.Mul(p).Mul(q.Conjugate())
	return Vector3{X: r.X, Y: r.Y, Z: r.Z}
}

// Transform is the pose of TargetFrame expressed in ReferenceFrame,
// resolved at Stamp.
type Transform struct {
	ReferenceFrame string
	TargetFrame    string
	Stamp          time.Time
	Translation    Vector3
	Rotation       Quaternion
}

// Inverse returns the pose of ReferenceFrame expressed in TargetFrame
func (tr Transform) Inverse() Transform {
	inv := tr.Rotation.Conjugate()
	t := inv.Rotate(tr.Translation)
	return Transform{
		ReferenceFrame: tr.TargetFrame,
		TargetFrame:    tr.ReferenceFrame,
		Stamp:          tr.Stamp,
		Translation:    Vector3{X: -t.X, Y: -t.Y, Z: -t.Z},
		Rotation:       inv,
	}
}

// Compose chains tr (A->B) with next (B->C) into A->C. The older non-zero stamp wins.
func (tr Transform) Compose(next Transform) Transform {
	t := tr.Rotation.Rotate(next.Translation)
	stamp := tr.Stamp
	if stamp.IsZero() || (!next.Stamp.IsZero() && next.Stamp.Before(stamp)) {
		stamp = next.Stamp
	}
	return Transform{
		ReferenceFrame: tr.ReferenceFrame,
		TargetFrame:    next.TargetFrame,
		Stamp:          stamp,
		Translation: Vector3{
			X: tr.Translation.X + t.X,
			Y: tr.Translation.Y + t.Y,
			Z: tr.Translation.Z + t.Z,
		},
		Rotation: tr.Rotation.Mul(next.Rotation).Normalized(),
	}
}

package hri

import (
	"image"
	"math"
	"testing"
	"time"
)

func vectorsClose(a, b Vector3) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

// yaw returns rotation around Z axis
func yaw(angle float64) Quaternion {
	return Quaternion{Z: math.Sin(angle / 2), W: math.Cos(angle / 2)}
}

func TestNewRectFrom(t *testing.T) {
	rect := NewRectFrom(image.Rect(10, 20, 15, 25))
	correctAnswer := Rectangle{X: 10, Y: 20, Width: 5, Height: 5}
	if rect != correctAnswer {
		t.Errorf("Wrong answer: %v, correct answer: %v", rect, correctAnswer)
	}
	if rect.Image() != image.Rect(10, 20, 15, 25) {
		t.Errorf("Wrong image rectangle: %v", rect.Image())
	}
	center := rect.Center()
	if center != (Point{X: 12.5, Y: 22.5}) {
		t.Errorf("Wrong center: %v", center)
	}
}

func TestQuaternionRotate(t *testing.T) {
	q := yaw(math.Pi / 2)
	answer := q.Rotate(Vector3{X: 1})
	correctAnswer := Vector3{Y: 1}
	if !vectorsClose(answer, correctAnswer) {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correctAnswer)
	}
}

func TestTransformComposeInverse(t *testing.T) {
	stamp := time.Unix(100, 0)
	mapToBase := Transform{
		ReferenceFrame: "map",
		TargetFrame:    "base",
		Stamp:          stamp,
		Translation:    Vector3{X: 1},
		Rotation:       yaw(math.Pi / 2),
	}
	baseToFace := Transform{
		ReferenceFrame: "base",
		TargetFrame:    "face_1",
		Stamp:          stamp.Add(time.Second),
		Translation:    Vector3{X: 2},
		Rotation:       IdentityQuaternion(),
	}
	mapToFace := mapToBase.Compose(baseToFace)
	if mapToFace.ReferenceFrame != "map" || mapToFace.TargetFrame != "face_1" {
		t.Errorf("Wrong frames: %s -> %s", mapToFace.ReferenceFrame, mapToFace.TargetFrame)
	}
	if !vectorsClose(mapToFace.Translation, Vector3{X: 1, Y: 2}) {
		t.Errorf("Wrong translation: %v", mapToFace.Translation)
	}
	if !mapToFace.Stamp.Equal(stamp) {
		t.Errorf("Older stamp expected, got %v", mapToFace.Stamp)
	}

	roundTrip := mapToFace.Compose(mapToFace.Inverse())
	if !vectorsClose(roundTrip.Translation, Vector3{}) {
		t.Errorf("Transform composed with its inverse should be identity, got %v", roundTrip.Translation)
	}
	if math.Abs(math.Abs(roundTrip.Rotation.W)-1) > eps {
		t.Errorf("Rotation composed with its inverse should be identity, got %v", roundTrip.Rotation)
	}
}

func TestQuaternionNormalizedDegenerate(t *testing.T) {
	if (Quaternion{}).Normalized() != IdentityQuaternion() {
		t.Error("Zero quaternion should normalize to identity")
	}
}

package hri

import (
	"strings"
	"testing"
	"time"
)

func TestBodyAttributes(t *testing.T) {
	bus := NewMemoryBus()
	hooks := newHookRecorder()
	body, err := NewBody("42", "", bus, NewTransformBuffer(), WithLogger(discardLogger()), WithUpdateHook(hooks.hook))
	if err != nil {
		t.Fatal(err)
	}
	defer body.Destroy()

	if body.FrameName() != "body_42" {
		t.Errorf("Wrong frame name: %s", body.FrameName())
	}
	if body.ReferenceFrame() != DefaultReferenceFrame {
		t.Errorf("Empty reference frame should fall back to %s, got %s", DefaultReferenceFrame, body.ReferenceFrame())
	}
	if body.Variant() != VariantBody {
		t.Errorf("Wrong variant: %v", body.Variant())
	}
	if _, ok := body.Snapshot(AttrLandmarks); ok {
		t.Error("Body has no landmarks")
	}

	bus.PublishMessage("/humans/bodies/42/roi", RegionOfInterestMsg{XOffset: 3, YOffset: 4, Width: 30, Height: 60})
	hooks.expect(t, AttrRoI)
	rect, ok := body.RoI()
	if !ok || rect != (Rectangle{X: 3, Y: 4, Width: 30, Height: 60}) {
		t.Errorf("Wrong RoI: %v (%v)", rect, ok)
	}
	if _, ok := body.SmoothedRoI(); ok {
		t.Error("Smoothed RoI should be absent when smoothing is disabled")
	}

	skeletonMsg := Skeleton2DMsg{Skeleton: make([]PointOfInterestMsg, NumSkeletonPoints)}
	skeletonMsg.Skeleton[0] = PointOfInterestMsg{X: 0.5, Y: 0.25, C: 1}
	bus.PublishMessage("/humans/bodies/42/skeleton2d", skeletonMsg)
	hooks.expect(t, AttrSkeleton)
	skeleton, ok := body.Skeleton()
	if !ok || len(skeleton) != NumSkeletonPoints {
		t.Fatalf("Wrong skeleton: %v (%v)", skeleton, ok)
	}
	skeleton[0].X = 0
	again, _ := body.Skeleton()
	if again[0].X != 0.5 {
		t.Error("Skeleton should be returned as a copy")
	}

	bus.PublishMessage("/humans/bodies/42/cropped", ImageMsg{Height: 1, Width: 1, Step: 3, Encoding: "rgb8", Data: []byte{1, 2, 3}})
	hooks.expect(t, AttrCropped)
	if img, ok := body.Cropped(); !ok || img.Encoding != "rgb8" {
		t.Errorf("Wrong cropped image: %+v (%v)", img, ok)
	}
}

func TestBodyPoseOfUnpublishedFrame(t *testing.T) {
	body, err := NewBody("42", "map", NewMemoryBus(), NewTransformBuffer(), WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer body.Destroy()

	start := time.Now()
	_, ok := body.Transform()
	elapsed := time.Since(start)
	if ok {
		t.Error("Transform of unpublished frame should be absent")
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Pose query took %v, default budget is %v", elapsed, DefaultPoseTimeout)
	}
}

func TestBodyPoseWithoutLookup(t *testing.T) {
	body, err := NewBody("1", "map", NewMemoryBus(), nil, WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer body.Destroy()
	if _, ok := body.Pose("body_1", time.Millisecond); ok {
		t.Error("Pose should be absent without transform service")
	}
}

func TestBodySmoothing(t *testing.T) {
	bus := NewMemoryBus()
	hooks := newHookRecorder()
	body, err := NewBody("2", "map", bus, nil, WithLogger(discardLogger()), WithUpdateHook(hooks.hook), WithSmoothing(0))
	if err != nil {
		t.Fatal(err)
	}
	defer body.Destroy()

	for i := 0; i < 10; i++ {
		bus.PublishMessage("/humans/bodies/2/roi", RegionOfInterestMsg{XOffset: 50, YOffset: 50, Width: 20, Height: 40})
		hooks.expect(t, AttrRoI)
	}
	smoothed, ok := body.SmoothedRoI()
	if !ok {
		t.Fatal("Smoothed RoI should be present")
	}
	correctAnswer := Rectangle{X: 50, Y: 50, Width: 20, Height: 40}
	tolerance := 1.0
	if abs(smoothed.X-correctAnswer.X) > tolerance || abs(smoothed.Y-correctAnswer.Y) > tolerance ||
		abs(smoothed.Width-correctAnswer.Width) > tolerance || abs(smoothed.Height-correctAnswer.Height) > tolerance {
		t.Errorf("Static region should stay put: %v, expected: %v", smoothed, correctAnswer)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestBodyPoseReportsUnknownFrame(t *testing.T) {
	buf := NewTransformBuffer()
	if err := buf.SetTransform(Transform{ReferenceFrame: "map", TargetFrame: "base_link"}); err != nil {
		t.Fatal(err)
	}
	logs := &logBuffer{}
	body, err := NewBody("42", "map", NewMemoryBus(), buf, WithLogger(logs.logger()))
	if err != nil {
		t.Fatal(err)
	}
	defer body.Destroy()

	for i := 0; i < 10; i++ {
		logs.Reset()
		if _, ok := body.Pose("", 10*time.Millisecond); ok {
			t.Fatal("Pose of unpublished frame should be absent")
		}
		out := logs.String()
		if !strings.Contains(out, "kind=frame_unknown") {
			t.Errorf("Failure should be reported as frame_unknown, got log: %s", out)
		}
		if !strings.Contains(out, "frame=body_42") {
			t.Errorf("Failure should name the frame, got log: %s", out)
		}
	}
}

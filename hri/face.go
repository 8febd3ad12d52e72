package hri

import (
	"time"
)

// GazeFramePrefix is prefix of gaze frame names (REP-155)
const GazeFramePrefix = "gaze_"

// Face is a tracked face.
//
// Use example:
//
//	registry, _ := hri.NewFaceRegistry(bus, tfBuffer, hri.DefaultConfig())
//	for id, handle := range registry.Handles() {
//		face, ok := handle.Get()
//		if !ok {
//			continue // face vanished meanwhile
//		}
//		if roi, ok := face.RoI(); ok {
//			fmt.Printf("face_%s: %vx%v\n", id, roi.Width, roi.Height)
//		}
//	}
type Face struct {
	*feature

	roi            Mailbox[Rectangle]
	smoothedRoI    Mailbox[Rectangle]
	cropped        Mailbox[Image]
	aligned        Mailbox[Image]
	landmarks      Mailbox[FacialLandmarks]
	softBiometrics Mailbox[SoftBiometrics]

	smoother *roiSmoother
}

// NewFace creates face with given id, subscribes to its topics under
// /humans/faces/<id> and starts its listener. On error nothing is left
// running and no subscription is kept.
func NewFace(id, referenceFrame string, source UpdateSource, lookup TransformLookup, opts ...Option) (*Face, error) {
	base, err := newFeature(VariantFace, id, referenceFrame, lookup, opts)
	if err != nil {
		return nil, err
	}
	face := &Face{
		feature: base,
	}
	base.view = readOnly{face}
	registerField(base, AttrRoI, &face.roi)
	registerField(base, AttrCropped, &face.cropped)
	registerField(base, AttrAligned, &face.aligned)
	registerField(base, AttrLandmarks, &face.landmarks)
	registerField(base, AttrSoftBiometrics, &face.softBiometrics)
	if base.opts.smoothing {
		face.smoother = newROISmoother(base.opts.smoothingDT)
		registerField(base, AttrSmoothedRoI, &face.smoothedRoI)
	}

	routes := []route{
		{attr: AttrRoI, apply: face.onRoI},
		{attr: AttrCropped, apply: face.onCropped},
		{attr: AttrAligned, apply: face.onAligned},
		{attr: AttrLandmarks, apply: face.onLandmarks},
		{attr: AttrSoftBiometrics, apply: face.onSoftBiometrics},
	}
	if err := base.start(source, routes); err != nil {
		return nil, err
	}
	base.logger.Info("new face detected", "namespace", base.ns)
	return face, nil
}

func (face *Face) onRoI(payload []byte) error {
	rect, err := DecodeRegionOfInterest(payload)
	if err != nil {
		return err
	}
	now := face.opts.now()
	face.roi.Store(rect, now)
	if err := storeSmoothed(face.smoother, &face.smoothedRoI, rect, now); err != nil {
		face.logger.Warn("failed to smooth region of interest", "error", err)
	}
	return nil
}

func (face *Face) onCropped(payload []byte) error {
	img, err := DecodeImage(payload)
	if err != nil {
		return err
	}
	face.cropped.Store(img, face.opts.now())
	return nil
}

func (face *Face) onAligned(payload []byte) error {
	img, err := DecodeImage(payload)
	if err != nil {
		return err
	}
	face.aligned.Store(img, face.opts.now())
	return nil
}

func (face *Face) onLandmarks(payload []byte) error {
	landmarks, err := DecodeFacialLandmarks(payload)
	if err != nil {
		return err
	}
	face.landmarks.Store(landmarks, face.opts.now())
	return nil
}

func (face *Face) onSoftBiometrics(payload []byte) error {
	biometrics, err := DecodeSoftBiometrics(payload)
	if err != nil {
		return err
	}
	face.softBiometrics.Store(biometrics, face.opts.now())
	return nil
}

// RoI returns face's region of interest in the source image coordinates
func (face *Face) RoI() (Rectangle, bool) {
	return face.roi.Load()
}

// SmoothedRoI returns Kalman-smoothed region of interest. Always absent unless
// smoothing is enabled.
func (face *Face) SmoothedRoI() (Rectangle, bool) {
	return face.smoothedRoI.Load()
}

// Cropped returns face image cropped from the source image.
// Be careful: image data is shared with other readers and must not be modified.
func (face *Face) Cropped() (Image, bool) {
	return face.cropped.Load()
}

// Aligned returns face image cropped and aligned to keep eyes horizontal.
// Be careful: image data is shared with other readers and must not be modified.
func (face *Face) Aligned() (Image, bool) {
	return face.aligned.Load()
}

// Landmarks returns facial landmarks
func (face *Face) Landmarks() (FacialLandmarks, bool) {
	return face.landmarks.Load()
}

// SoftBiometrics returns latest soft-biometric estimate
func (face *Face) SoftBiometrics() (SoftBiometrics, bool) {
	return face.softBiometrics.Load()
}

// Age returns estimated age in years
func (face *Face) Age() (float64, bool) {
	biometrics, ok := face.softBiometrics.Load()
	if !ok {
		return 0, false
	}
	return biometrics.Age, true
}

// Gender returns estimated gender. Undefined gender is reported as absent.
func (face *Face) Gender() (Gender, bool) {
	biometrics, ok := face.softBiometrics.Load()
	if !ok {
		return GenderUndefined, false
	}
	if biometrics.Gender == GenderUndefined {
		return GenderUndefined, false
	}
	return biometrics.Gender, true
}

// GazeFrame returns name of face's gaze frame
func (face *Face) GazeFrame() string {
	return GazeFramePrefix + face.id
}

// GazeTransform returns pose of the gaze frame in the reference frame
func (face *Face) GazeTransform() (Transform, bool) {
	return face.Pose(face.GazeFrame(), 0)
}

// storeSmoothed feeds smoother (if any) and stores its output
func storeSmoothed(smoother *roiSmoother, mb *Mailbox[Rectangle], rect Rectangle, now time.Time) error {
	if smoother == nil {
		return nil
	}
	smoothed, err := smoother.Update(rect)
	if err != nil {
		return err
	}
	mb.Store(smoothed, now)
	return nil
}

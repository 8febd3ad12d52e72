package hri

// Body is a tracked human body.
type Body struct {
	*feature

	roi         Mailbox[Rectangle]
	smoothedRoI Mailbox[Rectangle]
	cropped     Mailbox[Image]
	skeleton    Mailbox[[]SkeletonPoint]

	smoother *roiSmoother
}

// NewBody creates body with given id, subscribes to its topics under
// /humans/bodies/<id> and starts its listener. On error nothing is left
// running and no subscription is kept.
func NewBody(id, referenceFrame string, source UpdateSource, lookup TransformLookup, opts ...Option) (*Body, error) {
	base, err := newFeature(VariantBody, id, referenceFrame, lookup, opts)
	if err != nil {
		return nil, err
	}
	body := &Body{
		feature: base,
	}
	base.view = readOnly{body}
	registerField(base, AttrRoI, &body.roi)
	registerField(base, AttrCropped, &body.cropped)
	registerField(base, AttrSkeleton, &body.skeleton)
	if base.opts.smoothing {
		body.smoother = newROISmoother(base.opts.smoothingDT)
		registerField(base, AttrSmoothedRoI, &body.smoothedRoI)
	}

	routes := []route{
		{attr: AttrRoI, apply: body.onRoI},
		{attr: AttrCropped, apply: body.onCropped},
		{attr: AttrSkeleton, apply: body.onSkeleton},
	}
	if err := base.start(source, routes); err != nil {
		return nil, err
	}
	base.logger.Info("new body detected", "namespace", base.ns)
	return body, nil
}

func (body *Body) onRoI(payload []byte) error {
	rect, err := DecodeRegionOfInterest(payload)
	if err != nil {
		return err
	}
	now := body.opts.now()
	body.roi.Store(rect, now)
	if err := storeSmoothed(body.smoother, &body.smoothedRoI, rect, now); err != nil {
		body.logger.Warn("failed to smooth region of interest", "error", err)
	}
	return nil
}

func (body *Body) onCropped(payload []byte) error {
	img, err := DecodeImage(payload)
	if err != nil {
		return err
	}
	body.cropped.Store(img, body.opts.now())
	return nil
}

func (body *Body) onSkeleton(payload []byte) error {
	skeleton, err := DecodeSkeleton2D(payload)
	if err != nil {
		return err
	}
	body.skeleton.Store(skeleton, body.opts.now())
	return nil
}

// RoI returns body's region of interest in the source image coordinates
func (body *Body) RoI() (Rectangle, bool) {
	return body.roi.Load()
}

// SmoothedRoI returns Kalman-smoothed region of interest. Always absent unless
// smoothing is enabled.
func (body *Body) SmoothedRoI() (Rectangle, bool) {
	return body.smoothedRoI.Load()
}

// Cropped returns body image cropped from the source image.
// Be careful: image data is shared with other readers and must not be modified.
func (body *Body) Cropped() (Image, bool) {
	return body.cropped.Load()
}

// Skeleton returns copy of 2D skeleton keypoints. Coordinates are normalized
// to the source image size.
func (body *Body) Skeleton() ([]SkeletonPoint, bool) {
	skeleton, ok := body.skeleton.Load()
	if !ok {
		return nil, false
	}
	out := make([]SkeletonPoint, len(skeleton))
	copy(out, skeleton)
	return out, true
}

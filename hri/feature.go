// Package hri keeps live records of humans (bodies and faces) perceived by
// external detectors. Every tracked feature absorbs asynchronous updates on
// its own listener goroutine and exposes lock-free snapshots of the latest
// values together with bounded-time pose queries.
package hri

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Variant is the kind of tracked feature
type Variant uint8

const (
	VariantBody Variant = iota + 1
	VariantFace
)

// Root returns namespace root of variant's topics
func (v Variant) Root() string {
	switch v {
	case VariantBody:
		return "/humans/bodies"
	case VariantFace:
		return "/humans/faces"
	default:
		return "/humans/unknown"
	}
}

// FramePrefix returns prefix of variant's frame names (REP-155)
func (v Variant) FramePrefix() string {
	switch v {
	case VariantBody:
		return "body_"
	case VariantFace:
		return "face_"
	default:
		return "unknown_"
	}
}

// TrackedTopic returns topic listing currently tracked ids of variant
func (v Variant) TrackedTopic() string {
	return v.Root() + "/tracked"
}

func (v Variant) String() string {
	switch v {
	case VariantBody:
		return "body"
	case VariantFace:
		return "face"
	default:
		return "unknown"
	}
}

// Attribute names an observable attribute of a tracked feature
type Attribute string

const (
	AttrRoI            Attribute = "roi"
	AttrCropped        Attribute = "cropped"
	AttrAligned        Attribute = "aligned"
	AttrLandmarks      Attribute = "landmarks"
	AttrSoftBiometrics Attribute = "softbiometrics"
	AttrSkeleton       Attribute = "skeleton2d"
	// AttrSmoothedRoI is derived from AttrRoI and has no topic of its own
	AttrSmoothedRoI Attribute = "smoothed_roi"
)

// Subscription is an established subscription to an update topic
type Subscription interface {
	Unsubscribe() error
}

// UpdateSource is the external message distribution layer.
// Handler may be called from any goroutine, also shortly after Unsubscribe
// returned: features discard such late updates.
type UpdateSource interface {
	Subscribe(topic string, handler func(payload []byte)) (Subscription, error)
}

// View is the read-only capability set of a tracked feature
type View interface {
	ID() string
	Variant() Variant
	Namespace() string
	FrameName() string
	ReferenceFrame() string
	Attributes() []Attribute
	Snapshot(attr Attribute) (any, bool)
	Updated(attr Attribute) (time.Time, bool)
	Transform() (Transform, bool)
	Pose(target string, timeout time.Duration) (Transform, bool)
}

// Feature is a tracked feature with its lifecycle
type Feature interface {
	View
	Destroy()
	Destroyed() bool
	Stats() FeatureStats
}

// UpdateHook is called on the listener goroutine after every applied update.
// It receives a View without Destroy. Destroying the feature from the hook by
// other means (captured feature, Registry.Reconcile, Registry.Close) deadlocks.
type UpdateHook func(view View, attr Attribute)

// FeatureStats is a snapshot of feature counters
type FeatureStats struct {
	Listener     ListenerStats
	DecodeErrors uint64
}

// field is type-erased access to a Mailbox
type field interface {
	loadAny() (any, bool)
	loadStamped() (any, time.Time, bool)
}

type mailboxField[T any] struct {
	mb *Mailbox[T]
}

func (f mailboxField[T]) loadAny() (any, bool) {
	return f.mb.Load()
}

func (f mailboxField[T]) loadStamped() (any, time.Time, bool) {
	return f.mb.LoadStamped()
}

// route binds attribute's topic to a decoding function run on the listener
type route struct {
	attr  Attribute
	apply func(payload []byte) error
}

// feature is the lifecycle shared by Body and Face
type feature struct {
	id             string
	variant        Variant
	ns             string
	referenceFrame string

	opts     options
	logger   *slog.Logger
	resolver *PoseResolver

	fields   map[Attribute]field
	attrs    []Attribute
	listener *Listener
	subs     []Subscription

	decodeErrors atomic.Uint64
	destroyed    atomic.Bool
	destroyOnce  sync.Once

	view View
}

func newFeature(variant Variant, id, referenceFrame string, lookup TransformLookup, opts []Option) (*feature, error) {
	if id == "" {
		return nil, errors.Errorf("%s id must not be empty", variant)
	}
	if referenceFrame == "" {
		referenceFrame = DefaultReferenceFrame
	}
	o := buildOptions(opts)
	ns := variant.Root() + "/" + id
	return &feature{
		id:             id,
		variant:        variant,
		ns:             ns,
		referenceFrame: referenceFrame,
		opts:           o,
		logger:         o.logger.With(variant.String(), id),
		resolver:       NewPoseResolver(lookup),
		fields:         make(map[Attribute]field),
	}, nil
}

func registerField[T any](f *feature, attr Attribute, mb *Mailbox[T]) {
	f.fields[attr] = mailboxField[T]{mb: mb}
	f.attrs = append(f.attrs, attr)
}

// start spawns listener and subscribes every route. On failure every
// established subscription is released and listener is stopped.
func (f *feature) start(source UpdateSource, routes []route) error {
	if source == nil {
		return errors.New("update source is nil")
	}
	f.listener = newListener(f.opts.queueDepth, f.logger)
	f.subs = make([]Subscription, 0, len(routes))
	for _, r := range routes {
		topic := f.ns + "/" + string(r.attr)
		sub, err := source.Subscribe(topic, func(payload []byte) {
			f.listener.Post(topic, payload, func(payload []byte) {
				f.apply(topic, r, payload)
			})
		})
		if err != nil {
			f.listener.Stop()
			f.releaseSubscriptions()
			return errors.Wrapf(err, "Can't subscribe to %s", topic)
		}
		f.subs = append(f.subs, sub)
	}
	return nil
}

func (f *feature) apply(topic string, r route, payload []byte) {
	if err := r.apply(payload); err != nil {
		f.decodeErrors.Add(1)
		f.logger.Warn("discarding update", "topic", topic, "error", err)
		return
	}
	if f.opts.hook != nil {
		f.opts.hook(f.view, r.attr)
	}
}

func (f *feature) releaseSubscriptions() {
	for i := len(f.subs) - 1; i >= 0; i-- {
		if err := f.subs[i].Unsubscribe(); err != nil {
			f.logger.Warn("failed to unsubscribe", "error", err)
		}
	}
	f.subs = nil
}

// ID returns feature's identifier
func (f *feature) ID() string {
	return f.id
}

// Variant returns feature's kind
func (f *feature) Variant() Variant {
	return f.variant
}

// Namespace returns root of feature's topics
func (f *feature) Namespace() string {
	return f.ns
}

// FrameName returns name of frame attached to the feature
func (f *feature) FrameName() string {
	return f.variant.FramePrefix() + f.id
}

// ReferenceFrame returns frame in which poses are expressed
func (f *feature) ReferenceFrame() string {
	return f.referenceFrame
}

// Attributes lists observable attributes
func (f *feature) Attributes() []Attribute {
	out := make([]Attribute, len(f.attrs))
	copy(out, f.attrs)
	return out
}

// Snapshot returns latest value of attribute, false if nothing was received yet
// or feature has no such attribute
func (f *feature) Snapshot(attr Attribute) (any, bool) {
	fl, ok := f.fields[attr]
	if !ok {
		return nil, false
	}
	return fl.loadAny()
}

// Updated returns instant of attribute's latest update
func (f *feature) Updated(attr Attribute) (time.Time, bool) {
	fl, ok := f.fields[attr]
	if !ok {
		return time.Time{}, false
	}
	_, updated, ok := fl.loadStamped()
	return updated, ok
}

// Staleness returns time elapsed since latest update of attribute
func (f *feature) Staleness(attr Attribute) (time.Duration, bool) {
	updated, ok := f.Updated(attr)
	if !ok {
		return 0, false
	}
	return f.opts.now().Sub(updated), true
}

// Transform returns pose of the feature's frame in the reference frame
func (f *feature) Transform() (Transform, bool) {
	return f.Pose("", 0)
}

// Pose returns pose of target frame (feature's frame when empty) in the
// reference frame. Zero timeout means configured default. Lookup failures
// are logged and reported as absent pose.
func (f *feature) Pose(target string, timeout time.Duration) (Transform, bool) {
	return f.PoseContext(context.Background(), target, timeout)
}

// PoseContext is like Pose but also stops when ctx is done
func (f *feature) PoseContext(ctx context.Context, target string, timeout time.Duration) (Transform, bool) {
	if target == "" {
		target = f.FrameName()
	}
	if timeout <= 0 {
		timeout = f.opts.poseTimeout
	}
	tr, err := f.resolver.Resolve(ctx, f.referenceFrame, target, timeout)
	if err != nil {
		var lookupErr *LookupError
		kind := Disconnected
		if errors.As(err, &lookupErr) {
			kind = lookupErr.Kind
		}
		f.logger.Warn("failed to transform frame, are the frames published?",
			"frame", target,
			"reference", f.referenceFrame,
			"kind", kind.String(),
			"error", err,
		)
		return Transform{}, false
	}
	return tr, true
}

// Destroy stops the listener, waits for an in-flight callback to finish and
// releases every subscription. No update is applied once Destroy started.
// Idempotent. Values received so far stay readable.
func (f *feature) Destroy() {
	f.destroyOnce.Do(func() {
		f.destroyed.Store(true)
		f.listener.Stop()
		f.releaseSubscriptions()
		f.logger.Debug("deleting "+f.variant.String(), "namespace", f.ns)
	})
}

// Destroyed reports whether Destroy was called
func (f *feature) Destroyed() bool {
	return f.destroyed.Load()
}

// Stats returns feature's counters
func (f *feature) Stats() FeatureStats {
	return FeatureStats{
		Listener:     f.listener.Stats(),
		DecodeErrors: f.decodeErrors.Load(),
	}
}

// readOnly hides lifecycle methods from update hooks
type readOnly struct {
	View
}

package hri

import (
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"weak"

	"github.com/pkg/errors"
)

// Handle is a weak reference to a tracked feature. It doesn't extend
// feature's lifetime and resolves to "gone" once the feature is destroyed.
type Handle[T any] struct {
	ptr weak.Pointer[T]
}

// MakeHandle creates handle to feature
func MakeHandle[T any](f *T) Handle[T] {
	return Handle[T]{
		ptr: weak.Make(f),
	}
}

// Get returns referenced feature. False if it was destroyed or collected.
func (h Handle[T]) Get() (*T, bool) {
	p := h.ptr.Value()
	if p == nil {
		return nil, false
	}
	if d, ok := any(p).(interface{ Destroyed() bool }); ok && d.Destroyed() {
		return nil, false
	}
	return p, true
}

// Registry keeps one live feature per tracked id of a variant. It follows
// the variant's tracked-ids topic: features are created for new ids and
// destroyed for vanished ones.
type Registry[T any, PT interface {
	*T
	Feature
}] struct {
	variant Variant
	create  func(id string) (PT, error)
	logger  *slog.Logger

	// reconcileMu serializes Reconcile and Close
	reconcileMu sync.Mutex
	closed      bool

	mu       sync.RWMutex
	features map[string]PT

	listener *Listener
	sub      Subscription
	stopOnce sync.Once
}

// NewFaceRegistry creates registry of faces following /humans/faces/tracked
func NewFaceRegistry(source UpdateSource, lookup TransformLookup, cfg Config, opts ...Option) (*Registry[Face, *Face], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Can't create face registry")
	}
	featureOpts := append(cfg.Options(), opts...)
	create := func(id string) (*Face, error) {
		return NewFace(id, cfg.ReferenceFrame, source, lookup, featureOpts...)
	}
	return newRegistry[Face](VariantFace, source, create, buildOptions(featureOpts))
}

// NewBodyRegistry creates registry of bodies following /humans/bodies/tracked
func NewBodyRegistry(source UpdateSource, lookup TransformLookup, cfg Config, opts ...Option) (*Registry[Body, *Body], error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Can't create body registry")
	}
	featureOpts := append(cfg.Options(), opts...)
	create := func(id string) (*Body, error) {
		return NewBody(id, cfg.ReferenceFrame, source, lookup, featureOpts...)
	}
	return newRegistry[Body](VariantBody, source, create, buildOptions(featureOpts))
}

func newRegistry[T any, PT interface {
	*T
	Feature
}](variant Variant, source UpdateSource, create func(id string) (PT, error), o options) (*Registry[T, PT], error) {
	if source == nil {
		return nil, errors.New("update source is nil")
	}
	r := &Registry[T, PT]{
		variant:  variant,
		create:   create,
		logger:   o.logger.With("registry", variant.String()),
		features: make(map[string]PT),
	}
	// Only the latest list matters
	r.listener = newListener(1, r.logger)
	topic := variant.TrackedTopic()
	sub, err := source.Subscribe(topic, func(payload []byte) {
		r.listener.Post(topic, payload, r.onTracked)
	})
	if err != nil {
		r.listener.Stop()
		return nil, errors.Wrapf(err, "Can't subscribe to %s", topic)
	}
	r.sub = sub
	return r, nil
}

func (r *Registry[T, PT]) onTracked(payload []byte) {
	ids, err := DecodeIdsList(payload)
	if err != nil {
		r.logger.Warn("discarding tracked list", "error", err)
		return
	}
	if err := r.Reconcile(ids); err != nil && !errors.Is(err, ErrDestroyed) {
		r.logger.Error("failed to reconcile tracked features", "error", err)
	}
}

// Reconcile makes the set of live features equal to ids. Features of
// vanished ids are destroyed before new ones are created. Returned error
// joins every construction failure; failed ids are simply not tracked.
func (r *Registry[T, PT]) Reconcile(ids []string) error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()
	if r.closed {
		return errors.Wrapf(ErrDestroyed, "%s registry is closed", r.variant)
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			want[id] = struct{}{}
		}
	}

	r.mu.Lock()
	gone := make([]PT, 0)
	for id, f := range r.features {
		if _, ok := want[id]; !ok {
			gone = append(gone, f)
			delete(r.features, id)
		}
	}
	missing := make([]string, 0)
	for id := range want {
		if _, ok := r.features[id]; !ok {
			missing = append(missing, id)
		}
	}
	r.mu.Unlock()

	for _, f := range gone {
		f.Destroy()
	}

	sort.Strings(missing)
	var errs []error
	for _, id := range missing {
		f, err := r.create(id)
		if err != nil {
			r.logger.Error("can't create feature", "id", id, "error", err)
			errs = append(errs, errors.Wrapf(err, "Can't create %s %s", r.variant, id))
			continue
		}
		r.mu.Lock()
		r.features[id] = f
		r.mu.Unlock()
	}
	return stderrors.Join(errs...)
}

// Variant returns kind of features kept by registry
func (r *Registry[T, PT]) Variant() Variant {
	return r.variant
}

// Get returns handle to live feature with given id
func (r *Registry[T, PT]) Get(id string) (Handle[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.features[id]
	if !ok {
		return Handle[T]{}, false
	}
	return MakeHandle((*T)(f)), true
}

// Handles returns handles to every live feature keyed by id
func (r *Registry[T, PT]) Handles() map[string]Handle[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Handle[T], len(r.features))
	for id, f := range r.features {
		out[id] = MakeHandle((*T)(f))
	}
	return out
}

// IDs returns sorted ids of live features
func (r *Registry[T, PT]) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.features))
	for id := range r.features {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns number of live features
func (r *Registry[T, PT]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.features)
}

// Close stops following tracked ids and destroys every feature. Idempotent.
func (r *Registry[T, PT]) Close() error {
	var err error
	r.stopOnce.Do(func() {
		if r.sub != nil {
			err = r.sub.Unsubscribe()
		}
		r.listener.Stop()
	})

	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	r.mu.Lock()
	features := r.features
	r.features = make(map[string]PT)
	r.mu.Unlock()
	for _, f := range features {
		f.Destroy()
	}
	if err != nil {
		return errors.Wrapf(err, "Can't unsubscribe from %s", r.variant.TrackedTopic())
	}
	return nil
}

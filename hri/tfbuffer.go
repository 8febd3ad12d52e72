package hri

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TransformBuffer is an in-process TransformLookup. It keeps the latest
// transform of every child frame relative to its parent (a forest of frames)
// and resolves lookups along the tree.
type TransformBuffer struct {
	mu      sync.Mutex
	edges   map[string]Transform // child -> pose of child in parent
	known   map[string]struct{}
	changed chan struct{}
	closed  bool
	now     func() time.Time
}

// NewTransformBuffer creates empty buffer
func NewTransformBuffer() *TransformBuffer {
	return &TransformBuffer{
		edges:   make(map[string]Transform),
		known:   make(map[string]struct{}),
		changed: make(chan struct{}),
		now:     time.Now,
	}
}

// SetTransform publishes pose of tr.TargetFrame in tr.ReferenceFrame.
// A child frame has exactly one parent: publishing it again under another
// parent re-parents it.
func (buf *TransformBuffer) SetTransform(tr Transform) error {
	if tr.ReferenceFrame == "" || tr.TargetFrame == "" {
		return errors.New("transform must name both frames")
	}
	if tr.ReferenceFrame == tr.TargetFrame {
		return errors.Errorf("frame %s can't be its own parent", tr.TargetFrame)
	}
	if tr.Rotation == (Quaternion{}) {
		tr.Rotation = IdentityQuaternion()
	}
	tr.Rotation = tr.Rotation.Normalized()

	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.closed {
		return ErrDisconnected
	}
	if tr.Stamp.IsZero() {
		tr.Stamp = buf.now()
	}
	for parent := tr.ReferenceFrame; ; {
		edge, ok := buf.edges[parent]
		if !ok {
			break
		}
		if edge.ReferenceFrame == tr.TargetFrame {
			return errors.Errorf("publishing %s under %s would create a loop", tr.TargetFrame, tr.ReferenceFrame)
		}
		parent = edge.ReferenceFrame
	}
	buf.edges[tr.TargetFrame] = tr
	buf.known[tr.TargetFrame] = struct{}{}
	buf.known[tr.ReferenceFrame] = struct{}{}
	close(buf.changed)
	buf.changed = make(chan struct{})
	return nil
}

// Close makes every pending and future lookup fail with ErrDisconnected
func (buf *TransformBuffer) Close() {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.closed {
		return
	}
	buf.closed = true
	close(buf.changed)
}

// LookupTransform implements TransformLookup. It waits for missing frames
// until ctx is done.
func (buf *TransformBuffer) LookupTransform(ctx context.Context, reference, target string) (Transform, error) {
	for {
		buf.mu.Lock()
		if buf.closed {
			buf.mu.Unlock()
			return Transform{}, ErrDisconnected
		}
		tr, ok := buf.resolve(reference, target)
		_, refKnown := buf.known[reference]
		_, targetKnown := buf.known[target]
		changed := buf.changed
		buf.mu.Unlock()
		if ok {
			return tr, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			if !refKnown {
				return Transform{}, errors.Wrapf(ErrFrameUnknown, "frame %s", reference)
			}
			if !targetKnown {
				return Transform{}, errors.Wrapf(ErrFrameUnknown, "frame %s", target)
			}
			return Transform{}, errors.Wrapf(ErrTimeout, "no path between %s and %s", reference, target)
		}
	}
}

// resolve must be called with mu held
func (buf *TransformBuffer) resolve(reference, target string) (Transform, bool) {
	_, refKnown := buf.known[reference]
	_, targetKnown := buf.known[target]
	if !refKnown || !targetKnown {
		return Transform{}, false
	}
	if reference == target {
		return Transform{
			ReferenceFrame: reference,
			TargetFrame:    target,
			Stamp:          buf.now(),
			Rotation:       IdentityQuaternion(),
		}, true
	}

	refChain := buf.chainToRoot(reference)
	targetChain := buf.chainToRoot(target)

	// Index of every ancestor of reference (including itself)
	refDepth := make(map[string]int, len(refChain)+1)
	refDepth[reference] = 0
	for i, edge := range refChain {
		refDepth[edge.ReferenceFrame] = i + 1
	}

	common := target
	targetDepth := 0
	if _, ok := refDepth[common]; !ok {
		found := false
		for i, edge := range targetChain {
			if _, ok := refDepth[edge.ReferenceFrame]; ok {
				common = edge.ReferenceFrame
				targetDepth = i + 1
				found = true
				break
			}
		}
		if !found {
			return Transform{}, false
		}
	}

	// Pose of target in common ancestor
	down := identityAt(common)
	for i := targetDepth - 1; i >= 0; i-- {
		down = down.Compose(targetChain[i])
	}
	// Pose of reference in common ancestor
	up := identityAt(common)
	for i := refDepth[common] - 1; i >= 0; i-- {
		up = up.Compose(refChain[i])
	}
	out := up.Inverse().Compose(down)
	out.ReferenceFrame = reference
	out.TargetFrame = target
	return out, true
}

// chainToRoot returns edges from frame up to its root, nearest first
func (buf *TransformBuffer) chainToRoot(frame string) []Transform {
	chain := make([]Transform, 0, 4)
	for {
		edge, ok := buf.edges[frame]
		if !ok {
			return chain
		}
		chain = append(chain, edge)
		frame = edge.ReferenceFrame
	}
}

func identityAt(frame string) Transform {
	return Transform{
		ReferenceFrame: frame,
		TargetFrame:    frame,
		Rotation:       IdentityQuaternion(),
	}
}

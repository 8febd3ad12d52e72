package hri

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// DefaultPoseTimeout is time budget of a single pose query
const DefaultPoseTimeout = 10 * time.Millisecond

const maxLookupGrace = 20 * time.Millisecond

// TransformLookup is the external transform service.
// LookupTransform returns latest pose of target frame expressed in reference
// frame. Implementations should honour ctx deadline and report failures with
// ErrFrameUnknown, ErrTimeout or ErrDisconnected (optionally wrapped).
type TransformLookup interface {
	LookupTransform(ctx context.Context, reference, target string) (Transform, error)
}

// PoseResolver runs bounded-time queries against TransformLookup.
// It never caches results.
type PoseResolver struct {
	lookup TransformLookup
}

// NewPoseResolver creates new instance of PoseResolver. Nil lookup makes
// every query fail with Disconnected.
func NewPoseResolver(lookup TransformLookup) *PoseResolver {
	return &PoseResolver{
		lookup: lookup,
	}
}

type lookupResult struct {
	transform Transform
	err       error
}

// Resolve queries transform from target to reference frame. It returns within
// budget even if the underlying service ignores context cancellation.
// Every failure is returned as *LookupError.
func (resolver *PoseResolver) Resolve(ctx context.Context, reference, target string, budget time.Duration) (Transform, error) {
	if resolver == nil || resolver.lookup == nil {
		return Transform{}, &LookupError{Kind: Disconnected, Reference: reference, Target: target}
	}
	if budget <= 0 {
		budget = DefaultPoseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	// Lookup gives up earlier so its own failure kind arrives within budget
	lookupCtx, lookupCancel := context.WithTimeout(ctx, budget-lookupGrace(budget))
	defer lookupCancel()

	results := make(chan lookupResult, 1)
	go func() {
		tr, err := resolver.lookup.LookupTransform(lookupCtx, reference, target)
		results <- lookupResult{transform: tr, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return Transform{}, classifyLookupError(res.err, reference, target)
		}
		return res.transform, nil
	case <-ctx.Done():
		// Lookup may have finished at the very same moment
		select {
		case res := <-results:
			if res.err == nil {
				return res.transform, nil
			}
			return Transform{}, classifyLookupError(res.err, reference, target)
		default:
		}
		return Transform{}, &LookupError{Kind: Timeout, Reference: reference, Target: target, Err: ctx.Err()}
	}
}

// lookupGrace is the part of budget reserved for delivering lookup's result
func lookupGrace(budget time.Duration) time.Duration {
	grace := budget / 4
	if grace > maxLookupGrace {
		grace = maxLookupGrace
	}
	return grace
}

func classifyLookupError(err error, reference, target string) *LookupError {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		out := *lookupErr
		if out.Reference == "" {
			out.Reference = reference
		}
		if out.Target == "" {
			out.Target = target
		}
		return &out
	}
	kind := Disconnected
	switch {
	case errors.Is(err, ErrFrameUnknown):
		kind = FrameUnknown
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = Timeout
	case errors.Is(err, ErrDisconnected):
		kind = Disconnected
	}
	return &LookupError{Kind: kind, Reference: reference, Target: target, Err: err}
}

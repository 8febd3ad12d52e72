package hri

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

const (
	eps = 0.00001

	testTimeout = 5 * time.Second
)

// requireReceive reads one value from ch within timeout, or fails the test
func requireReceive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", msg)
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, msg)
	}
	panic("unreachable")
}

// waitFor polls cond until it holds or timeout expires
func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v: %s", timeout, msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func mustEncode(t *testing.T, msg any) []byte {
	t.Helper()
	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return payload
}

// hookRecorder forwards every applied update to a channel
type hookRecorder struct {
	applied chan Attribute
}

func newHookRecorder() *hookRecorder {
	return &hookRecorder{applied: make(chan Attribute, 64)}
}

func (h *hookRecorder) hook(_ View, attr Attribute) {
	h.applied <- attr
}

func (h *hookRecorder) expect(t *testing.T, attr Attribute) {
	t.Helper()
	got := requireReceive(t, h.applied, testTimeout, "waiting for "+string(attr))
	if got != attr {
		t.Errorf("Wrong attribute applied: %v, expected: %v", got, attr)
	}
}

// logBuffer collects log output of a text handler
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func (b *logBuffer) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(b, nil))
}

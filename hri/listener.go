package hri

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultQueueDepth is number of pending updates kept per topic
const DefaultQueueDepth = 16

// event is a single inbound update waiting for dispatch
type event struct {
	topic   string
	payload []byte
	handle  func(payload []byte)
}

// ListenerStats is a snapshot of listener counters
type ListenerStats struct {
	// Dispatched counts callbacks run to completion
	Dispatched uint64
	// Dropped counts updates discarded because their topic queue was full
	// or because they arrived after Stop
	Dropped uint64
	// Panics counts callbacks which panicked (listener keeps running)
	Panics uint64
	// Pending is current number of queued updates
	Pending int
}

// Listener is a dedicated goroutine serially dispatching inbound updates of
// one tracked feature.
//
// Updates of one topic are dispatched in arrival order. Each topic has its own
// bounded queue: when it is full the oldest pending update of that topic is
// dropped, so a slow feature never blocks the update source and never starves
// other topics. Nothing is guaranteed about ordering across topics.
type Listener struct {
	id     uuid.UUID
	depth  int
	logger *slog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []event
	pending  map[string]int
	stopping bool

	stopOnce sync.Once
	done     chan struct{}

	dispatched atomic.Uint64
	dropped    atomic.Uint64
	panics     atomic.Uint64
}

// newListener creates listener and spawns its goroutine
func newListener(depth int, logger *slog.Logger) *Listener {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		id:      uuid.New(),
		depth:   depth,
		pending: make(map[string]int),
		done:    make(chan struct{}),
	}
	l.logger = logger.With("listener", l.id.String())
	l.cond = sync.NewCond(&l.mu)
	go l.loop()
	return l
}

// ID returns listener's identifier
func (l *Listener) ID() uuid.UUID {
	return l.id
}

// Post queues update for dispatch. It never blocks on the callback.
// Returns false if listener is stopping and update was discarded.
func (l *Listener) Post(topic string, payload []byte, handle func(payload []byte)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopping {
		l.dropped.Add(1)
		return false
	}

	if l.pending[topic] >= l.depth {
		for i := range l.queue {
			if l.queue[i].topic == topic {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				l.pending[topic]--
				l.dropped.Add(1)
				break
			}
		}
	}

	l.queue = append(l.queue, event{topic: topic, payload: payload, handle: handle})
	l.pending[topic]++
	l.cond.Signal()
	return true
}

// Stop requests cancellation and blocks until the listener goroutine exits.
// A callback already running is allowed to finish; queued updates are
// discarded and no new callback is started.
// Safe to call multiple times and from multiple goroutines. Must not be called
// from a callback running on this listener.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopping = true
		l.dropped.Add(uint64(len(l.queue)))
		l.queue = nil
		l.pending = make(map[string]int)
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	<-l.done
}

// Done returns channel closed once listener goroutine exited
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Stats returns counters snapshot
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	pending := len(l.queue)
	l.mu.Unlock()
	return ListenerStats{
		Dispatched: l.dispatched.Load(),
		Dropped:    l.dropped.Load(),
		Panics:     l.panics.Load(),
		Pending:    pending,
	}
}

func (l *Listener) loop() {
	defer close(l.done)

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopping {
			l.cond.Wait()
		}
		if l.stopping {
			l.mu.Unlock()
			return
		}
		ev := l.queue[0]
		l.queue[0] = event{}
		l.queue = l.queue[1:]
		l.pending[ev.topic]--
		l.mu.Unlock()

		l.dispatch(ev)
	}
}

func (l *Listener) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Error("update callback panicked", "topic", ev.topic, "panic", fmt.Sprint(r))
		}
	}()
	ev.handle(ev.payload)
	l.dispatched.Add(1)
}

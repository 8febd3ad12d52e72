package hri

import (
	"sync/atomic"
	"time"
)

// mailboxEntry is immutable once stored.
type mailboxEntry[T any] struct {
	value   T
	updated time.Time
	seq     uint64
}

// Mailbox holds the latest value of a single attribute.
// It is written by exactly one goroutine (the owning feature's listener) and
// read by any number of goroutines. Store publishes a fresh entry with one
// atomic pointer swap, so Load never waits and never observes a half-written value.
type Mailbox[T any] struct {
	entry atomic.Pointer[mailboxEntry[T]]
}

// Store replaces held value and its update instant
func (mb *Mailbox[T]) Store(value T, updated time.Time) {
	var seq uint64 = 1
	if prev := mb.entry.Load(); prev != nil {
		seq = prev.seq + 1
	}
	mb.entry.Store(&mailboxEntry[T]{
		value:   value,
		updated: updated,
		seq:     seq,
	})
}

// Load returns latest value. The boolean is false if nothing was stored yet.
func (mb *Mailbox[T]) Load() (T, bool) {
	e := mb.entry.Load()
	if e == nil {
		var zero T
		return zero, false
	}
	return e.value, true
}

// LoadStamped returns latest value together with the instant it was stored
func (mb *Mailbox[T]) LoadStamped() (T, time.Time, bool) {
	e := mb.entry.Load()
	if e == nil {
		var zero T
		return zero, time.Time{}, false
	}
	return e.value, e.updated, true
}

// Present reports whether any value was stored
func (mb *Mailbox[T]) Present() bool {
	return mb.entry.Load() != nil
}

// Updates returns number of stores applied so far
func (mb *Mailbox[T]) Updates() uint64 {
	e := mb.entry.Load()
	if e == nil {
		return 0
	}
	return e.seq
}

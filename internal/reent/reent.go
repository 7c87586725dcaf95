// Package reent holds the per-execution-context state that the guest POSIX
// surface reads and writes: the error slot, the resolver error slot, the
// reusable syscall record and context-scoped library state.
//
// A Reent must only be used by one goroutine at a time. Sibling contexts
// of the same process each get their own Reent.
package reent

import (
	"context"
	"sync/atomic"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

type Reent struct {
	// Errno is the last error stored by a failed call on this context.
	// Successful calls leave it untouched.
	Errno syscallabi.Errno
	// HErrno is the last resolver status stored by a failed host lookup.
	HErrno int

	sys        syscallabi.Syscall
	dispatcher syscallabi.Dispatcher
	tids       *atomic.Int32
	slots      map[any]any
}

// New creates the first context of a process. os identifies the process to
// the dispatcher.
func New(d syscallabi.Dispatcher, os any) *Reent {
	tids := &atomic.Int32{}
	return newReent(d, os, tids)
}

func newReent(d syscallabi.Dispatcher, os any, tids *atomic.Int32) *Reent {
	r := &Reent{
		dispatcher: d,
		tids:       tids,
	}
	r.sys.OS = os
	r.sys.Tid = int(tids.Add(1))
	return r
}

// Sibling creates a new context for another thread of the same process. The
// sibling starts with clean error state and empty library slots.
func (r *Reent) Sibling() *Reent {
	return newReent(r.dispatcher, r.sys.OS, r.tids)
}

// Tid returns the thread id of this context within its process. The first
// context of a process has tid 1.
func (r *Reent) Tid() int {
	return r.sys.Tid
}

// OS returns the process identity this context dispatches on behalf of.
func (r *Reent) OS() any {
	return r.sys.OS
}

// Syscall returns this context's syscall record, reset for trap.
func (r *Reent) Syscall(trap syscallabi.Trap) *syscallabi.Syscall {
	r.sys.Reset(trap)
	return &r.sys
}

// Dispatch runs s and returns its folded result.
func (r *Reent) Dispatch(s *syscallabi.Syscall) int {
	r.dispatcher.Dispatch(s)
	return s.Result()
}

// Slot returns the library state stored under key, or nil.
func (r *Reent) Slot(key any) any {
	return r.slots[key]
}

// SetSlot stores library state under key. A nil value removes it.
func (r *Reent) SetSlot(key, value any) {
	if value == nil {
		delete(r.slots, key)
		return
	}
	if r.slots == nil {
		r.slots = make(map[any]any)
	}
	r.slots[key] = value
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying r as the ambient context.
func NewContext(ctx context.Context, r *Reent) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the ambient context carried by ctx. It panics if
// there is none: every guest entry point runs under one.
func FromContext(ctx context.Context) *Reent {
	r, ok := ctx.Value(contextKey{}).(*Reent)
	if !ok {
		panic("reent: no execution context in context.Context")
	}
	return r
}

// Lookup is like FromContext but reports absence instead of panicking.
func Lookup(ctx context.Context) (*Reent, bool) {
	r, ok := ctx.Value(contextKey{}).(*Reent)
	return r, ok
}

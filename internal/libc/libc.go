// Package libc is the guest's POSIX surface. Every operation comes in two
// forms: XxxR takes the calling execution context explicitly, and Xxx
// resolves it from a context.Context once and forwards.
//
// A failed call stores its error code in the context's Errno slot and
// returns -1 (or nil); a successful call leaves the slot untouched.
package libc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// call issues trap with the arguments set by fill and folds the result
// into the errno convention.
func call(r *reent.Reent, trap syscallabi.Trap, fill func(s *syscallabi.Syscall)) int {
	s := r.Syscall(trap)
	if fill != nil {
		fill(s)
	}
	res := r.Dispatch(s)
	if res < 0 {
		r.Errno = syscallabi.Errno(-res)
		return -1
	}
	return res
}

// callPtr is call for operations with a reference result. result runs only
// on success.
func callPtr[T any](r *reent.Reent, trap syscallabi.Trap, fill func(s *syscallabi.Syscall), result func(res int) *T) *T {
	res := call(r, trap, fill)
	if res < 0 {
		return nil
	}
	return result(res)
}

// fail stores errno and returns the failure sentinel.
func fail(r *reent.Reent, errno syscallabi.Errno) int {
	r.Errno = errno
	return -1
}

// Errno returns the last error stored on the calling context.
func Errno(ctx context.Context) syscallabi.Errno {
	return reent.FromContext(ctx).Errno
}

// SetErrno overwrites the calling context's error slot.
func SetErrno(ctx context.Context, errno syscallabi.Errno) {
	reent.FromContext(ctx).Errno = errno
}

// CString returns the bytes of b before the first NUL.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// FprintfR writes a formatted message to fd. Write errors are stored on the
// context like any other failed call.
func FprintfR(r *reent.Reent, fd int, format string, args ...any) int {
	return WriteR(r, fd, []byte(fmt.Sprintf(format, args...)))
}

func Fprintf(ctx context.Context, fd int, format string, args ...any) int {
	return FprintfR(reent.FromContext(ctx), fd, format, args...)
}

// Go runs fn on a new goroutine with a sibling execution context of the
// caller's process, and returns a channel that yields fn's result. If the
// process terminates while fn runs, the channel is closed without a value.
func Go(ctx context.Context, fn func(ctx context.Context) int) <-chan int {
	sib := reent.FromContext(ctx).Sibling()
	ch := make(chan int, 1)
	go func() {
		defer close(ch)
		defer func() {
			if v := recover(); v != nil {
				if _, ok := v.(syscallabi.Exit); !ok {
					panic(v)
				}
			}
		}()
		ch <- fn(reent.NewContext(ctx, sib))
	}()
	return ch
}

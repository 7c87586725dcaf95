// Package syscallabi defines the numbered-syscall seam between the guest
// POSIX surface and the kernel that serves it.
package syscallabi

// Syscall holds the arguments and return values of a guest syscall.
//
// Each execution context owns a single Syscall that is reset and reused for
// every call it makes. Sharing is safe because a context invokes at most one
// syscall at a time.
type Syscall struct {
	Trap Trap

	// OS identifies the issuing process to the kernel. Tid identifies the
	// context within that process.
	OS  any
	Tid int

	Int0, Int1, Int2, Int3, Int4, Int5 int
	Ptr0, Ptr1, Ptr2, Ptr3             any

	R0    int
	Errno Errno
}

// Reset clears the arguments and results while keeping the caller identity.
func (s *Syscall) Reset(trap Trap) {
	os, tid := s.OS, s.Tid
	*s = Syscall{Trap: trap, OS: os, Tid: tid}
}

// Result folds the outcome into a single signed integer: R0 on success,
// -errno on failure.
func (s *Syscall) Result() int {
	if s.Errno != 0 {
		return -int(s.Errno)
	}
	return s.R0
}

// A Dispatcher executes a syscall and fills in its results before
// returning. Dispatch may block the calling goroutine.
type Dispatcher interface {
	Dispatch(s *Syscall)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(s *Syscall)

func (f DispatcherFunc) Dispatch(s *Syscall) {
	f(s)
}

// BoolToInt stores a boolean as an int for syscall arguments
// or return values.
func BoolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Exit is the panic value a kernel uses to unwind a context whose process
// has terminated. Code that starts its own contexts must let it pass or
// recover it; it must never be reported as a crash.
type Exit struct {
	Status int
}

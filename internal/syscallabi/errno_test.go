package syscallabi_test

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func TestFromHost(t *testing.T) {
	testcases := []struct {
		name string
		err  error
		want syscallabi.Errno
	}{
		{"nil", nil, 0},
		{"enoent", unix.ENOENT, syscallabi.ENOENT},
		{"wrapped", &os.PathError{Op: "open", Path: "/x", Err: unix.ENOTDIR}, syscallabi.ENOTDIR},
		{"renumbered", &os.SyscallError{Syscall: "connect", Err: unix.ECONNREFUSED}, syscallabi.ECONNREFUSED},
		{"addrinuse", fmt.Errorf("listen: %w", unix.EADDRINUSE), syscallabi.EADDRINUSE},
		{"guest", fmt.Errorf("wrapped: %w", syscallabi.ERANGE), syscallabi.ERANGE},
		{"notexist", fs.ErrNotExist, syscallabi.ENOENT},
		{"exist", fs.ErrExist, syscallabi.EEXIST},
		{"closed", os.ErrClosed, syscallabi.EBADF},
		{"other", errors.New("boom"), syscallabi.EIO},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			if got := syscallabi.FromHost(tc.err); got != tc.want {
				t.Errorf("FromHost(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrnoString(t *testing.T) {
	if got := syscallabi.ENOSYS.Error(); got != "ENOSYS" {
		t.Errorf("ENOSYS.Error() = %q", got)
	}
	if got := syscallabi.Errno(250).Error(); got != "errno 250" {
		t.Errorf("Errno(250).Error() = %q", got)
	}
	if syscallabi.ErrnoErr(0) != nil {
		t.Error("ErrnoErr(0) != nil")
	}
	if !errors.Is(syscallabi.ErrnoErr(syscallabi.EINVAL), syscallabi.EINVAL) {
		t.Error("ErrnoErr(EINVAL) is not EINVAL")
	}
}

func TestSyscallResult(t *testing.T) {
	s := &syscallabi.Syscall{OS: "proc", Tid: 3}
	s.Reset(syscallabi.SYS_read)
	s.R0 = 12
	if got := s.Result(); got != 12 {
		t.Errorf("Result() = %d, want 12", got)
	}
	s.Reset(syscallabi.SYS_open)
	if s.OS != "proc" || s.Tid != 3 || s.R0 != 0 {
		t.Errorf("Reset lost identity or kept results: %+v", s)
	}
	s.Errno = syscallabi.ENOENT
	if got := s.Result(); got != -2 {
		t.Errorf("Result() = %d, want -2", got)
	}
	if got := syscallabi.SYS_resolve_hostname.String(); got != "resolve_hostname" {
		t.Errorf("String() = %q", got)
	}
}

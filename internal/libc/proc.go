package libc

import (
	"context"

	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// ExitR terminates the calling process. It does not return.
func ExitR(r *reent.Reent, status int) {
	call(r, syscallabi.SYS_exit, func(s *syscallabi.Syscall) { s.Int0 = status })
	panic("libc: exit returned")
}

func Exit(ctx context.Context, status int) {
	ExitR(reent.FromContext(ctx), status)
}

func GetpidR(r *reent.Reent) int {
	return call(r, syscallabi.SYS_getpid, nil)
}

func Getpid(ctx context.Context) int {
	return GetpidR(reent.FromContext(ctx))
}

func GetppidR(r *reent.Reent) int {
	return call(r, syscallabi.SYS_getppid, nil)
}

func Getppid(ctx context.Context) int {
	return GetppidR(reent.FromContext(ctx))
}

// ForkR creates a child process that shares the caller's open files and
// runs child in a fresh execution context; child's result is its exit
// status. The parent gets the child's pid.
func ForkR(r *reent.Reent, child func(ctx context.Context) int) int {
	return call(r, syscallabi.SYS_fork, func(s *syscallabi.Syscall) { s.Ptr0 = child })
}

func Fork(ctx context.Context, child func(ctx context.Context) int) int {
	return ForkR(reent.FromContext(ctx), child)
}

// VforkR is not supported.
func VforkR(r *reent.Reent) int {
	return call(r, syscallabi.SYS_vfork, nil)
}

func Vfork(ctx context.Context) int {
	return VforkR(reent.FromContext(ctx))
}

// ExecveR replaces the calling process's program. It returns only on
// failure. A nil env keeps the current environment.
func ExecveR(r *reent.Reent, path string, argv, env []string) int {
	return call(r, syscallabi.SYS_exec, func(s *syscallabi.Syscall) {
		s.Ptr0, s.Ptr1, s.Ptr2 = path, argv, env
	})
}

func Execve(ctx context.Context, path string, argv, env []string) int {
	return ExecveR(reent.FromContext(ctx), path, argv, env)
}

func WaitpidR(r *reent.Reent, pid int, status *int, options int) int {
	return call(r, syscallabi.SYS_waitpid, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Ptr0 = pid, options, status
	})
}

func Waitpid(ctx context.Context, pid int, status *int, options int) int {
	return WaitpidR(reent.FromContext(ctx), pid, status, options)
}

func WaitR(r *reent.Reent, status *int) int {
	return WaitpidR(r, -1, status, 0)
}

func Wait(ctx context.Context, status *int) int {
	return WaitR(reent.FromContext(ctx), status)
}

// WEXITSTATUS extracts the exit status from a waitpid status.
func WEXITSTATUS(status int) int {
	return (status >> 8) & 0xff
}

func KillR(r *reent.Reent, pid, sig int) int {
	return call(r, syscallabi.SYS_kill, func(s *syscallabi.Syscall) { s.Int0, s.Int1 = pid, sig })
}

func Kill(ctx context.Context, pid, sig int) int {
	return KillR(reent.FromContext(ctx), pid, sig)
}

func RaiseR(r *reent.Reent, sig int) int {
	return KillR(r, GetpidR(r), sig)
}

func Raise(ctx context.Context, sig int) int {
	return RaiseR(reent.FromContext(ctx), sig)
}

func GettimeofdayR(r *reent.Reent, tv *syscallabi.Timeval) int {
	return call(r, syscallabi.SYS_gettimeofday, func(s *syscallabi.Syscall) { s.Ptr0 = tv })
}

func Gettimeofday(ctx context.Context, tv *syscallabi.Timeval) int {
	return GettimeofdayR(reent.FromContext(ctx), tv)
}

func UsleepR(r *reent.Reent, usec int) int {
	return call(r, syscallabi.SYS_usleep, func(s *syscallabi.Syscall) { s.Int0 = usec })
}

func Usleep(ctx context.Context, usec int) int {
	return UsleepR(reent.FromContext(ctx), usec)
}

func SysconfR(r *reent.Reent, name int) int {
	return call(r, syscallabi.SYS_sysconf, func(s *syscallabi.Syscall) { s.Int0 = name })
}

func Sysconf(ctx context.Context, name int) int {
	return SysconfR(reent.FromContext(ctx), name)
}

// SysctlR reads the leaf at name into oldp. oldlenp, if set, bounds the
// read and receives the value's length including its terminator.
func SysctlR(r *reent.Reent, name []int, oldp []byte, oldlenp *int, newp []byte) int {
	return call(r, syscallabi.SYS_sysctl, func(s *syscallabi.Syscall) {
		s.Ptr0, s.Ptr1, s.Ptr2 = name, oldp, oldlenp
		if newp != nil {
			s.Ptr3 = newp
		}
	})
}

func Sysctl(ctx context.Context, name []int, oldp []byte, oldlenp *int, newp []byte) int {
	return SysctlR(reent.FromContext(ctx), name, oldp, oldlenp, newp)
}

func GethostnameR(r *reent.Reent, buf []byte) int {
	n := len(buf)
	if SysctlR(r, []int{syscallabi.CTL_KERN, syscallabi.KERN_HOSTNAME}, buf, &n, nil) < 0 {
		return -1
	}
	return 0
}

func Gethostname(ctx context.Context, buf []byte) int {
	return GethostnameR(reent.FromContext(ctx), buf)
}

// The guest always runs as root.

func GetuidR(r *reent.Reent) int { return 0 }

func Getuid(ctx context.Context) int { return 0 }

func GeteuidR(r *reent.Reent) int { return 0 }

func Geteuid(ctx context.Context) int { return 0 }

func GetgidR(r *reent.Reent) int { return 0 }

func Getgid(ctx context.Context) int { return 0 }

func GetegidR(r *reent.Reent) int { return 0 }

func Getegid(ctx context.Context) int { return 0 }

func SetuidR(r *reent.Reent, uid int) int {
	if uid != 0 {
		return fail(r, syscallabi.EPERM)
	}
	return 0
}

func Setuid(ctx context.Context, uid int) int {
	return SetuidR(reent.FromContext(ctx), uid)
}

func SetgidR(r *reent.Reent, gid int) int {
	if gid != 0 {
		return fail(r, syscallabi.EPERM)
	}
	return 0
}

func Setgid(ctx context.Context, gid int) int {
	return SetgidR(reent.FromContext(ctx), gid)
}

// GetgroupsR reports the single supplementary group 0. An empty list only
// asks for the count.
func GetgroupsR(r *reent.Reent, list []int) int {
	if len(list) > 0 {
		list[0] = 0
	}
	return 1
}

func Getgroups(ctx context.Context, list []int) int {
	return GetgroupsR(reent.FromContext(ctx), list)
}

func InitgroupsR(r *reent.Reent, user string, gid int) int { return 0 }

func Initgroups(ctx context.Context, user string, gid int) int { return 0 }

// UmaskR returns the fixed creation mask 022 and ignores mask.
func UmaskR(r *reent.Reent, mask int) int { return 0o022 }

func Umask(ctx context.Context, mask int) int { return 0o022 }

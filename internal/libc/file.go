package libc

import (
	"context"

	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func OpenR(r *reent.Reent, path string, flags, mode int) int {
	return call(r, syscallabi.SYS_open, func(s *syscallabi.Syscall) {
		s.Ptr0, s.Int0, s.Int1 = path, flags, mode
	})
}

func Open(ctx context.Context, path string, flags, mode int) int {
	return OpenR(reent.FromContext(ctx), path, flags, mode)
}

func CloseR(r *reent.Reent, fd int) int {
	return call(r, syscallabi.SYS_close, func(s *syscallabi.Syscall) { s.Int0 = fd })
}

func Close(ctx context.Context, fd int) int {
	return CloseR(reent.FromContext(ctx), fd)
}

func ReadR(r *reent.Reent, fd int, b []byte) int {
	return call(r, syscallabi.SYS_read, func(s *syscallabi.Syscall) { s.Int0, s.Ptr0 = fd, b })
}

func Read(ctx context.Context, fd int, b []byte) int {
	return ReadR(reent.FromContext(ctx), fd, b)
}

func WriteR(r *reent.Reent, fd int, b []byte) int {
	return call(r, syscallabi.SYS_write, func(s *syscallabi.Syscall) { s.Int0, s.Ptr0 = fd, b })
}

func Write(ctx context.Context, fd int, b []byte) int {
	return WriteR(reent.FromContext(ctx), fd, b)
}

func LseekR(r *reent.Reent, fd, off, whence int) int {
	return call(r, syscallabi.SYS_lseek, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Int2 = fd, off, whence
	})
}

func Lseek(ctx context.Context, fd, off, whence int) int {
	return LseekR(reent.FromContext(ctx), fd, off, whence)
}

func FstatR(r *reent.Reent, fd int, st *syscallabi.Stat) int {
	return call(r, syscallabi.SYS_fstat, func(s *syscallabi.Syscall) { s.Int0, s.Ptr0 = fd, st })
}

func Fstat(ctx context.Context, fd int, st *syscallabi.Stat) int {
	return FstatR(reent.FromContext(ctx), fd, st)
}

func StatR(r *reent.Reent, path string, st *syscallabi.Stat) int {
	return call(r, syscallabi.SYS_stat, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = path, st })
}

func Stat(ctx context.Context, path string, st *syscallabi.Stat) int {
	return StatR(reent.FromContext(ctx), path, st)
}

func LstatR(r *reent.Reent, path string, st *syscallabi.Stat) int {
	return call(r, syscallabi.SYS_lstat, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = path, st })
}

func Lstat(ctx context.Context, path string, st *syscallabi.Stat) int {
	return LstatR(reent.FromContext(ctx), path, st)
}

// AccessR reports whether path exists. Permission bits are not checked.
func AccessR(r *reent.Reent, path string, mode int) int {
	var st syscallabi.Stat
	if StatR(r, path, &st) < 0 {
		return -1
	}
	return 0
}

func Access(ctx context.Context, path string, mode int) int {
	return AccessR(reent.FromContext(ctx), path, mode)
}

// IsattyR returns 1 if fd is a terminal and 0 otherwise, storing ENOTTY or
// EBADF.
func IsattyR(r *reent.Reent, fd int) int {
	if call(r, syscallabi.SYS_isatty, func(s *syscallabi.Syscall) { s.Int0 = fd }) < 0 {
		return 0
	}
	return 1
}

func Isatty(ctx context.Context, fd int) int {
	return IsattyR(reent.FromContext(ctx), fd)
}

// TtynameR names the terminal behind fd, or returns "" if fd is not one.
func TtynameR(r *reent.Reent, fd int) string {
	if IsattyR(r, fd) == 0 {
		return ""
	}
	return "/dev/console"
}

func Ttyname(ctx context.Context, fd int) string {
	return TtynameR(reent.FromContext(ctx), fd)
}

func MkdirR(r *reent.Reent, path string, mode int) int {
	return call(r, syscallabi.SYS_mkdir, func(s *syscallabi.Syscall) { s.Ptr0, s.Int0 = path, mode })
}

func Mkdir(ctx context.Context, path string, mode int) int {
	return MkdirR(reent.FromContext(ctx), path, mode)
}

func RmdirR(r *reent.Reent, path string) int {
	return call(r, syscallabi.SYS_rmdir, func(s *syscallabi.Syscall) { s.Ptr0 = path })
}

func Rmdir(ctx context.Context, path string) int {
	return RmdirR(reent.FromContext(ctx), path)
}

func UnlinkR(r *reent.Reent, path string) int {
	return call(r, syscallabi.SYS_unlink, func(s *syscallabi.Syscall) { s.Ptr0 = path })
}

func Unlink(ctx context.Context, path string) int {
	return UnlinkR(reent.FromContext(ctx), path)
}

func RenameR(r *reent.Reent, from, to string) int {
	return call(r, syscallabi.SYS_rename, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = from, to })
}

func Rename(ctx context.Context, from, to string) int {
	return RenameR(reent.FromContext(ctx), from, to)
}

func ChdirR(r *reent.Reent, path string) int {
	return call(r, syscallabi.SYS_chdir, func(s *syscallabi.Syscall) { s.Ptr0 = path })
}

func Chdir(ctx context.Context, path string) int {
	return ChdirR(reent.FromContext(ctx), path)
}

const initialCwdSize = 256

// GetcwdR stores the NUL-terminated working directory in buf and returns
// buf. With a nil buf it allocates, starting at 256 bytes and doubling
// while the kernel reports ERANGE, and returns the buffer it used.
func GetcwdR(r *reent.Reent, buf []byte) []byte {
	getcwd := func(b []byte) *[]byte {
		return callPtr(r, syscallabi.SYS_getcwd, func(s *syscallabi.Syscall) { s.Ptr0 = b },
			func(int) *[]byte { return &b })
	}
	if buf != nil {
		if b := getcwd(buf); b != nil {
			return *b
		}
		return nil
	}
	for size := initialCwdSize; ; size *= 2 {
		if b := getcwd(make([]byte, size)); b != nil {
			return *b
		}
		if r.Errno != syscallabi.ERANGE {
			return nil
		}
	}
}

func Getcwd(ctx context.Context, buf []byte) []byte {
	return GetcwdR(reent.FromContext(ctx), buf)
}

// GetdentsR fills b with kernel-entries directory records from fd.
func GetdentsR(r *reent.Reent, fd int, b []byte) int {
	return call(r, syscallabi.SYS_getdents, func(s *syscallabi.Syscall) { s.Int0, s.Ptr0 = fd, b })
}

func Getdents(ctx context.Context, fd int, b []byte) int {
	return GetdentsR(reent.FromContext(ctx), fd, b)
}

// UtimeR sets the access and modification times of path; a nil times sets
// both to now.
func UtimeR(r *reent.Reent, path string, times *syscallabi.Utimbuf) int {
	return call(r, syscallabi.SYS_utime, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = path, times })
}

func Utime(ctx context.Context, path string, times *syscallabi.Utimbuf) int {
	return UtimeR(reent.FromContext(ctx), path, times)
}

func FtruncateR(r *reent.Reent, fd, length int) int {
	return call(r, syscallabi.SYS_ftruncate, func(s *syscallabi.Syscall) { s.Int0, s.Int1 = fd, length })
}

func Ftruncate(ctx context.Context, fd, length int) int {
	return FtruncateR(reent.FromContext(ctx), fd, length)
}

func PipeR(r *reent.Reent, fds *[2]int) int {
	return call(r, syscallabi.SYS_pipe, func(s *syscallabi.Syscall) { s.Ptr0 = fds })
}

func Pipe(ctx context.Context, fds *[2]int) int {
	return PipeR(reent.FromContext(ctx), fds)
}

func DupR(r *reent.Reent, fd int) int {
	return call(r, syscallabi.SYS_dup, func(s *syscallabi.Syscall) { s.Int0 = fd })
}

func Dup(ctx context.Context, fd int) int {
	return DupR(reent.FromContext(ctx), fd)
}

func Dup2R(r *reent.Reent, oldfd, newfd int) int {
	return call(r, syscallabi.SYS_dup2, func(s *syscallabi.Syscall) { s.Int0, s.Int1 = oldfd, newfd })
}

func Dup2(ctx context.Context, oldfd, newfd int) int {
	return Dup2R(reent.FromContext(ctx), oldfd, newfd)
}

func FcntlR(r *reent.Reent, fd, cmd, arg int) int {
	return call(r, syscallabi.SYS_fcntl, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Int2 = fd, cmd, arg
	})
}

func Fcntl(ctx context.Context, fd, cmd, arg int) int {
	return FcntlR(reent.FromContext(ctx), fd, cmd, arg)
}

// The mode and ownership calls succeed without effect: the guest always
// runs as root over a filesystem it does not own.

func ChmodR(r *reent.Reent, path string, mode int) int { return 0 }

func Chmod(ctx context.Context, path string, mode int) int { return 0 }

func FchmodR(r *reent.Reent, fd, mode int) int { return 0 }

func Fchmod(ctx context.Context, fd, mode int) int { return 0 }

func ChownR(r *reent.Reent, path string, uid, gid int) int { return 0 }

func Chown(ctx context.Context, path string, uid, gid int) int { return 0 }

func FchownR(r *reent.Reent, fd, uid, gid int) int { return 0 }

func Fchown(ctx context.Context, fd, uid, gid int) int { return 0 }

func LchownR(r *reent.Reent, path string, uid, gid int) int { return 0 }

func Lchown(ctx context.Context, path string, uid, gid int) int { return 0 }

func SyncR(r *reent.Reent) {}

func Sync(ctx context.Context) {}

func FsyncR(r *reent.Reent, fd int) int { return 0 }

func Fsync(ctx context.Context, fd int) int { return 0 }

func SymlinkR(r *reent.Reent, target, path string) int {
	return call(r, syscallabi.SYS_symlink, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = target, path })
}

func Symlink(ctx context.Context, target, path string) int {
	return SymlinkR(reent.FromContext(ctx), target, path)
}

func ReadlinkR(r *reent.Reent, path string, buf []byte) int {
	return call(r, syscallabi.SYS_readlink, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = path, buf })
}

func Readlink(ctx context.Context, path string, buf []byte) int {
	return ReadlinkR(reent.FromContext(ctx), path, buf)
}

func LinkR(r *reent.Reent, oldpath, newpath string) int {
	return call(r, syscallabi.SYS_link, func(s *syscallabi.Syscall) { s.Ptr0, s.Ptr1 = oldpath, newpath })
}

func Link(ctx context.Context, oldpath, newpath string) int {
	return LinkR(reent.FromContext(ctx), oldpath, newpath)
}

func MknodR(r *reent.Reent, path string, mode, dev int) int {
	return call(r, syscallabi.SYS_mknod, func(s *syscallabi.Syscall) {
		s.Ptr0, s.Int0, s.Int1 = path, mode, dev
	})
}

func Mknod(ctx context.Context, path string, mode, dev int) int {
	return MknodR(reent.FromContext(ctx), path, mode, dev)
}

func MkfifoR(r *reent.Reent, path string, mode int) int {
	return call(r, syscallabi.SYS_mkfifo, func(s *syscallabi.Syscall) { s.Ptr0, s.Int0 = path, mode })
}

func Mkfifo(ctx context.Context, path string, mode int) int {
	return MkfifoR(reent.FromContext(ctx), path, mode)
}

func ChrootR(r *reent.Reent, path string) int {
	return call(r, syscallabi.SYS_chroot, func(s *syscallabi.Syscall) { s.Ptr0 = path })
}

func Chroot(ctx context.Context, path string) int {
	return ChrootR(reent.FromContext(ctx), path)
}

// PathconfR knows no names.
func PathconfR(r *reent.Reent, path string, name int) int {
	FprintfR(r, 2, "WARNING: pathconf: Unknown \"name\": %d\n", name)
	return fail(r, syscallabi.EINVAL)
}

func Pathconf(ctx context.Context, path string, name int) int {
	return PathconfR(reent.FromContext(ctx), path, name)
}

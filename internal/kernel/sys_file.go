package kernel

import (
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// hostOpenFlags translates guest open flags to the host's.
func hostOpenFlags(flags int) int {
	var h int
	switch flags & syscallabi.O_ACCMODE {
	case syscallabi.O_RDONLY:
		h = os.O_RDONLY
	case syscallabi.O_WRONLY:
		h = os.O_WRONLY
	default:
		h = os.O_RDWR
	}
	if flags&syscallabi.O_APPEND != 0 {
		h |= os.O_APPEND
	}
	if flags&syscallabi.O_CREAT != 0 {
		h |= os.O_CREATE
	}
	if flags&syscallabi.O_TRUNC != 0 {
		h |= os.O_TRUNC
	}
	if flags&syscallabi.O_EXCL != 0 {
		h |= os.O_EXCL
	}
	return h
}

func sysopen(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	path, _ := s.Ptr0.(string)
	flags, mode := s.Int0, s.Int1
	if path == "" {
		return 0, syscallabi.ENOENT
	}
	f, errno := p.k.open(p.normalize(path), flags, mode)
	if errno != 0 {
		return 0, errno
	}
	return p.install(f, flags)
}

func (k *Kernel) open(guest string, flags, mode int) (file, syscallabi.Errno) {
	write := flags&syscallabi.O_ACCMODE != syscallabi.O_RDONLY
	if isDevPath(guest) {
		switch guest {
		case "/dev":
			if write {
				return nil, syscallabi.EISDIR
			}
			return openDevDir(), 0
		case "/dev/null":
			return devNull{}, 0
		case "/dev/zero":
			return devZero{}, 0
		}
		if flags&syscallabi.O_CREAT != 0 {
			return nil, syscallabi.EROFS
		}
		return nil, syscallabi.ENOENT
	}

	host := k.hostPath(guest)
	if st, err := os.Stat(host); err == nil && st.IsDir() {
		if write {
			return nil, syscallabi.EISDIR
		}
		return k.openHostDir(host)
	}
	perm := fs.FileMode(mode) & 0o777 &^ 0o022
	f, err := os.OpenFile(host, hostOpenFlags(flags), perm)
	if err != nil {
		return nil, syscallabi.FromHost(err)
	}
	return &hostFile{f: f, ino: k.inodes.get(host), host: host}, 0
}

func sysclose(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return 0, p.closeFd(s.Int0)
}

func sysread(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	b, _ := s.Ptr0.([]byte)
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	return f.read(b)
}

func syswrite(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	b, _ := s.Ptr0.([]byte)
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	return f.write(b)
}

func syslseek(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	pos, errno := f.seek(int64(s.Int1), s.Int2)
	return int(pos), errno
}

func sysfstat(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	st, ok := s.Ptr0.(*syscallabi.Stat)
	if !ok || st == nil {
		return 0, syscallabi.EFAULT
	}
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	return 0, f.stat(st)
}

func sysstat(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return p.statPath(s, os.Stat)
}

func syslstat(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return p.statPath(s, os.Lstat)
}

func (p *Proc) statPath(s *syscallabi.Syscall, statFn func(string) (fs.FileInfo, error)) (int, syscallabi.Errno) {
	path, _ := s.Ptr0.(string)
	st, ok := s.Ptr1.(*syscallabi.Stat)
	if path == "" {
		return 0, syscallabi.ENOENT
	}
	if !ok || st == nil {
		return 0, syscallabi.EFAULT
	}
	guest := p.normalize(path)
	switch guest {
	case "/dev":
		return 0, devStat(st, devRootIno)
	case "/dev/null":
		return 0, devStat(st, devNullIno)
	case "/dev/zero":
		return 0, devStat(st, devZeroIno)
	}
	if isDevPath(guest) {
		return 0, syscallabi.ENOENT
	}
	host := p.k.hostPath(guest)
	fi, err := statFn(host)
	if err != nil {
		return 0, syscallabi.FromHost(err)
	}
	fillStat(st, p.k.inodes.get(host), fi)
	return 0, 0
}

func sysisatty(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	if tty, ok := f.(*stdioFile); ok && tty.isatty() {
		return 1, 0
	}
	return 0, syscallabi.ENOTTY
}

// hostTarget resolves a path argument that names something to be created,
// removed or renamed. /dev is read-only.
func (p *Proc) hostTarget(v any) (string, syscallabi.Errno) {
	path, _ := v.(string)
	if path == "" {
		return "", syscallabi.ENOENT
	}
	guest := p.normalize(path)
	if isDevPath(guest) {
		return "", syscallabi.EROFS
	}
	return p.k.hostPath(guest), 0
}

func sysmkdir(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	host, errno := p.hostTarget(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	perm := fs.FileMode(s.Int0) & 0o777 &^ 0o022
	return 0, syscallabi.FromHost(os.Mkdir(host, perm))
}

func sysrmdir(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	host, errno := p.hostTarget(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	if host == p.k.root {
		return 0, syscallabi.EBUSY
	}
	return 0, syscallabi.FromHost(unix.Rmdir(host))
}

func sysunlink(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	host, errno := p.hostTarget(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	return 0, syscallabi.FromHost(unix.Unlink(host))
}

func sysrename(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	from, errno := p.hostTarget(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	to, errno := p.hostTarget(s.Ptr1)
	if errno != 0 {
		return 0, errno
	}
	return 0, syscallabi.FromHost(unix.Rename(from, to))
}

func syschdir(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	path, _ := s.Ptr0.(string)
	if path == "" {
		return 0, syscallabi.ENOENT
	}
	guest := p.normalize(path)
	switch {
	case guest == "/dev":
	case isDevPath(guest):
		if guest == "/dev/null" || guest == "/dev/zero" {
			return 0, syscallabi.ENOTDIR
		}
		return 0, syscallabi.ENOENT
	default:
		st, err := os.Stat(p.k.hostPath(guest))
		if err != nil {
			return 0, syscallabi.FromHost(err)
		}
		if !st.IsDir() {
			return 0, syscallabi.ENOTDIR
		}
	}
	p.k.mu.Lock()
	p.cwd = guest
	p.k.mu.Unlock()
	return 0, 0
}

// sysgetcwd copies the NUL-terminated working directory into the buffer
// and returns the path length.
func sysgetcwd(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	b, _ := s.Ptr0.([]byte)
	if len(b) == 0 {
		return 0, syscallabi.EINVAL
	}
	p.k.mu.Lock()
	cwd := p.cwd
	p.k.mu.Unlock()
	if len(b) < len(cwd)+1 {
		return 0, syscallabi.ERANGE
	}
	n := copy(b, cwd)
	b[n] = 0
	return n, 0
}

func sysgetdents(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	b, _ := s.Ptr0.([]byte)
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	d, ok := f.(*dirFile)
	if !ok {
		return 0, syscallabi.ENOTDIR
	}
	return d.getdents(b)
}

func sysutime(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	host, errno := p.hostTarget(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	atime, mtime := time.Now(), time.Now()
	if buf, ok := s.Ptr1.(*syscallabi.Utimbuf); ok && buf != nil {
		atime, mtime = time.Unix(buf.Actime, 0), time.Unix(buf.Modtime, 0)
	}
	return 0, syscallabi.FromHost(os.Chtimes(host, atime, mtime))
}

func sysftruncate(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	f, errno := p.file(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	hf, ok := f.(*hostFile)
	if !ok {
		return 0, syscallabi.EINVAL
	}
	return 0, hf.truncate(int64(s.Int1))
}

func syspipe(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	fds, ok := s.Ptr0.(*[2]int)
	if !ok || fds == nil {
		return 0, syscallabi.EFAULT
	}
	r, w := newPipe()
	rof := newOpenFile(r, syscallabi.O_RDONLY)
	wof := newOpenFile(w, syscallabi.O_WRONLY)

	k := p.k
	k.mu.Lock()
	rfd, errno := p.installLocked(rof, 0, false)
	if errno != 0 {
		k.mu.Unlock()
		return 0, errno
	}
	wfd, errno := p.installLocked(wof, 0, false)
	if errno != 0 {
		p.files[rfd] = nil
		k.mu.Unlock()
		return 0, errno
	}
	k.mu.Unlock()
	fds[0], fds[1] = rfd, wfd
	return 0, 0
}

func sysdup(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return p.dup(s.Int0, 0)
}

// dup installs another descriptor for fd at the lowest free slot >= min.
func (p *Proc) dup(fd, min int) (int, syscallabi.Errno) {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	e, errno := p.entryLocked(fd)
	if errno != 0 {
		return 0, errno
	}
	nfd, errno := p.installLocked(e.of, min, false)
	if errno != 0 {
		return 0, errno
	}
	e.of.refs++
	return nfd, 0
}

func sysdup2(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	oldfd, newfd := s.Int0, s.Int1
	if newfd < 0 || newfd >= syscallabi.OpenMax {
		return 0, syscallabi.EBADF
	}

	k := p.k
	k.mu.Lock()
	e, errno := p.entryLocked(oldfd)
	if errno != 0 {
		k.mu.Unlock()
		return 0, errno
	}
	if oldfd == newfd {
		k.mu.Unlock()
		return newfd, 0
	}
	var closing *openFile
	if old := p.files[newfd]; old != nil {
		closing = releaseLocked(old.of)
	}
	e.of.refs++
	p.files[newfd] = &fdEntry{of: e.of}
	k.mu.Unlock()

	if closing != nil {
		closing.f.close()
	}
	return newfd, 0
}

func sysfcntl(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	fd, cmd, arg := s.Int0, s.Int1, s.Int2
	if cmd == syscallabi.F_DUPFD {
		if arg < 0 || arg >= syscallabi.OpenMax {
			return 0, syscallabi.EINVAL
		}
		return p.dup(fd, arg)
	}

	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	e, errno := p.entryLocked(fd)
	if errno != 0 {
		return 0, errno
	}
	switch cmd {
	case syscallabi.F_GETFD:
		return syscallabi.BoolToInt(e.cloexec), 0
	case syscallabi.F_SETFD:
		e.cloexec = arg&syscallabi.FD_CLOEXEC != 0
		return 0, 0
	case syscallabi.F_GETFL:
		return e.of.flags &^ syscallabi.O_CLOEXEC, 0
	}
	k.logger.Warn("unsupported fcntl command", "pid", p.pid, "fd", fd, "cmd", cmd)
	return 0, syscallabi.ENOSYS
}

package kernel

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// A file is an open file description's backing object.
type file interface {
	read(b []byte) (int, syscallabi.Errno)
	write(b []byte) (int, syscallabi.Errno)
	seek(off int64, whence int) (int64, syscallabi.Errno)
	stat(st *syscallabi.Stat) syscallabi.Errno
	close() syscallabi.Errno
}

// An openFile is shared by every descriptor that refers to it, across dup
// and fork. refs is guarded by the kernel mutex.
type openFile struct {
	f     file
	flags int
	refs  int
}

func newOpenFile(f file, flags int) *openFile {
	return &openFile{f: f, flags: flags, refs: 1}
}

// releaseLocked drops a reference and returns of if the caller must now
// close it.
func releaseLocked(of *openFile) *openFile {
	of.refs--
	if of.refs == 0 {
		return of
	}
	return nil
}

type fdEntry struct {
	of      *openFile
	cloexec bool
}

func (p *Proc) file(fd int) (file, syscallabi.Errno) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	e, errno := p.entryLocked(fd)
	if errno != 0 {
		return nil, errno
	}
	return e.of.f, 0
}

func (p *Proc) entryLocked(fd int) (*fdEntry, syscallabi.Errno) {
	if fd < 0 || fd >= len(p.files) || p.files[fd] == nil {
		return nil, syscallabi.EBADF
	}
	return p.files[fd], 0
}

// installLocked puts of at the lowest free descriptor >= min.
func (p *Proc) installLocked(of *openFile, min int, cloexec bool) (int, syscallabi.Errno) {
	for fd := max(min, 0); fd < len(p.files); fd++ {
		if p.files[fd] == nil {
			p.files[fd] = &fdEntry{of: of, cloexec: cloexec}
			return fd, 0
		}
	}
	return 0, syscallabi.EMFILE
}

// install gives a freshly opened file a descriptor, closing it on failure.
func (p *Proc) install(f file, flags int) (int, syscallabi.Errno) {
	p.k.mu.Lock()
	fd, errno := p.installLocked(newOpenFile(f, flags), 0, flags&syscallabi.O_CLOEXEC != 0)
	p.k.mu.Unlock()
	if errno != 0 {
		f.close()
	}
	return fd, errno
}

// closeFd releases fd and closes the underlying file if it was the last
// reference.
func (p *Proc) closeFd(fd int) syscallabi.Errno {
	p.k.mu.Lock()
	e, errno := p.entryLocked(fd)
	if errno != 0 {
		p.k.mu.Unlock()
		return errno
	}
	p.files[fd] = nil
	of := releaseLocked(e.of)
	p.k.mu.Unlock()
	if of != nil {
		return of.f.close()
	}
	return 0
}

// noSeek is embedded by files that are streams.
type noSeek struct{}

func (noSeek) seek(int64, int) (int64, syscallabi.Errno) {
	return 0, syscallabi.ESPIPE
}

type stdioFile struct {
	noSeek
	r io.Reader
	w io.Writer
}

func (f *stdioFile) read(b []byte) (int, syscallabi.Errno) {
	if f.r == nil {
		return 0, syscallabi.EBADF
	}
	n, err := f.r.Read(b)
	if err != nil && !errors.Is(err, io.EOF) && n == 0 {
		return 0, syscallabi.FromHost(err)
	}
	return n, 0
}

func (f *stdioFile) write(b []byte) (int, syscallabi.Errno) {
	if f.w == nil {
		return 0, syscallabi.EBADF
	}
	n, err := f.w.Write(b)
	if err != nil {
		return n, syscallabi.FromHost(err)
	}
	return n, 0
}

func (f *stdioFile) stat(st *syscallabi.Stat) syscallabi.Errno {
	*st = syscallabi.Stat{Dev: devDev, Ino: 1, Mode: syscallabi.S_IFCHR | 0o620, Nlink: 1, Blksize: 1}
	return 0
}

func (f *stdioFile) close() syscallabi.Errno {
	return 0
}

func (f *stdioFile) isatty() bool {
	var v any = f.w
	if f.r != nil {
		v = f.r
	}
	osf, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(osf.Fd()) || isatty.IsCygwinTerminal(osf.Fd())
}

// hostFile is a regular file under the kernel root.
type hostFile struct {
	f    *os.File
	ino  uint32
	host string
}

func (f *hostFile) read(b []byte) (int, syscallabi.Errno) {
	n, err := f.f.Read(b)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, syscallabi.FromHost(err)
	}
	return n, 0
}

func (f *hostFile) write(b []byte) (int, syscallabi.Errno) {
	n, err := f.f.Write(b)
	if err != nil {
		return n, syscallabi.FromHost(err)
	}
	return n, 0
}

func (f *hostFile) seek(off int64, whence int) (int64, syscallabi.Errno) {
	if whence < syscallabi.SEEK_SET || whence > syscallabi.SEEK_END {
		return 0, syscallabi.EINVAL
	}
	pos, err := f.f.Seek(off, whence)
	if err != nil {
		return 0, syscallabi.FromHost(err)
	}
	return pos, 0
}

func (f *hostFile) stat(st *syscallabi.Stat) syscallabi.Errno {
	fi, err := f.f.Stat()
	if err != nil {
		return syscallabi.FromHost(err)
	}
	fillStat(st, f.ino, fi)
	return 0
}

func (f *hostFile) truncate(n int64) syscallabi.Errno {
	if n < 0 {
		return syscallabi.EINVAL
	}
	return syscallabi.FromHost(f.f.Truncate(n))
}

func (f *hostFile) close() syscallabi.Errno {
	return syscallabi.FromHost(f.f.Close())
}

const (
	hostDev = 1
	devDev  = 2
)

func fillStat(st *syscallabi.Stat, ino uint32, fi fs.FileInfo) {
	mode := uint32(fi.Mode().Perm())
	switch t := fi.Mode().Type(); {
	case t&fs.ModeDir != 0:
		mode |= syscallabi.S_IFDIR
	case t&fs.ModeSymlink != 0:
		mode |= syscallabi.S_IFLNK
	case t&fs.ModeNamedPipe != 0:
		mode |= syscallabi.S_IFIFO
	case t&fs.ModeSocket != 0:
		mode |= syscallabi.S_IFSOCK
	case t&fs.ModeCharDevice != 0:
		mode |= syscallabi.S_IFCHR
	default:
		mode |= syscallabi.S_IFREG
	}
	mtime := fi.ModTime().Unix()
	*st = syscallabi.Stat{
		Dev:     hostDev,
		Ino:     ino,
		Mode:    mode,
		Nlink:   1,
		Size:    fi.Size(),
		Atime:   mtime,
		Mtime:   mtime,
		Ctime:   mtime,
		Blksize: syscallabi.PageSize,
		Blocks:  (fi.Size() + 511) / 512,
	}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		st.Nlink = uint32(sys.Nlink)
		st.Blocks = int64(sys.Blocks)
	}
}

// devNull is /dev/null.
type devNull struct{}

func (devNull) read([]byte) (int, syscallabi.Errno) { return 0, 0 }
func (devNull) write(b []byte) (int, syscallabi.Errno) { return len(b), 0 }
func (devNull) seek(int64, int) (int64, syscallabi.Errno) { return 0, 0 }
func (devNull) close() syscallabi.Errno { return 0 }
func (devNull) stat(st *syscallabi.Stat) syscallabi.Errno { return devStat(st, devNullIno) }

// devZero is /dev/zero.
type devZero struct{}

func (devZero) read(b []byte) (int, syscallabi.Errno) {
	clear(b)
	return len(b), 0
}
func (devZero) write(b []byte) (int, syscallabi.Errno) { return len(b), 0 }
func (devZero) seek(int64, int) (int64, syscallabi.Errno) { return 0, 0 }
func (devZero) close() syscallabi.Errno { return 0 }
func (devZero) stat(st *syscallabi.Stat) syscallabi.Errno { return devStat(st, devZeroIno) }

const (
	devRootIno = 1
	devNullIno = 2
	devZeroIno = 3
)

func devStat(st *syscallabi.Stat, ino uint32) syscallabi.Errno {
	mode := uint32(syscallabi.S_IFCHR | 0o666)
	if ino == devRootIno {
		mode = syscallabi.S_IFDIR | 0o755
	}
	*st = syscallabi.Stat{Dev: devDev, Ino: ino, Mode: mode, Nlink: 1, Blksize: syscallabi.PageSize}
	return 0
}

// Package dirstream iterates directory entries for guest programs.
//
// A stream opened with Opendir decodes the kernel-entries records that
// getdents fills a buffer with: {uint32 reclen, uint32 ino, name, NUL,
// padding} in big-endian order. A stream from FdopendirPacked decodes the
// packed records that a plain read of a directory descriptor yields:
// {int32 ino, int32 namelen} in host order followed by the name.
package dirstream

import (
	"context"
	"encoding/binary"

	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const (
	// NameMax is the longest name a packed stream accepts.
	NameMax = 255

	bufSize      = 1024
	headerLength = 8
)

// An Entry is one directory entry.
type Entry struct {
	Ino  uint32
	Name string
	// Reclen is the length of the record the entry was decoded from.
	Reclen int
}

// A Dir is an open directory stream.
type Dir struct {
	fd     int
	packed bool
	closed bool

	// buf[pos:n] holds undecoded kernel-entries records.
	buf []byte
	pos int
	n   int

	name   []byte
	offset int
	eof    bool
}

// OpendirR opens path for iteration. It fails with ENOTDIR if path is not
// a directory.
func OpendirR(r *reent.Reent, path string) *Dir {
	fd := libc.OpenR(r, path, syscallabi.O_RDONLY, 0)
	if fd < 0 {
		return nil
	}
	var st syscallabi.Stat
	if libc.FstatR(r, fd, &st) < 0 || !st.IsDir() {
		libc.CloseR(r, fd)
		r.Errno = syscallabi.ENOTDIR
		return nil
	}
	return &Dir{fd: fd, buf: make([]byte, bufSize)}
}

func Opendir(ctx context.Context, path string) *Dir {
	return OpendirR(reent.FromContext(ctx), path)
}

// FdopendirPacked iterates the packed records readable from fd. The
// stream takes ownership of fd.
func FdopendirPacked(fd int) *Dir {
	return &Dir{fd: fd, packed: true, name: make([]byte, NameMax+1)}
}

// Fd returns the descriptor behind d.
func (d *Dir) Fd() int {
	return d.fd
}

// Tell returns the number of bytes of records consumed so far.
func (d *Dir) Tell() int {
	return d.offset
}

// ReaddirR returns the next entry, or nil at the end of the stream or on
// error. It clears the error slot first, so a nil result with Errno still 0
// is the end of the stream.
func ReaddirR(r *reent.Reent, d *Dir) *Entry {
	r.Errno = 0
	if d.closed {
		r.Errno = syscallabi.EBADF
		return nil
	}
	if d.eof {
		return nil
	}
	var e *Entry
	if d.packed {
		e = d.nextPacked(r)
	} else {
		e = d.nextEntry(r)
	}
	if e == nil {
		d.eof = true
		return nil
	}
	d.offset += e.Reclen
	return e
}

func Readdir(ctx context.Context, d *Dir) *Entry {
	return ReaddirR(reent.FromContext(ctx), d)
}

func (d *Dir) nextEntry(r *reent.Reent) *Entry {
	if d.pos == d.n {
		n := libc.GetdentsR(r, d.fd, d.buf)
		d.pos = 0
		if n <= 0 {
			d.n = 0
			return nil
		}
		d.n = n
	}

	rec := d.buf[d.pos:d.n]
	if len(rec) < headerLength {
		return nil
	}
	reclen := int(binary.BigEndian.Uint32(rec[0:4]))
	if reclen < headerLength || reclen > len(rec) {
		return nil
	}
	d.pos += reclen
	return &Entry{
		Ino:    binary.BigEndian.Uint32(rec[4:8]),
		Name:   libc.CString(rec[headerLength:reclen]),
		Reclen: reclen,
	}
}

func (d *Dir) nextPacked(r *reent.Reent) *Entry {
	var hdr [headerLength]byte
	if !readFull(r, d.fd, hdr[:]) {
		return nil
	}
	ino := int32(binary.NativeEndian.Uint32(hdr[0:4]))
	namelen := int(int32(binary.NativeEndian.Uint32(hdr[4:8])))
	if namelen < 0 || namelen > len(d.name)-1 {
		return nil
	}
	if !readFull(r, d.fd, d.name[:namelen]) {
		return nil
	}
	d.name[namelen] = 0
	return &Entry{
		Ino:    uint32(ino),
		Name:   string(d.name[:namelen]),
		Reclen: headerLength + namelen,
	}
}

// readFull reads exactly len(b) bytes from fd.
func readFull(r *reent.Reent, fd int, b []byte) bool {
	for len(b) > 0 {
		n := libc.ReadR(r, fd, b)
		if n <= 0 {
			return false
		}
		b = b[n:]
	}
	return true
}

// ClosedirR closes the stream and its descriptor.
func ClosedirR(r *reent.Reent, d *Dir) int {
	d.closed = true
	d.buf, d.name = nil, nil
	return libc.CloseR(r, d.fd)
}

func Closedir(ctx context.Context, d *Dir) int {
	return ClosedirR(reent.FromContext(ctx), d)
}

// RewinddirR restarts the stream from the first entry.
func RewinddirR(r *reent.Reent, d *Dir) int {
	if d.closed {
		r.Errno = syscallabi.EBADF
		return -1
	}
	if libc.LseekR(r, d.fd, 0, syscallabi.SEEK_SET) < 0 {
		return -1
	}
	d.pos, d.n, d.offset, d.eof = 0, 0, 0, false
	return 0
}

func Rewinddir(ctx context.Context, d *Dir) int {
	return RewinddirR(reent.FromContext(ctx), d)
}

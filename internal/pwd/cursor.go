package pwd

import (
	"bytes"
	"strings"

	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const readSize = 512

// A Cursor walks the records of a database file.
type Cursor struct {
	fd  int
	buf []byte
	eof bool
}

// OpenCursorR opens the file at path for iteration.
func OpenCursorR(r *reent.Reent, path string) *Cursor {
	fd := libc.OpenR(r, path, syscallabi.O_RDONLY, 0)
	if fd < 0 {
		return nil
	}
	return &Cursor{fd: fd}
}

// NextPasswdR returns the next passwd record, or nil at the end of the
// file. A malformed line stores EINVAL and also returns nil.
func (c *Cursor) NextPasswdR(r *reent.Reent) *Passwd {
	p, _ := next(c, r, parsePasswd)
	return p
}

// NextGroupR is NextPasswdR for group files.
func (c *Cursor) NextGroupR(r *reent.Reent) *Group {
	g, _ := next(c, r, parseGroup)
	return g
}

// CloseR releases the cursor's descriptor.
func (c *Cursor) CloseR(r *reent.Reent) int {
	if c.fd < 0 {
		return 0
	}
	fd := c.fd
	c.fd, c.buf = -1, nil
	return libc.CloseR(r, fd)
}

type lineStatus int

const (
	lineOK lineStatus = iota
	lineEOF
	lineError
)

// line returns the next raw line, without its newline.
func (c *Cursor) line(r *reent.Reent) (string, lineStatus) {
	if c.fd < 0 {
		return "", lineEOF
	}
	for {
		if i := bytes.IndexByte(c.buf, '\n'); i >= 0 {
			l := string(c.buf[:i])
			c.buf = c.buf[i+1:]
			return l, lineOK
		}
		if c.eof {
			if len(c.buf) == 0 {
				return "", lineEOF
			}
			l := string(c.buf)
			c.buf = nil
			return l, lineOK
		}
		chunk := make([]byte, readSize)
		n := libc.ReadR(r, c.fd, chunk)
		if n < 0 {
			return "", lineError
		}
		if n == 0 {
			c.eof = true
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

// next returns the next record, skipping comments and empty lines.
func next[T any](c *Cursor, r *reent.Reent, parse func(string) (*T, bool)) (*T, lineStatus) {
	for {
		l, st := c.line(r)
		if st != lineOK {
			return nil, st
		}
		l = strings.TrimSuffix(l, "\r")
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		v, ok := parse(l)
		if !ok {
			r.Errno = syscallabi.EINVAL
			return nil, lineError
		}
		return v, lineOK
	}
}

package kernel

import (
	"sync"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const pipeBufferSize = 64 * 1024

// pipe is a bounded in-kernel byte queue. Readers block while it is empty
// and a writer remains; writers block while it is full and a reader
// remains.
type pipe struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	readers int
	writers int
}

func newPipe() (*pipeEnd, *pipeEnd) {
	p := &pipe{readers: 1, writers: 1}
	p.cond = sync.NewCond(&p.mu)
	return &pipeEnd{p: p}, &pipeEnd{p: p, writer: true}
}

type pipeEnd struct {
	noSeek
	p      *pipe
	writer bool
}

func (e *pipeEnd) read(b []byte) (int, syscallabi.Errno) {
	if e.writer {
		return 0, syscallabi.EBADF
	}
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 {
		if p.writers == 0 {
			return 0, 0
		}
		p.cond.Wait()
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	p.cond.Broadcast()
	return n, 0
}

func (e *pipeEnd) write(b []byte) (int, syscallabi.Errno) {
	if !e.writer {
		return 0, syscallabi.EBADF
	}
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	written := 0
	for written < len(b) {
		if p.readers == 0 {
			if written > 0 {
				return written, 0
			}
			return 0, syscallabi.EPIPE
		}
		space := pipeBufferSize - len(p.buf)
		if space == 0 {
			p.cond.Wait()
			continue
		}
		n := min(space, len(b)-written)
		p.buf = append(p.buf, b[written:written+n]...)
		written += n
		p.cond.Broadcast()
	}
	return written, 0
}

func (e *pipeEnd) stat(st *syscallabi.Stat) syscallabi.Errno {
	e.p.mu.Lock()
	size := len(e.p.buf)
	e.p.mu.Unlock()
	*st = syscallabi.Stat{Mode: syscallabi.S_IFIFO | 0o600, Nlink: 1, Size: int64(size), Blksize: pipeBufferSize}
	return 0
}

func (e *pipeEnd) close() syscallabi.Errno {
	p := e.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.writer {
		p.writers--
	} else {
		p.readers--
		p.buf = nil
	}
	p.cond.Broadcast()
	return 0
}

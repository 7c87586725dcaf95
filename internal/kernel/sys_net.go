package kernel

import (
	"net/netip"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func syssocket(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	domain, typ, proto := s.Int0, s.Int1, s.Int2
	if domain != syscallabi.AF_INET || (typ != syscallabi.SOCK_STREAM && typ != syscallabi.SOCK_DGRAM) || proto != 0 {
		return 0, syscallabi.EPROTONOSUPPORT
	}
	return p.install(&socket{typ: typ}, syscallabi.O_RDWR)
}

func (p *Proc) socket(fd int) (*socket, syscallabi.Errno) {
	f, errno := p.file(fd)
	if errno != 0 {
		return nil, errno
	}
	so, ok := f.(*socket)
	if !ok {
		return nil, syscallabi.ENOTSOCK
	}
	return so, 0
}

func sysbind(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	ap, errno := readSockaddr(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	return 0, so.bind(ap)
}

func syslisten(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	return 0, so.listen()
}

// sysaccept blocks for a connection and installs it, storing the peer
// address through Ptr0 when given.
func sysaccept(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	conn, peer, errno := so.accept()
	if errno != 0 {
		return 0, errno
	}
	fd, errno := p.install(conn, syscallabi.O_RDWR)
	if errno != 0 {
		return 0, errno
	}
	writeSockaddr(s.Ptr0, peer)
	return fd, 0
}

func sysconnect(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	ap, errno := readSockaddr(s.Ptr0)
	if errno != 0 {
		return 0, errno
	}
	return 0, so.connect(ap)
}

func sysshutdown(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	return 0, so.shutdown(s.Int1)
}

// syssendto sends Ptr0 to the address in Ptr1, or to the connected peer
// when Ptr1 is nil. No flags are supported.
func syssendto(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	if s.Int1 != 0 {
		return 0, syscallabi.EINVAL
	}
	b, _ := s.Ptr0.([]byte)
	var to *netip.AddrPort
	if sa, ok := s.Ptr1.(*syscallabi.SockaddrInet); ok && sa != nil {
		ap, errno := readSockaddr(sa)
		if errno != 0 {
			return 0, errno
		}
		to = &ap
	}
	return so.sendto(b, to)
}

func sysrecvfrom(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	if s.Int1 != 0 {
		return 0, syscallabi.EINVAL
	}
	b, _ := s.Ptr0.([]byte)
	n, from, errno := so.recvfrom(b)
	if errno != 0 {
		return 0, errno
	}
	writeSockaddr(s.Ptr1, from)
	return n, 0
}

// sysgetsockopt stores a 4-byte option value into Ptr0.
func sysgetsockopt(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	level, name := s.Int1, s.Int2
	if !knownSockopt(level, name) {
		p.warnf("WARNING: getsockopt: Unknown level/name: %d/%d", level, name)
		return 0, syscallabi.ENOPROTOOPT
	}
	b, _ := s.Ptr0.([]byte)
	if len(b) < 4 {
		return 0, syscallabi.EINVAL
	}
	putSockoptValue(b, so.getsockopt(name))
	return 4, 0
}

func syssetsockopt(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	so, errno := p.socket(s.Int0)
	if errno != 0 {
		return 0, errno
	}
	level, name := s.Int1, s.Int2
	if !knownSockopt(level, name) {
		p.warnf("WARNING: setsockopt: Unknown level/name: %d/%d", level, name)
		return 0, syscallabi.ENOPROTOOPT
	}
	b, _ := s.Ptr0.([]byte)
	v, errno := sockoptValue(b)
	if errno != 0 {
		return 0, errno
	}
	return 0, so.setsockopt(name, v != 0)
}

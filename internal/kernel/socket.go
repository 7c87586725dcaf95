package kernel

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// socket is an AF_INET socket backed by a host connection. Fields are
// guarded by mu; blocking host calls run without it.
type socket struct {
	noSeek
	typ int

	mu        sync.Mutex
	bound     netip.AddrPort
	isBound   bool
	reuseAddr bool
	keepAlive bool
	ln        *net.TCPListener
	conn      net.Conn
	pc        *net.UDPConn
	peer      netip.AddrPort
	hasPeer   bool
}

func readSockaddr(v any) (netip.AddrPort, syscallabi.Errno) {
	sa, ok := v.(*syscallabi.SockaddrInet)
	if !ok || sa == nil {
		return netip.AddrPort{}, syscallabi.EINVAL
	}
	if sa.Family != syscallabi.AF_INET {
		return netip.AddrPort{}, syscallabi.EAFNOSUPPORT
	}
	if sa.Port < 0 || sa.Port > 0xffff {
		return netip.AddrPort{}, syscallabi.EINVAL
	}
	return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), 0
}

func writeSockaddr(v any, ap netip.AddrPort) {
	sa, ok := v.(*syscallabi.SockaddrInet)
	if !ok || sa == nil {
		return
	}
	addr := ap.Addr().Unmap()
	*sa = syscallabi.SockaddrInet{Family: syscallabi.AF_INET, Port: int(ap.Port())}
	if addr.Is4() {
		sa.Addr = addr.As4()
	}
}

func addrPortOf(a net.Addr) netip.AddrPort {
	switch a := a.(type) {
	case *net.TCPAddr:
		return a.AddrPort()
	case *net.UDPAddr:
		return a.AddrPort()
	}
	return netip.AddrPort{}
}

// control applies the socket options the guest set before the host socket
// existed.
func (s *socket) control(network, address string, c syscall.RawConn) error {
	s.mu.Lock()
	reuse, keep := s.reuseAddr, s.keepAlive
	s.mu.Unlock()

	var serr error
	err := c.Control(func(fd uintptr) {
		if reuse {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		}
		if serr == nil && keep {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		}
	})
	if err != nil {
		return err
	}
	return serr
}

func (s *socket) localAddr() string {
	if s.isBound {
		return s.bound.String()
	}
	return "0.0.0.0:0"
}

func (s *socket) bind(ap netip.AddrPort) syscallabi.Errno {
	s.mu.Lock()
	if s.conn != nil || s.ln != nil {
		s.mu.Unlock()
		return syscallabi.EISCONN
	}
	if s.isBound {
		s.mu.Unlock()
		return syscallabi.EINVAL
	}
	s.mu.Unlock()

	if s.typ == syscallabi.SOCK_DGRAM {
		lc := net.ListenConfig{Control: s.control}
		pc, err := lc.ListenPacket(context.Background(), "udp4", ap.String())
		if err != nil {
			return syscallabi.FromHost(err)
		}
		s.mu.Lock()
		s.pc = pc.(*net.UDPConn)
		s.bound, s.isBound = addrPortOf(pc.LocalAddr()), true
		s.mu.Unlock()
		return 0
	}

	s.mu.Lock()
	s.bound, s.isBound = ap, true
	s.mu.Unlock()
	return 0
}

func (s *socket) listen() syscallabi.Errno {
	if s.typ != syscallabi.SOCK_STREAM {
		return syscallabi.EOPNOTSUPP
	}
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return syscallabi.EISCONN
	}
	if s.ln != nil {
		s.mu.Unlock()
		return 0
	}
	addr := s.localAddr()
	s.mu.Unlock()

	lc := net.ListenConfig{Control: s.control}
	ln, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return syscallabi.FromHost(err)
	}
	s.mu.Lock()
	s.ln = ln.(*net.TCPListener)
	s.bound, s.isBound = addrPortOf(ln.Addr()), true
	s.mu.Unlock()
	return 0
}

func (s *socket) accept() (*socket, netip.AddrPort, syscallabi.Errno) {
	if s.typ != syscallabi.SOCK_STREAM {
		return nil, netip.AddrPort{}, syscallabi.EOPNOTSUPP
	}
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return nil, netip.AddrPort{}, syscallabi.EINVAL
	}
	c, err := ln.Accept()
	if err != nil {
		return nil, netip.AddrPort{}, syscallabi.FromHost(err)
	}
	conn := &socket{typ: syscallabi.SOCK_STREAM, conn: c}
	conn.bound, conn.isBound = addrPortOf(c.LocalAddr()), true
	return conn, addrPortOf(c.RemoteAddr()), 0
}

func (s *socket) connect(ap netip.AddrPort) syscallabi.Errno {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return syscallabi.EISCONN
	}
	if s.ln != nil {
		s.mu.Unlock()
		return syscallabi.EINVAL
	}
	if s.typ == syscallabi.SOCK_DGRAM {
		s.peer, s.hasPeer = ap, true
		s.mu.Unlock()
		return 0
	}
	var local net.Addr
	if s.isBound {
		local = net.TCPAddrFromAddrPort(s.bound)
	}
	s.mu.Unlock()

	d := net.Dialer{LocalAddr: local, Control: s.control}
	c, err := d.Dial("tcp4", ap.String())
	if err != nil {
		return syscallabi.FromHost(err)
	}
	s.mu.Lock()
	s.conn = c
	s.bound, s.isBound = addrPortOf(c.LocalAddr()), true
	s.mu.Unlock()
	return 0
}

func (s *socket) shutdown(how int) syscallabi.Errno {
	if how < syscallabi.SHUT_RD || how > syscallabi.SHUT_RDWR {
		return syscallabi.EINVAL
	}
	s.mu.Lock()
	c, ok := s.conn.(*net.TCPConn)
	s.mu.Unlock()
	if !ok {
		return syscallabi.ENOTCONN
	}
	var err error
	switch how {
	case syscallabi.SHUT_RD:
		err = c.CloseRead()
	case syscallabi.SHUT_WR:
		err = c.CloseWrite()
	case syscallabi.SHUT_RDWR:
		if err = c.CloseRead(); err == nil {
			err = c.CloseWrite()
		}
	}
	return syscallabi.FromHost(err)
}

// packetConn returns the datagram socket, binding it to an ephemeral port
// on first use.
func (s *socket) packetConn() (*net.UDPConn, syscallabi.Errno) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc != nil {
		return pc, 0
	}
	if errno := s.bind(netip.AddrPortFrom(netip.IPv4Unspecified(), 0)); errno != 0 {
		return nil, errno
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc, 0
}

func (s *socket) sendto(b []byte, to *netip.AddrPort) (int, syscallabi.Errno) {
	if s.typ == syscallabi.SOCK_STREAM {
		s.mu.Lock()
		c := s.conn
		s.mu.Unlock()
		if c == nil {
			return 0, syscallabi.ENOTCONN
		}
		n, err := c.Write(b)
		if err != nil {
			return n, syscallabi.FromHost(err)
		}
		return n, 0
	}

	s.mu.Lock()
	peer, hasPeer := s.peer, s.hasPeer
	s.mu.Unlock()
	if to == nil {
		if !hasPeer {
			return 0, syscallabi.EDESTADDRREQ
		}
		to = &peer
	}
	pc, errno := s.packetConn()
	if errno != 0 {
		return 0, errno
	}
	n, err := pc.WriteToUDPAddrPort(b, *to)
	if err != nil {
		return n, syscallabi.FromHost(err)
	}
	return n, 0
}

func (s *socket) recvfrom(b []byte) (int, netip.AddrPort, syscallabi.Errno) {
	if s.typ == syscallabi.SOCK_STREAM {
		s.mu.Lock()
		c := s.conn
		s.mu.Unlock()
		if c == nil {
			return 0, netip.AddrPort{}, syscallabi.ENOTCONN
		}
		n, err := c.Read(b)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, netip.AddrPort{}, syscallabi.FromHost(err)
		}
		return n, addrPortOf(c.RemoteAddr()), 0
	}

	pc, errno := s.packetConn()
	if errno != 0 {
		return 0, netip.AddrPort{}, errno
	}
	n, from, err := pc.ReadFromUDPAddrPort(b)
	if err != nil {
		return n, from, syscallabi.FromHost(err)
	}
	return n, from, 0
}

func (s *socket) read(b []byte) (int, syscallabi.Errno) {
	n, _, errno := s.recvfrom(b)
	return n, errno
}

func (s *socket) write(b []byte) (int, syscallabi.Errno) {
	return s.sendto(b, nil)
}

const (
	optReuseAddr = syscallabi.SO_REUSEADDR
	optKeepAlive = syscallabi.SO_KEEPALIVE
)

func knownSockopt(level, name int) bool {
	return level == syscallabi.SOL_SOCKET && (name == optReuseAddr || name == optKeepAlive)
}

func (s *socket) getsockopt(name int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == optReuseAddr {
		return syscallabi.BoolToInt(s.reuseAddr)
	}
	return syscallabi.BoolToInt(s.keepAlive)
}

func (s *socket) setsockopt(name int, on bool) syscallabi.Errno {
	s.mu.Lock()
	if name == optReuseAddr {
		s.reuseAddr = on
		s.mu.Unlock()
		return 0
	}
	s.keepAlive = on
	c, _ := s.conn.(*net.TCPConn)
	s.mu.Unlock()
	if c != nil {
		return syscallabi.FromHost(c.SetKeepAlive(on))
	}
	return 0
}

func sockoptValue(b []byte) (int, syscallabi.Errno) {
	if len(b) != 4 {
		return 0, syscallabi.EINVAL
	}
	return int(int32(binary.NativeEndian.Uint32(b))), 0
}

func putSockoptValue(b []byte, v int) {
	binary.NativeEndian.PutUint32(b, uint32(int32(v)))
}

func (s *socket) stat(st *syscallabi.Stat) syscallabi.Errno {
	*st = syscallabi.Stat{Mode: syscallabi.S_IFSOCK | 0o777, Nlink: 1, Blksize: syscallabi.PageSize}
	return 0
}

func (s *socket) close() syscallabi.Errno {
	s.mu.Lock()
	ln, conn, pc := s.ln, s.conn, s.pc
	s.ln, s.conn, s.pc = nil, nil, nil
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = errors.Join(err, ln.Close())
	}
	if conn != nil {
		err = errors.Join(err, conn.Close())
	}
	if pc != nil {
		err = errors.Join(err, pc.Close())
	}
	return syscallabi.FromHost(err)
}

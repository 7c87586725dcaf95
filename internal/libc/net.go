package libc

import (
	"context"
	"encoding/binary"

	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func SocketR(r *reent.Reent, domain, typ, proto int) int {
	return call(r, syscallabi.SYS_socket, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Int2 = domain, typ, proto
	})
}

func Socket(ctx context.Context, domain, typ, proto int) int {
	return SocketR(reent.FromContext(ctx), domain, typ, proto)
}

func BindR(r *reent.Reent, fd int, sa *syscallabi.SockaddrInet) int {
	return call(r, syscallabi.SYS_bind, func(s *syscallabi.Syscall) { s.Int0, s.Ptr0 = fd, sa })
}

func Bind(ctx context.Context, fd int, sa *syscallabi.SockaddrInet) int {
	return BindR(reent.FromContext(ctx), fd, sa)
}

func ListenR(r *reent.Reent, fd, backlog int) int {
	return call(r, syscallabi.SYS_listen, func(s *syscallabi.Syscall) { s.Int0, s.Int1 = fd, backlog })
}

func Listen(ctx context.Context, fd, backlog int) int {
	return ListenR(reent.FromContext(ctx), fd, backlog)
}

// AcceptR waits for a connection on fd. The peer address is stored in sa
// when it is not nil.
func AcceptR(r *reent.Reent, fd int, sa *syscallabi.SockaddrInet) int {
	return call(r, syscallabi.SYS_accept, func(s *syscallabi.Syscall) {
		s.Int0 = fd
		if sa != nil {
			s.Ptr0 = sa
		}
	})
}

func Accept(ctx context.Context, fd int, sa *syscallabi.SockaddrInet) int {
	return AcceptR(reent.FromContext(ctx), fd, sa)
}

func ConnectR(r *reent.Reent, fd int, sa *syscallabi.SockaddrInet) int {
	return call(r, syscallabi.SYS_connect, func(s *syscallabi.Syscall) { s.Int0, s.Ptr0 = fd, sa })
}

func Connect(ctx context.Context, fd int, sa *syscallabi.SockaddrInet) int {
	return ConnectR(reent.FromContext(ctx), fd, sa)
}

func ShutdownR(r *reent.Reent, fd, how int) int {
	return call(r, syscallabi.SYS_shutdown, func(s *syscallabi.Syscall) { s.Int0, s.Int1 = fd, how })
}

func Shutdown(ctx context.Context, fd, how int) int {
	return ShutdownR(reent.FromContext(ctx), fd, how)
}

func SendtoR(r *reent.Reent, fd int, b []byte, flags int, to *syscallabi.SockaddrInet) int {
	return call(r, syscallabi.SYS_sendto, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Ptr0 = fd, flags, b
		if to != nil {
			s.Ptr1 = to
		}
	})
}

func Sendto(ctx context.Context, fd int, b []byte, flags int, to *syscallabi.SockaddrInet) int {
	return SendtoR(reent.FromContext(ctx), fd, b, flags, to)
}

func SendR(r *reent.Reent, fd int, b []byte, flags int) int {
	return SendtoR(r, fd, b, flags, nil)
}

func Send(ctx context.Context, fd int, b []byte, flags int) int {
	return SendR(reent.FromContext(ctx), fd, b, flags)
}

func RecvfromR(r *reent.Reent, fd int, b []byte, flags int, from *syscallabi.SockaddrInet) int {
	return call(r, syscallabi.SYS_recvfrom, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Ptr0 = fd, flags, b
		if from != nil {
			s.Ptr1 = from
		}
	})
}

func Recvfrom(ctx context.Context, fd int, b []byte, flags int, from *syscallabi.SockaddrInet) int {
	return RecvfromR(reent.FromContext(ctx), fd, b, flags, from)
}

func RecvR(r *reent.Reent, fd int, b []byte, flags int) int {
	return RecvfromR(r, fd, b, flags, nil)
}

func Recv(ctx context.Context, fd int, b []byte, flags int) int {
	return RecvR(reent.FromContext(ctx), fd, b, flags)
}

// GetsockoptR stores the 4-byte value of an option into val.
func GetsockoptR(r *reent.Reent, fd, level, name int, val []byte) int {
	return call(r, syscallabi.SYS_getsockopt, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Int2, s.Ptr0 = fd, level, name, val
	})
}

func Getsockopt(ctx context.Context, fd, level, name int, val []byte) int {
	return GetsockoptR(reent.FromContext(ctx), fd, level, name, val)
}

func SetsockoptR(r *reent.Reent, fd, level, name int, val []byte) int {
	return call(r, syscallabi.SYS_setsockopt, func(s *syscallabi.Syscall) {
		s.Int0, s.Int1, s.Int2, s.Ptr0 = fd, level, name, val
	})
}

func Setsockopt(ctx context.Context, fd, level, name int, val []byte) int {
	return SetsockoptR(reent.FromContext(ctx), fd, level, name, val)
}

// SockoptInt encodes an integer option value.
func SockoptInt(v int) []byte {
	return binary.NativeEndian.AppendUint32(nil, uint32(int32(v)))
}

// SelectR is not supported.
func SelectR(r *reent.Reent, nfds int) int {
	return call(r, syscallabi.SYS_select, func(s *syscallabi.Syscall) { s.Int0 = nfds })
}

func Select(ctx context.Context, nfds int) int {
	return SelectR(reent.FromContext(ctx), nfds)
}

// ResolveHostnameR issues the raw forward lookup: packed 4-byte addresses
// are stored in buf and their byte length in *size. It returns 0 or a
// resolver status; it never touches the error slots.
func ResolveHostnameR(r *reent.Reent, name string, buf []byte, size *int) int {
	s := r.Syscall(syscallabi.SYS_resolve_hostname)
	s.Ptr0, s.Ptr1, s.Ptr2 = name, buf, size
	return r.Dispatch(s)
}

// ResolveAddressR issues the raw reverse lookup of a 4-byte address,
// storing the NUL-terminated name in buf. It returns 0 or a resolver
// status.
func ResolveAddressR(r *reent.Reent, addr []byte, buf []byte) int {
	s := r.Syscall(syscallabi.SYS_resolve_address)
	s.Ptr0, s.Ptr1 = addr, buf
	return r.Dispatch(s)
}

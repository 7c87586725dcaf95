package kernel_test

import (
	"context"
	"encoding/binary"
	"net"
	"strings"
	"testing"

	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/kerneltest"
	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// freePort returns a loopback port nothing is listening on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func loopback(port int) *syscallabi.SockaddrInet {
	return &syscallabi.SockaddrInet{Family: syscallabi.AF_INET, Port: port, Addr: [4]byte{127, 0, 0, 1}}
}

func TestStreamSocket(t *testing.T) {
	port := freePort(t)
	var received, reply string
	var peer syscallabi.SockaddrInet
	var reuse []byte
	res := kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		ln := libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_STREAM, 0)
		if libc.Setsockopt(ctx, ln, syscallabi.SOL_SOCKET, syscallabi.SO_REUSEADDR, libc.SockoptInt(1)) < 0 {
			return 1
		}
		reuse = make([]byte, 4)
		libc.Getsockopt(ctx, ln, syscallabi.SOL_SOCKET, syscallabi.SO_REUSEADDR, reuse)
		if libc.Bind(ctx, ln, loopback(port)) < 0 || libc.Listen(ctx, ln, 5) < 0 {
			return 2
		}

		client := libc.Go(ctx, func(ctx context.Context) int {
			fd := libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_STREAM, 0)
			if libc.Connect(ctx, fd, loopback(port)) < 0 {
				return 1
			}
			libc.Send(ctx, fd, []byte("ping"), 0)
			libc.Shutdown(ctx, fd, syscallabi.SHUT_WR)
			buf := make([]byte, 16)
			n := libc.Recv(ctx, fd, buf, 0)
			reply = string(buf[:max(n, 0)])
			libc.Close(ctx, fd)
			return 0
		})

		conn := libc.Accept(ctx, ln, &peer)
		if conn < 0 {
			return 3
		}
		var b strings.Builder
		buf := make([]byte, 2)
		for {
			n := libc.Read(ctx, conn, buf)
			if n <= 0 {
				break
			}
			b.Write(buf[:n])
		}
		received = b.String()
		libc.Write(ctx, conn, []byte("pong"))
		libc.Close(ctx, conn)
		return <-client
	})

	if res.Status != 0 {
		t.Fatalf("status %d, stderr %q", res.Status, res.Stderr)
	}
	if received != "ping" || reply != "pong" {
		t.Errorf("received %q, reply %q", received, reply)
	}
	if peer.Family != syscallabi.AF_INET || peer.Addr != [4]byte{127, 0, 0, 1} || peer.Port == 0 {
		t.Errorf("peer = %+v", peer)
	}
	if binary.NativeEndian.Uint32(reuse) != 1 {
		t.Errorf("SO_REUSEADDR reads back %v", reuse)
	}
}

func TestDatagramSocket(t *testing.T) {
	port := freePort(t)
	var got string
	var from syscallabi.SockaddrInet
	res := kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		server := libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_DGRAM, 0)
		if libc.Bind(ctx, server, loopback(port)) < 0 {
			return 1
		}
		client := libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_DGRAM, 0)
		if libc.Sendto(ctx, client, []byte("datagram"), 0, loopback(port)) < 0 {
			return 2
		}
		buf := make([]byte, 64)
		n := libc.Recvfrom(ctx, server, buf, 0, &from)
		if n < 0 {
			return 3
		}
		got = string(buf[:n])
		return 0
	})
	if res.Status != 0 {
		t.Fatalf("status %d", res.Status)
	}
	if got != "datagram" || from.Addr != [4]byte{127, 0, 0, 1} || from.Port == 0 {
		t.Errorf("got %q from %+v", got, from)
	}
}

func TestSocketErrors(t *testing.T) {
	port := freePort(t)
	var errnos []syscallabi.Errno
	res := kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		check := func(r int) { errnos = append(errnos, errnoOf(ctx, r)) }

		check(libc.Socket(ctx, 10, syscallabi.SOCK_STREAM, 0))
		check(libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_STREAM, 6))

		fd := libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_STREAM, 0)
		check(libc.Connect(ctx, fd, loopback(port)))
		check(libc.Send(ctx, fd, []byte("x"), 0))
		check(libc.Shutdown(ctx, fd, syscallabi.SHUT_RDWR))
		check(libc.Getsockopt(ctx, fd, syscallabi.SOL_SOCKET, 0x1006, make([]byte, 4)))
		check(libc.Sendto(ctx, fd, []byte("x"), 1, nil))
		check(libc.Bind(ctx, 1, loopback(port)))

		udp := libc.Socket(ctx, syscallabi.AF_INET, syscallabi.SOCK_DGRAM, 0)
		check(libc.Listen(ctx, udp, 1))
		check(libc.Send(ctx, udp, []byte("x"), 0))
		return 0
	})

	want := []syscallabi.Errno{
		syscallabi.EPROTONOSUPPORT,
		syscallabi.EPROTONOSUPPORT,
		syscallabi.ECONNREFUSED,
		syscallabi.ENOTCONN,
		syscallabi.ENOTCONN,
		syscallabi.ENOPROTOOPT,
		syscallabi.EINVAL,
		syscallabi.ENOTSOCK,
		syscallabi.EOPNOTSUPP,
		syscallabi.EDESTADDRREQ,
	}
	if len(errnos) != len(want) {
		t.Fatalf("errnos = %v", errnos)
	}
	for i := range want {
		if errnos[i] != want[i] {
			t.Errorf("check %d: errno %v, want %v", i, errnos[i], want[i])
		}
	}
	if !strings.Contains(res.Stderr, "WARNING: getsockopt: Unknown level/name: 65535/4102") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

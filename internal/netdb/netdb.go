// Package netdb resolves host names and IPv4 addresses for guest
// programs. Failures are reported through the context's resolver error
// slot (HErrno), not Errno.
package netdb

import (
	"context"
	"net/netip"

	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const (
	// MaxAddrs bounds the addresses returned by one forward lookup.
	MaxAddrs = 256
	// MaxHostName bounds a name returned by a reverse lookup.
	MaxHostName = 1024
)

// A Hostent is the result of a lookup. Each call returns a new Hostent.
type Hostent struct {
	Name     string
	Aliases  []string
	AddrType int
	Length   int
	Addrs    [][4]byte
}

// Addr returns the i'th address as a netip.Addr.
func (h *Hostent) Addr(i int) netip.Addr {
	return netip.AddrFrom4(h.Addrs[i])
}

func newHostent(name string, addrs [][4]byte) *Hostent {
	return &Hostent{
		Name:     name,
		Aliases:  []string{},
		AddrType: syscallabi.AF_INET,
		Length:   4,
		Addrs:    addrs,
	}
}

// setStatus records a failed lookup. A negative status is a kernel errno.
func setStatus(r *reent.Reent, status int) {
	if status < 0 {
		r.Errno = syscallabi.Errno(-status)
		status = syscallabi.NO_RECOVERY
	}
	r.HErrno = status
}

// GethostbynameR resolves name to its IPv4 addresses.
func GethostbynameR(r *reent.Reent, name string) *Hostent {
	buf := make([]byte, 4*MaxAddrs)
	size := len(buf)
	if status := libc.ResolveHostnameR(r, name, buf, &size); status != 0 {
		setStatus(r, status)
		return nil
	}
	if size < 4 {
		setStatus(r, syscallabi.NO_DATA)
		return nil
	}
	addrs := make([][4]byte, size/4)
	for i := range addrs {
		addrs[i] = [4]byte(buf[4*i : 4*i+4])
	}
	return newHostent(name, addrs)
}

func Gethostbyname(ctx context.Context, name string) *Hostent {
	return GethostbynameR(reent.FromContext(ctx), name)
}

// GethostbyaddrR resolves a 4-byte AF_INET address to a name. Any other
// address fails without a lookup.
func GethostbyaddrR(r *reent.Reent, addr []byte, family int) *Hostent {
	if len(addr) != 4 || family != syscallabi.AF_INET {
		r.Errno = syscallabi.EAFNOSUPPORT
		r.HErrno = syscallabi.NO_RECOVERY
		return nil
	}
	buf := make([]byte, MaxHostName)
	if status := libc.ResolveAddressR(r, addr, buf); status != 0 {
		setStatus(r, status)
		return nil
	}
	return newHostent(libc.CString(buf), [][4]byte{[4]byte(addr)})
}

func Gethostbyaddr(ctx context.Context, addr []byte, family int) *Hostent {
	return GethostbyaddrR(reent.FromContext(ctx), addr, family)
}

// HErrno returns the calling context's last resolver status.
func HErrno(ctx context.Context) int {
	return reent.FromContext(ctx).HErrno
}

var hstrerrors = map[int]string{
	0:                         "Resolver Error 0 (no error)",
	syscallabi.HOST_NOT_FOUND: "Unknown host",
	syscallabi.TRY_AGAIN:      "Host name lookup failure",
	syscallabi.NO_RECOVERY:    "Unknown server error",
	syscallabi.NO_DATA:        "No address associated with name",
}

// Hstrerror describes a resolver status.
func Hstrerror(status int) string {
	if s, ok := hstrerrors[status]; ok {
		return s
	}
	return "Unknown resolver error"
}

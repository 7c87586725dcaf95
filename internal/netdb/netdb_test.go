package netdb_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/kerneltest"
	"github.com/kmrgirish/guestsys/internal/netdb"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// scriptedResolver answers successive forward lookups from answers and
// counts every syscall.
type scriptedResolver struct {
	answers [][][4]byte
	calls   int
}

func (d *scriptedResolver) Dispatch(s *syscallabi.Syscall) {
	d.calls++
	switch s.Trap {
	case syscallabi.SYS_resolve_hostname:
		buf, _ := s.Ptr1.([]byte)
		size, _ := s.Ptr2.(*int)
		if len(d.answers) == 0 {
			s.R0 = syscallabi.HOST_NOT_FOUND
			return
		}
		answer := d.answers[0]
		d.answers = d.answers[1:]
		n := 0
		for _, a := range answer {
			n += copy(buf[n:], a[:])
		}
		*size = n
	case syscallabi.SYS_resolve_address:
		buf, _ := s.Ptr1.([]byte)
		copy(buf, "host.example\x00")
	default:
		s.Errno = syscallabi.ENOSYS
	}
}

func TestForwardResultsAreIndependent(t *testing.T) {
	d := &scriptedResolver{answers: [][][4]byte{
		{{10, 0, 0, 1}, {10, 0, 0, 2}},
		{{10, 0, 0, 3}},
	}}
	r := reent.New(d, nil)

	first := netdb.GethostbynameR(r, "multi")
	second := netdb.GethostbynameR(r, "single")
	if first == nil || second == nil {
		t.Fatalf("lookup failed: herrno %d", r.HErrno)
	}
	if diff := cmp.Diff([][4]byte{{10, 0, 0, 3}}, second.Addrs); diff != "" {
		t.Errorf("second addrs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][4]byte{{10, 0, 0, 1}, {10, 0, 0, 2}}, first.Addrs); diff != "" {
		t.Errorf("first addrs changed (-want +got):\n%s", diff)
	}
	if second.Name != "single" || len(second.Aliases) != 0 || second.AddrType != syscallabi.AF_INET || second.Length != 4 {
		t.Errorf("second = %+v", second)
	}
}

func TestForwardFailureSetsHErrno(t *testing.T) {
	d := &scriptedResolver{}
	r := reent.New(d, nil)
	r.Errno = syscallabi.EINTR

	if h := netdb.GethostbynameR(r, "nowhere"); h != nil {
		t.Fatalf("got %+v", h)
	}
	if r.HErrno != syscallabi.HOST_NOT_FOUND {
		t.Errorf("HErrno = %d, want HOST_NOT_FOUND", r.HErrno)
	}
	if r.Errno != syscallabi.EINTR {
		t.Errorf("Errno changed to %v", r.Errno)
	}
}

func TestReverseRejectsWithoutSyscall(t *testing.T) {
	for _, tc := range []struct {
		name   string
		addr   []byte
		family int
	}{
		{"six bytes", []byte{1, 2, 3, 4, 5, 6}, syscallabi.AF_INET},
		{"wrong family", []byte{1, 2, 3, 4}, 10},
		{"empty", nil, syscallabi.AF_INET},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := &scriptedResolver{}
			r := reent.New(d, nil)
			if h := netdb.GethostbyaddrR(r, tc.addr, tc.family); h != nil {
				t.Fatalf("got %+v", h)
			}
			if d.calls != 0 {
				t.Errorf("issued %d syscalls", d.calls)
			}
			if r.HErrno != syscallabi.NO_RECOVERY || r.Errno != syscallabi.EAFNOSUPPORT {
				t.Errorf("HErrno = %d, Errno = %v", r.HErrno, r.Errno)
			}
		})
	}
}

func TestReverse(t *testing.T) {
	d := &scriptedResolver{}
	r := reent.New(d, nil)
	h := netdb.GethostbyaddrR(r, []byte{192, 0, 2, 7}, syscallabi.AF_INET)
	if h == nil {
		t.Fatalf("lookup failed: herrno %d", r.HErrno)
	}
	want := &netdb.Hostent{
		Name:     "host.example",
		Aliases:  []string{},
		AddrType: syscallabi.AF_INET,
		Length:   4,
		Addrs:    [][4]byte{{192, 0, 2, 7}},
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("hostent (-want +got):\n%s", diff)
	}
}

func TestThroughKernel(t *testing.T) {
	resolver := kernel.NewStaticResolver(map[string][]netip.Addr{
		"db.internal": {netip.MustParseAddr("10.1.2.3"), netip.MustParseAddr("10.1.2.4")},
		"v6only":      {netip.MustParseAddr("2001:db8::1")},
	})

	var fwd, rev *netdb.Hostent
	var missing, v6 int
	kerneltest.Run(t, kernel.Options{Resolver: resolver}, func(ctx context.Context) int {
		fwd = netdb.Gethostbyname(ctx, "DB.internal")
		rev = netdb.Gethostbyaddr(ctx, []byte{10, 1, 2, 4}, syscallabi.AF_INET)
		if netdb.Gethostbyname(ctx, "unknown.invalid") == nil {
			missing = netdb.HErrno(ctx)
		}
		if netdb.Gethostbyname(ctx, "v6only") == nil {
			v6 = netdb.HErrno(ctx)
		}
		return 0
	})

	if fwd == nil || len(fwd.Addrs) != 2 || fwd.Addr(1) != netip.MustParseAddr("10.1.2.4") {
		t.Errorf("forward = %+v", fwd)
	}
	if rev == nil || rev.Name != "db.internal" {
		t.Errorf("reverse = %+v", rev)
	}
	if missing != syscallabi.HOST_NOT_FOUND {
		t.Errorf("missing host status = %d", missing)
	}
	if v6 != syscallabi.NO_DATA {
		t.Errorf("v6-only host status = %d", v6)
	}
}

func TestHstrerror(t *testing.T) {
	if got := netdb.Hstrerror(syscallabi.HOST_NOT_FOUND); got != "Unknown host" {
		t.Errorf("Hstrerror(HOST_NOT_FOUND) = %q", got)
	}
	if got := netdb.Hstrerror(99); got != "Unknown resolver error" {
		t.Errorf("Hstrerror(99) = %q", got)
	}
}

package kernel

import (
	"context"
	"net/netip"
	"runtime"
	"time"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const (
	osType    = "guestsys"
	osRelease = "1.0"
	osVersion = "guestsys 1.0"
)

func sysgettimeofday(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	tv, ok := s.Ptr0.(*syscallabi.Timeval)
	if !ok || tv == nil {
		return 0, syscallabi.EFAULT
	}
	now := time.Now()
	tv.Sec = now.Unix()
	tv.Usec = int64(now.Nanosecond() / 1000)
	return 0, 0
}

func sysusleep(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	if s.Int0 < 0 {
		return 0, syscallabi.EINVAL
	}
	time.Sleep(time.Duration(s.Int0) * time.Microsecond)
	return 0, 0
}

func syssysconf(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	switch s.Int0 {
	case syscallabi.SC_ARG_MAX:
		return syscallabi.ArgMax, 0
	case syscallabi.SC_CHILD_MAX:
		return p.k.opts.MaxProcs, 0
	case syscallabi.SC_CLK_TCK:
		return 1000, 0
	case syscallabi.SC_NGROUPS_MAX:
		return 1, 0
	case syscallabi.SC_OPEN_MAX:
		return syscallabi.OpenMax, 0
	case syscallabi.SC_JOB_CONTROL, syscallabi.SC_SAVED_IDS:
		return 1, 0
	case syscallabi.SC_VERSION:
		return 199009, 0
	case syscallabi.SC_PAGESIZE:
		return syscallabi.PageSize, 0
	}
	return 0, syscallabi.EINVAL
}

func machine() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	}
	return runtime.GOARCH
}

// syssysctl reads a string leaf. Ptr0 is the name, Ptr1 the old value
// buffer, Ptr2 its length in and out, Ptr3 a new value.
func syssysctl(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	name, _ := s.Ptr0.([]int)
	oldp, _ := s.Ptr1.([]byte)
	oldlenp, _ := s.Ptr2.(*int)
	if newp, _ := s.Ptr3.([]byte); newp != nil {
		return 0, syscallabi.EPERM
	}
	if len(name) == 0 {
		return 0, syscallabi.ENOENT
	}
	if oldp == nil {
		return 0, 0
	}

	var value string
	switch {
	case len(name) == 2 && name[0] == syscallabi.CTL_KERN && name[1] == syscallabi.KERN_OSTYPE:
		value = osType
	case len(name) == 2 && name[0] == syscallabi.CTL_KERN && name[1] == syscallabi.KERN_OSRELEASE:
		value = osRelease
	case len(name) == 2 && name[0] == syscallabi.CTL_KERN && name[1] == syscallabi.KERN_VERSION:
		value = osVersion
	case len(name) == 2 && name[0] == syscallabi.CTL_KERN && name[1] == syscallabi.KERN_HOSTNAME:
		value = p.k.hostname()
	case len(name) == 2 && name[0] == syscallabi.CTL_HW && name[1] == syscallabi.HW_MACHINE:
		value = machine()
	default:
		p.warnf("WARNING: sysctl: Unknown name: %v", name)
		return 0, syscallabi.EINVAL
	}

	oldlen := len(oldp)
	if oldlenp != nil {
		oldlen = min(*oldlenp, len(oldp))
	}
	if oldlen < len(value)+1 {
		return 0, syscallabi.ENOMEM
	}
	n := copy(oldp, value)
	oldp[n] = 0
	if oldlenp != nil {
		*oldlenp = len(value) + 1
	}
	return 0, 0
}

func (k *Kernel) lookupContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(k.ctx, k.opts.ResolverTimeout)
}

// sysresolvehostname looks up Ptr0 and packs as many 4-byte addresses as
// fit into the Ptr1 buffer, storing their byte length through Ptr2. A
// positive result is a resolver status.
func sysresolvehostname(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	name, _ := s.Ptr0.(string)
	buf, _ := s.Ptr1.([]byte)
	size, _ := s.Ptr2.(*int)
	if size == nil {
		return 0, syscallabi.EFAULT
	}
	if name == "" {
		return syscallabi.HOST_NOT_FOUND, 0
	}

	ctx, cancel := p.k.lookupContext()
	defer cancel()
	addrs, err := p.k.opts.Resolver.LookupHost(ctx, name)
	if err != nil {
		p.k.logger.Debug("host lookup failed", "pid", p.pid, "name", name, "err", err)
		return resolverStatus(err), 0
	}

	limit := min(*size, len(buf)) / 4
	n := 0
	for _, a := range addrs {
		if n == limit {
			break
		}
		a4 := a.Unmap().As4()
		copy(buf[n*4:], a4[:])
		n++
	}
	*size = n * 4
	return 0, 0
}

// sysresolveaddress looks up the 4-byte address in Ptr0 and copies the
// NUL-terminated name into the Ptr1 buffer. A positive result is a
// resolver status.
func sysresolveaddress(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	raw, _ := s.Ptr0.([]byte)
	buf, _ := s.Ptr1.([]byte)
	if len(raw) != 4 {
		return syscallabi.NO_RECOVERY, 0
	}
	addr := netip.AddrFrom4([4]byte(raw))

	ctx, cancel := p.k.lookupContext()
	defer cancel()
	name, err := p.k.opts.Resolver.LookupAddr(ctx, addr)
	if err != nil {
		p.k.logger.Debug("address lookup failed", "pid", p.pid, "addr", addr, "err", err)
		return resolverStatus(err), 0
	}
	if len(buf) < len(name)+1 {
		return syscallabi.NO_RECOVERY, 0
	}
	n := copy(buf, name)
	buf[n] = 0
	return 0, 0
}

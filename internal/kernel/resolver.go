package kernel

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// A Resolver answers the guest's host and address lookups. Only IPv4 is
// visible to the guest.
type Resolver interface {
	LookupHost(ctx context.Context, name string) ([]netip.Addr, error)
	LookupAddr(ctx context.Context, addr netip.Addr) (string, error)
}

var (
	ErrHostNotFound = errors.New("host not found")
	ErrNoData       = errors.New("no address for host")
)

// resolverStatus maps a lookup error to the resolver status reported to the
// guest.
func resolverStatus(err error) int {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrHostNotFound):
		return syscallabi.HOST_NOT_FOUND
	case errors.Is(err, ErrNoData):
		return syscallabi.NO_DATA
	case errors.Is(err, context.DeadlineExceeded):
		return syscallabi.TRY_AGAIN
	case errors.As(err, &netErr) && netErr.Timeout():
		return syscallabi.TRY_AGAIN
	default:
		return syscallabi.NO_RECOVERY
	}
}

// StaticResolver serves a fixed hosts table. Names are matched case
// insensitively.
type StaticResolver struct {
	hosts map[string][]netip.Addr
	names []string
}

func NewStaticResolver(hosts map[string][]netip.Addr) *StaticResolver {
	r := &StaticResolver{hosts: make(map[string][]netip.Addr)}
	r.Add("localhost", netip.AddrFrom4([4]byte{127, 0, 0, 1}))
	for name, addrs := range hosts {
		r.Add(name, addrs...)
	}
	return r
}

// Add binds name to addrs, after any addresses it already has.
func (r *StaticResolver) Add(name string, addrs ...netip.Addr) {
	key := strings.ToLower(name)
	if _, ok := r.hosts[key]; !ok {
		r.names = append(r.names, key)
	}
	r.hosts[key] = append(r.hosts[key], addrs...)
}

func (r *StaticResolver) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	addrs, ok := r.hosts[strings.ToLower(strings.TrimSuffix(name, "."))]
	if !ok {
		return nil, ErrHostNotFound
	}
	var out []netip.Addr
	for _, a := range addrs {
		if a.Unmap().Is4() {
			out = append(out, a.Unmap())
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *StaticResolver) LookupAddr(ctx context.Context, addr netip.Addr) (string, error) {
	for _, name := range r.names {
		for _, a := range r.hosts[name] {
			if a.Unmap() == addr.Unmap() {
				return name, nil
			}
		}
	}
	return "", ErrHostNotFound
}

// DNSResolver queries a single DNS server directly.
type DNSResolver struct {
	Server string
	client *dns.Client
}

func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSResolver{
		Server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

func (r *DNSResolver) exchange(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	in, _, err := r.client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, err
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
		return in.Answer, nil
	case dns.RcodeNameError:
		return nil, ErrHostNotFound
	default:
		return nil, errors.New("dns: " + dns.RcodeToString[in.Rcode])
	}
}

func (r *DNSResolver) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	answer, err := r.exchange(ctx, name, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var out []netip.Addr
	for _, rr := range answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *DNSResolver) LookupAddr(ctx context.Context, addr netip.Addr) (string, error) {
	arpa, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", err
	}
	answer, err := r.exchange(ctx, arpa, dns.TypePTR)
	if err != nil {
		return "", err
	}
	for _, rr := range answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", ErrHostNotFound
}

// SystemResolver defers to the host's resolver configuration.
type SystemResolver struct {
	r *net.Resolver
}

func NewSystemResolver() *SystemResolver {
	return &SystemResolver{r: net.DefaultResolver}
}

func hostError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return ErrHostNotFound
	}
	return err
}

func (r *SystemResolver) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	addrs, err := r.r.LookupNetIP(ctx, "ip4", name)
	if err != nil {
		return nil, hostError(err)
	}
	var out []netip.Addr
	for _, a := range addrs {
		if a.Unmap().Is4() {
			out = append(out, a.Unmap())
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *SystemResolver) LookupAddr(ctx context.Context, addr netip.Addr) (string, error) {
	names, err := r.r.LookupAddr(ctx, addr.String())
	if err != nil {
		return "", hostError(err)
	}
	if len(names) == 0 {
		return "", ErrHostNotFound
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// ChainResolver tries each resolver in order. A definite miss from one
// resolver falls through to the next; the first other error is reported
// if no resolver answers.
type ChainResolver []Resolver

func (c ChainResolver) LookupHost(ctx context.Context, name string) ([]netip.Addr, error) {
	var firstErr error
	for _, r := range c {
		addrs, err := r.LookupHost(ctx, name)
		if err == nil {
			return addrs, nil
		}
		if firstErr == nil || errors.Is(firstErr, ErrHostNotFound) {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ErrHostNotFound
	}
	return nil, firstErr
}

func (c ChainResolver) LookupAddr(ctx context.Context, addr netip.Addr) (string, error) {
	var firstErr error
	for _, r := range c {
		name, err := r.LookupAddr(ctx, addr)
		if err == nil {
			return name, nil
		}
		if firstErr == nil || errors.Is(firstErr, ErrHostNotFound) {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ErrHostNotFound
	}
	return "", firstErr
}

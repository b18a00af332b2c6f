// Package security keeps outbound storefront requests away from internal
// infrastructure. The storefront domain is typed in by a visitor on the setup
// page, so every dial re-checks the resolved addresses against a blocklist.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"time"
)

const dnsTimeout = 500 * time.Millisecond

var (
	// ErrBlockedAddress is returned when a host resolves into a blocked range.
	ErrBlockedAddress = errors.New("ssrf: request to blocked IP range")
	// ErrDNSTimeout is returned when resolution exceeds dnsTimeout.
	ErrDNSTimeout = errors.New("ssrf: DNS resolution timeout")
	// ErrDNSFailed is returned when resolution fails or yields no addresses.
	ErrDNSFailed = errors.New("ssrf: DNS resolution failed")
	// ErrTooManyRedirects is returned when the redirect limit is exceeded.
	ErrTooManyRedirects = errors.New("ssrf: too many redirects")
)

// blockedPrefixes are never dialed.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),    // loopback
	netip.MustParsePrefix("10.0.0.0/8"),     // private
	netip.MustParsePrefix("172.16.0.0/12"),  // private
	netip.MustParsePrefix("192.168.0.0/16"), // private
	netip.MustParsePrefix("169.254.0.0/16"), // link-local, cloud metadata
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("224.0.0.0/4"), // multicast
	netip.MustParsePrefix("240.0.0.0/4"), // reserved
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("::1/128"),
}

// IsBlocked reports whether addr falls in a blocked range. IPv4-mapped IPv6
// addresses are checked as IPv4.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// SafeTransport is an http.RoundTripper whose dialer refuses blocked addresses.
type SafeTransport struct {
	Base *http.Transport

	// Resolver is used for DNS lookups. If nil, net.DefaultResolver is used.
	Resolver Resolver
}

// NewSafeTransport wraps base (or a clone of http.DefaultTransport) and
// replaces its DialContext.
func NewSafeTransport(base *http.Transport) *SafeTransport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	st := &SafeTransport{Base: base}
	base.DialContext = st.dialContext
	return st
}

// RoundTrip implements http.RoundTripper.
func (st *SafeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return st.Base.RoundTrip(req)
}

func (st *SafeTransport) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}

	target, err := resolveSafe(ctx, st.resolver(), host)
	if err != nil {
		return nil, err
	}

	// Dial the vetted address, not the hostname, so a second lookup cannot
	// rebind to something else.
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(target.String(), port))
}

func (st *SafeTransport) resolver() Resolver {
	if st.Resolver != nil {
		return st.Resolver
	}
	return net.DefaultResolver
}

// resolveSafe returns the first address for host, or an error if any of its
// addresses is blocked.
func resolveSafe(ctx context.Context, r Resolver, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlocked(addr) {
			return netip.Addr{}, fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
		}
		return addr, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return netip.Addr{}, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return netip.Addr{}, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: host %q resolved to no addresses", ErrDNSFailed, host)
	}

	var first netip.Addr
	for i, ipAddr := range ips {
		addr, ok := netip.AddrFromSlice(ipAddr.IP)
		if !ok {
			return netip.Addr{}, fmt.Errorf("%w: host %q returned an unparsable address", ErrDNSFailed, host)
		}
		// Mixed answers are rejected outright.
		if IsBlocked(addr) {
			return netip.Addr{}, fmt.Errorf("%w: %s (resolved from %s)", ErrBlockedAddress, addr, host)
		}
		if i == 0 {
			first = addr.Unmap()
		}
	}
	return first, nil
}

// CheckRedirect returns an http.Client CheckRedirect function that applies the
// same blocklist to redirect targets and caps the redirect count.
func CheckRedirect(maxRedirects int, r Resolver) func(req *http.Request, via []*http.Request) error {
	if r == nil {
		r = net.DefaultResolver
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrBlockedAddress)
		}
		_, err := resolveSafe(req.Context(), r, host)
		return err
	}
}

// NewSafeHTTPClient creates an http.Client that cannot reach blocked ranges,
// directly or through redirects.
func NewSafeHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	return &http.Client{
		Transport:     NewSafeTransport(nil),
		Timeout:       timeout,
		CheckRedirect: CheckRedirect(maxRedirects, nil),
	}
}

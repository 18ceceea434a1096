// Package acl restricts purge requests to a list of client networks.
package acl

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// List is a CIDR allow list. The zero value allows everybody.
type List struct {
	v4  []netip.Prefix
	v6  []netip.Prefix
	any bool
}

// Parse builds a List from entries like "10.0.0.0/8", "::1", or "all".
// IPv4-mapped IPv6 entries are stored as IPv4 networks.
func Parse(entries []string) (*List, error) {
	l := &List{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "all" {
			l.any = true
			continue
		}

		p, err := parsePrefix(e)
		if err != nil {
			return nil, fmt.Errorf("acl: invalid entry %q: %w", e, err)
		}
		if p.Addr().Is4() {
			l.v4 = append(l.v4, p)
		} else {
			l.v6 = append(l.v6, p)
		}
	}
	return l, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if !strings.Contains(s, "/") {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		a = a.Unmap()
		return netip.PrefixFrom(a, a.BitLen()), nil
	}

	p, err := netip.ParsePrefix(s)
	if err != nil {
		return p, err
	}
	if a := p.Addr(); a.Is4In6() {
		bits := p.Bits() - 96
		if bits < 0 {
			return p, fmt.Errorf("mapped prefix /%d too short", p.Bits())
		}
		p = netip.PrefixFrom(a.Unmap(), bits)
	}
	return p.Masked(), nil
}

// Empty reports whether l places no restriction.
func (l *List) Empty() bool {
	return l == nil || l.any || len(l.v4) == 0 && len(l.v6) == 0
}

// Allowed reports whether a client with the given remote address (as
// found in http.Request.RemoteAddr, with or without port) may purge.
func (l *List) Allowed(remoteAddr string) bool {
	if l.Empty() {
		return true
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	// IPv4-mapped IPv6 clients are matched against IPv4 networks.
	addr = addr.Unmap().WithZone("")
	if addr.Is4() {
		return match(l.v4, addr)
	}
	return match(l.v6, addr)
}

func match(nets []netip.Prefix, addr netip.Addr) bool {
	for _, p := range nets {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (l *List) String() string {
	if l.Empty() {
		return "all"
	}
	s := make([]string, 0, len(l.v4)+len(l.v6))
	for _, p := range l.v4 {
		s = append(s, p.String())
	}
	for _, p := range l.v6 {
		s = append(s, p.String())
	}
	return strings.Join(s, ",")
}

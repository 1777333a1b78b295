package ppp

import (
	"bufio"
	"os"
	"strings"
)

// ProcRouteProbe is the production RouteProbe: it reads /proc/net/route
// and /proc/net/ipv6_route directly rather than querying netlink, so the
// synthetic fixtures in tests can be fed at the literal proc-file-field
// level the daemon's testable properties describe.
type ProcRouteProbe struct {
	v4Path string
	v6Path string
}

// NewProcRouteProbe builds a RouteProbe over the real proc files.
func NewProcRouteProbe() *ProcRouteProbe {
	return &ProcRouteProbe{v4Path: "/proc/net/route", v6Path: "/proc/net/ipv6_route"}
}

// HasDefaultRoute reports whether either the IPv4 or IPv6 kernel routing
// table has a default (0) destination via iface. I/O errors on either
// table are not fatal - the daemon tolerates a transiently unreadable
// proc file and simply reports "not yet up".
func (p *ProcRouteProbe) HasDefaultRoute(iface string) (bool, error) {
	v4, err4 := hasDefaultRouteV4(p.v4Path, iface)
	if err4 == nil && v4 {
		return true, nil
	}
	v6, err6 := hasDefaultRouteV6(p.v6Path, iface)
	if err6 == nil && v6 {
		return true, nil
	}
	if err4 != nil && err6 != nil {
		return false, err4
	}
	return false, nil
}

// hasDefaultRouteV4 scans /proc/net/route: field 0 is the interface name,
// field 1 the destination in hex; a default route has destination 0.
func hasDefaultRouteV4(path, iface string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header line
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		if fields[0] == iface && fields[1] == "00000000" {
			return true, nil
		}
	}
	return false, sc.Err()
}

// hasDefaultRouteV6 scans /proc/net/ipv6_route: field 0 is the
// destination in hex, field 9 the interface name; a default route has an
// all-zero destination.
func hasDefaultRouteV6(path, iface string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 10 {
			continue
		}
		if fields[9] == iface && isAllZero(fields[0]) {
			return true, nil
		}
	}
	return false, sc.Err()
}

func isAllZero(hex string) bool {
	for _, c := range hex {
		if c != '0' {
			return false
		}
	}
	return true
}

package httpgateway

import (
	"net"
	"net/url"
)

var blockedCIDRs = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// isSafeRenderTarget rejects loopback and private-network targets for the
// /render auxiliary endpoint, while still allowing "localhost" for local
// development (per spec).
func isSafeRenderTarget(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)
	if ip == nil {
		// Not a literal IP; hostname resolution happens at render time and
		// is out of scope for this static check.
		return true
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	for _, n := range blockedCIDRs {
		if n.Contains(ip) {
			return false
		}
	}
	return true
}

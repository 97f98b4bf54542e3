package httpgateway

import (
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// classification is the per-request decision input derived in §4.2.
type classification struct {
	hostname         string
	isInternalRender bool
	isRenderXRequest bool
	isFileRequest    bool
	isBot            bool
}

// classify derives the classification fields for r against the effective
// bot list.
func classify(r *http.Request, bots []string) classification {
	ua := r.Header.Get("User-Agent")
	return classification{
		hostname:         deriveHostname(r),
		isInternalRender: r.Header.Get("X-RenderX-Internal") == "true",
		isRenderXRequest: strings.Contains(strings.ToLower(ua), "renderx"),
		isFileRequest:    path.Ext(r.URL.Path) != "",
		isBot:            matchesBot(ua, bots),
	}
}

// deriveHostname resolves the request's hostname from Origin when present,
// otherwise from Host with any port stripped.
func deriveHostname(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func matchesBot(userAgent string, bots []string) bool {
	lowered := strings.ToLower(userAgent)
	for _, b := range bots {
		if strings.Contains(lowered, strings.ToLower(b)) {
			return true
		}
	}
	return false
}

// requestOrigin returns the request's Origin header scheme+host, or "".
func requestOrigin(r *http.Request) string {
	return r.Header.Get("Origin")
}

// requestProtocol returns "https" when the connection or a forwarding
// header indicates TLS, "http" otherwise.
func requestProtocol(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}

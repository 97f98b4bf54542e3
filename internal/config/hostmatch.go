package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// hostMatcher resolves a request hostname to the winning HostConfig per the
// ordered rules in spec §4.1: exact match first, then the first active host
// whose glob pattern matches, anchored, with "*" the only wildcard.
type hostMatcher struct {
	exact map[string]HostConfig
	globs []globEntry
}

type globEntry struct {
	host HostConfig
	pat  glob.Glob
}

func newHostMatcher(hosts []HostConfig) (*hostMatcher, error) {
	m := &hostMatcher{exact: make(map[string]HostConfig)}
	for _, h := range hosts {
		if !h.IsActive() {
			continue
		}
		if _, ok := m.exact[h.Host]; !ok {
			m.exact[h.Host] = h
		}
		pattern := strings.ReplaceAll(glob.QuoteMeta(h.Host), `\*`, "*")
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile host pattern %q: %w", h.Host, err)
		}
		m.globs = append(m.globs, globEntry{host: h, pat: g})
	}
	return m, nil
}

func (m *hostMatcher) match(hostname string) (HostConfig, bool) {
	if h, ok := m.exact[hostname]; ok {
		return h, true
	}
	for _, entry := range m.globs {
		if entry.pat.Match(hostname) {
			return entry.host, true
		}
	}
	return HostConfig{}, false
}

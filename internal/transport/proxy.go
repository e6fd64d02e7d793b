package transport

import (
	"math/rand"
	"net/url"
	"strings"
)

// ProxySettings controls proxy selection. A single URL wins over the pool;
// the pool is comma-separated with one entry chosen at random per attempt.
type ProxySettings struct {
	Enabled bool
	URL     string
	List    string
}

// Resolve picks the proxy URL for one attempt, or nil when proxying is
// disabled or nothing is configured.
func (p ProxySettings) Resolve(rng *rand.Rand) (*url.URL, error) {
	if !p.Enabled {
		return nil, nil
	}

	raw := p.URL
	if raw == "" && p.List != "" {
		var pool []string
		for _, entry := range strings.Split(p.List, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				pool = append(pool, entry)
			}
		}
		if len(pool) > 0 {
			raw = pool[rng.Intn(len(pool))]
		}
	}
	if raw == "" {
		return nil, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Merge applies provider-level overrides on top of process-wide defaults.
// Any override field that is set replaces the default.
func (p ProxySettings) Merge(override *ProxySettings) ProxySettings {
	if override == nil {
		return p
	}
	merged := *override
	if merged.URL == "" && merged.List == "" {
		merged.URL = p.URL
		merged.List = p.List
	}
	return merged
}

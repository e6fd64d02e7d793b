package transport

import (
	"math/rand"
	"sync"
)

// Identity is a browser-like request identity: a user agent plus the
// header set that matches it.
type Identity struct {
	UserAgent string
	Headers   map[string]string
}

// Accept-Encoding is left to the HTTP transport so gzip responses are
// decompressed transparently.
var baseHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// defaultIdentities is a pool of realistic browser identities covering
// Chrome, Firefox, Safari and Edge on Windows and macOS.
var defaultIdentities = []Identity{
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", Headers: baseHeaders},
	{UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0", Headers: baseHeaders},
}

// Rotator hands out identities, never repeating the same one twice in
// immediate succession when alternatives exist.
type Rotator struct {
	mu         sync.Mutex
	identities []Identity
	last       int
	rng        *rand.Rand
}

// NewRotator creates a rotator over the default identity pool.
func NewRotator(seed int64) *Rotator {
	return NewRotatorWith(defaultIdentities, seed)
}

// NewRotatorWith creates a rotator over a custom pool. An empty pool
// falls back to the defaults so Next always has something to hand out.
func NewRotatorWith(identities []Identity, seed int64) *Rotator {
	if len(identities) == 0 {
		identities = defaultIdentities
	}
	return &Rotator{
		identities: identities,
		last:       -1,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next identity.
func (r *Rotator) Next() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.identities) == 1 {
		r.last = 0
		return r.identities[0]
	}

	idx := r.rng.Intn(len(r.identities))
	if idx == r.last {
		idx = (idx + 1) % len(r.identities)
	}
	r.last = idx
	return r.identities[idx]
}

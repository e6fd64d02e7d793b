package transport

import (
	"net/http"
	"time"

	"github.com/leadharvest/leadharvest/internal/domain"
)

// Outcome summarizes one finished fetch attempt for the retry policy.
type Outcome struct {
	Verdict    domain.VerdictKind
	StatusCode int
	NetErr     bool // transport-level error or timeout
}

// Decision is the retry policy's answer for one outcome.
type Decision struct {
	Retry bool
	After time.Duration
}

// Decide is the pure retry policy: given the zero-based index of the
// attempt that just finished, the attempt limit, the base delay and the
// outcome, it returns whether to retry and after how long.
//
// Blocked verdicts (rate-limited, forbidden) back off at double the normal
// exponential delay. Captcha is never retried here: the caller gets the
// raw response to attempt a solve. A clean 200 never reaches this policy.
func Decide(attempt, maxRetries int, baseDelay time.Duration, o Outcome) Decision {
	if o.Verdict == domain.VerdictCaptcha {
		return Decision{}
	}
	if attempt >= maxRetries-1 {
		return Decision{}
	}

	backoff := baseDelay << uint(attempt) // base * 2^attempt

	switch o.Verdict {
	case domain.VerdictRateLimited, domain.VerdictForbidden:
		return Decision{Retry: true, After: backoff * 2}
	}

	if o.NetErr || o.StatusCode != http.StatusOK {
		return Decision{Retry: true, After: backoff}
	}
	return Decision{}
}

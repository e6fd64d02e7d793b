package domain

// VerdictKind classifies one HTTP exchange.
type VerdictKind string

const (
	VerdictClean       VerdictKind = "clean"
	VerdictRateLimited VerdictKind = "rate_limited"
	VerdictForbidden   VerdictKind = "forbidden"
	VerdictCaptcha     VerdictKind = "captcha"
)

// Verdict is the blocking classification of a response. Transient:
// produced per exchange, consumed immediately, never persisted.
type Verdict struct {
	Blocked bool
	Kind    VerdictKind
	Detail  string
}

// CleanVerdict is the zero-block verdict.
func CleanVerdict() Verdict {
	return Verdict{Kind: VerdictClean}
}

package domain

// ChallengeKind distinguishes the two captcha flavours the bypass handles.
type ChallengeKind string

const (
	ChallengeImage ChallengeKind = "image"
	ChallengeToken ChallengeKind = "token"
)

// Challenge is a captcha extracted from a blocked page. Transient: built by
// the detector, consumed by the solver, discarded after resubmission.
type Challenge struct {
	Kind ChallengeKind

	// Image challenge: inline data URIs carry ImageB64 directly, otherwise
	// ImageURL must be downloaded with the blocked page's session.
	ImageB64 string
	ImageURL string

	// Token challenge (reCAPTCHA-style).
	SiteKey string
	PageURL string
	Action  string
	Version string // "v2" or "v3"
}

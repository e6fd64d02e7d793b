package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/leadharvest/leadharvest/internal/domain"
)

// Pages shorter than this that also carry a denial keyword are treated as
// block pages rather than real content.
const minPlausibleBodySize = 1000

// Captcha path fragments checked against the final (post-redirect) URL.
var captchaURLFragments = []string{
	"/showcaptcha",
	"/captcha",
	"/sorry",
	"unusual traffic",
}

// Body keywords that identify a captcha interstitial regardless of status.
var captchaKeywords = []string{
	"captcha",
	"капча",
	"проверка на робота",
	"unusual traffic",
	"verify you're not a robot",
	"showcaptcha",
}

// Body keywords that, combined with a tiny response, identify a block page.
var deniedKeywords = []string{
	"blocked",
	"заблокирован",
	"access denied",
}

// Classify inspects one HTTP exchange and returns a blocking verdict.
// Pure function: same inputs always yield the same verdict.
//
// Decision order is a contract: status-code checks dominate URL checks,
// which dominate body-keyword checks, cheapest and least ambiguous first.
func Classify(statusCode int, finalURL, body string) domain.Verdict {
	if statusCode == http.StatusForbidden {
		return domain.Verdict{
			Blocked: true,
			Kind:    domain.VerdictForbidden,
			Detail:  "403 Forbidden",
		}
	}
	if statusCode == http.StatusTooManyRequests {
		return domain.Verdict{
			Blocked: true,
			Kind:    domain.VerdictRateLimited,
			Detail:  "429 Too Many Requests",
		}
	}

	lowerURL := strings.ToLower(finalURL)
	for _, frag := range captchaURLFragments {
		if strings.Contains(lowerURL, frag) {
			return domain.Verdict{
				Blocked: true,
				Kind:    domain.VerdictCaptcha,
				Detail:  fmt.Sprintf("redirected to captcha page (%s)", frag),
			}
		}
	}

	if body != "" {
		lowerBody := strings.ToLower(body)
		for _, kw := range captchaKeywords {
			if strings.Contains(lowerBody, kw) {
				return domain.Verdict{
					Blocked: true,
					Kind:    domain.VerdictCaptcha,
					Detail:  fmt.Sprintf("captcha keyword %q in body", kw),
				}
			}
		}

		if len(body) < minPlausibleBodySize && statusCode == http.StatusOK {
			for _, kw := range deniedKeywords {
				if strings.Contains(lowerBody, kw) {
					return domain.Verdict{
						Blocked: true,
						Kind:    domain.VerdictForbidden,
						Detail:  fmt.Sprintf("suspiciously small response with %q", kw),
					}
				}
			}
		}
	}

	return domain.CleanVerdict()
}

package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/metrics"
	"github.com/leadharvest/leadharvest/internal/transport"
)

// recaptchaField is the answer field name token challenges resubmit under.
const recaptchaField = "g-recaptcha-response"

// answerFieldNames are the field names image challenges accept answers
// under, tried in order.
var answerFieldNames = []string{"captcha", "response", "answer", "rep"}

// VisionSolver transcribes the text out of a base64-encoded captcha image.
type VisionSolver interface {
	Transcribe(ctx context.Context, imageB64 string) (string, error)
}

// Fetcher is the transport surface the bypass needs: single fetches for
// captcha images and form submissions carrying the page's session.
type Fetcher interface {
	FetchOnce(ctx context.Context, rawURL string, opts transport.SubmitOptions) (*transport.Response, error)
	Submit(ctx context.Context, action string, form url.Values, opts transport.SubmitOptions) (*transport.Response, error)
}

// Bypass runs the full challenge/solve/resubmit cycle against a blocked
// response. Token challenges go to the configured solving services in
// priority order; image challenges go to the vision model.
type Bypass struct {
	fetcher Fetcher
	vision  VisionSolver
	solvers []TokenSolver
	logger  *zap.Logger
}

// NewBypass assembles the bypass. vision may be nil (image challenges then
// fail as unsolved), as may the solver list.
func NewBypass(fetcher Fetcher, vision VisionSolver, solvers []TokenSolver, logger *zap.Logger) *Bypass {
	return &Bypass{fetcher: fetcher, vision: vision, solvers: solvers, logger: logger}
}

// Solve detects the challenge on a blocked response, obtains a solution
// and replays the originating form. On success the returned response is
// the page behind the captcha. A resubmission that classifies as captcha
// again is a failure, never retried for the same challenge.
func (b *Bypass) Solve(ctx context.Context, blocked *transport.Response) (*transport.Response, error) {
	ch, err := Detect(blocked.Body, blocked.FinalURL)
	if err != nil {
		return nil, err
	}

	var resp *transport.Response
	switch ch.Kind {
	case domain.ChallengeToken:
		resp, err = b.solveToken(ctx, ch, blocked)
	case domain.ChallengeImage:
		resp, err = b.solveImage(ctx, ch, blocked)
	default:
		return nil, domain.ErrNoChallenge
	}

	outcome := "solved"
	if err != nil {
		outcome = "unsolved"
	}
	metrics.CaptchaSolvesTotal.WithLabelValues(string(ch.Kind), outcome).Inc()
	return resp, err
}

func (b *Bypass) solveToken(ctx context.Context, ch *domain.Challenge, blocked *transport.Response) (*transport.Response, error) {
	if len(b.solvers) == 0 {
		return nil, fmt.Errorf("no token solver configured: %w", domain.ErrCaptchaUnsolved)
	}

	var token string
	for _, solver := range b.solvers {
		t, err := solver.Solve(ctx, ch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			b.logger.Warn("token solver failed, trying next",
				zap.String("solver", solver.Name()),
				zap.Error(err),
			)
			continue
		}
		if t != "" {
			token = t
			break
		}
	}
	if token == "" {
		return nil, fmt.Errorf("all token solvers failed: %w", domain.ErrCaptchaUnsolved)
	}

	form, action, err := tokenForm(blocked.Body, blocked.FinalURL, token)
	if err != nil {
		return nil, err
	}
	return b.resubmit(ctx, action, form, blocked)
}

func (b *Bypass) solveImage(ctx context.Context, ch *domain.Challenge, blocked *transport.Response) (*transport.Response, error) {
	if b.vision == nil {
		return nil, fmt.Errorf("no vision model configured: %w", domain.ErrCaptchaUnsolved)
	}

	imageB64 := ch.ImageB64
	if imageB64 == "" {
		img, err := b.fetcher.FetchOnce(ctx, ch.ImageURL, transport.SubmitOptions{
			Referer:  blocked.FinalURL,
			Identity: &blocked.Identity,
			Cookies:  blocked.Cookies,
		})
		if err != nil {
			return nil, fmt.Errorf("download captcha image: %w: %w", err, domain.ErrCaptchaUnsolved)
		}
		imageB64 = base64.StdEncoding.EncodeToString(img.Body)
	}

	solution, err := b.vision.Transcribe(ctx, imageB64)
	if err != nil {
		return nil, err
	}
	if solution == "" {
		return nil, fmt.Errorf("vision returned empty solution: %w", domain.ErrCaptchaUnsolved)
	}

	form, action, err := imageForm(blocked.Body, blocked.FinalURL, solution)
	if err != nil {
		return nil, err
	}
	return b.resubmit(ctx, action, form, blocked)
}

// resubmit replays the challenge form with the page's own session. A reply
// that classifies as captcha again means the solution was rejected.
func (b *Bypass) resubmit(ctx context.Context, action string, form url.Values, blocked *transport.Response) (*transport.Response, error) {
	resp, err := b.fetcher.Submit(ctx, action, form, transport.SubmitOptions{
		Referer:  blocked.FinalURL,
		Identity: &blocked.Identity,
		Cookies:  blocked.Cookies,
	})
	if err != nil {
		return nil, fmt.Errorf("resubmit challenge form: %w: %w", err, domain.ErrCaptchaUnsolved)
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("resubmit status %d: %w", resp.StatusCode, domain.ErrCaptchaUnsolved)
	}
	if resp.Verdict.Kind == domain.VerdictCaptcha {
		return nil, fmt.Errorf("resubmission still challenged: %w", domain.ErrCaptchaUnsolved)
	}
	return resp, nil
}

// tokenForm builds the resubmission form for a token challenge: every
// named input of the form holding the g-recaptcha-response field is
// copied, with the token substituted under that field name.
func tokenForm(body []byte, pageURL, token string) (url.Values, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, "", fmt.Errorf("parse challenge page: %w", err)
	}

	field := doc.Find(`[name="` + recaptchaField + `"]`).First()
	if field.Length() == 0 {
		return nil, "", fmt.Errorf("%s field not found: %w", recaptchaField, domain.ErrCaptchaUnsolved)
	}
	form := field.Closest("form")
	action, ok := form.Attr("action")
	if form.Length() == 0 || !ok {
		return nil, "", fmt.Errorf("challenge form not found: %w", domain.ErrCaptchaUnsolved)
	}

	data := url.Values{recaptchaField: {token}}
	form.Find("input[name]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		value, hasValue := s.Attr("value")
		if name != "" && name != recaptchaField && hasValue {
			data.Set(name, value)
		}
	})

	resolved, err := resolveFormAction(action, pageURL)
	if err != nil {
		return nil, "", err
	}
	return data, resolved, nil
}

// imageForm builds the resubmission form for an image challenge: the
// solution goes under the form's answer field, hidden inputs are copied
// unchanged.
func imageForm(body []byte, pageURL, solution string) (url.Values, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, "", fmt.Errorf("parse challenge page: %w", err)
	}

	form := doc.Find("form[action]").First()
	if form.Length() == 0 {
		return nil, "", fmt.Errorf("challenge form not found: %w", domain.ErrCaptchaUnsolved)
	}

	answerName := ""
	for _, name := range answerFieldNames {
		if form.Find(`input[name="`+name+`"]`).Length() > 0 {
			answerName = name
			break
		}
	}
	if answerName == "" {
		return nil, "", fmt.Errorf("answer field not found: %w", domain.ErrCaptchaUnsolved)
	}

	data := url.Values{}
	form.Find("input[name]").Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == answerName {
			data.Set(name, solution)
			return
		}
		if s.AttrOr("type", "") == "hidden" {
			if value, ok := s.Attr("value"); ok {
				data.Set(name, value)
			}
		}
	})
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty challenge form: %w", domain.ErrCaptchaUnsolved)
	}

	action := form.AttrOr("action", "")
	resolved, err := resolveFormAction(action, pageURL)
	if err != nil {
		return nil, "", err
	}
	return data, resolved, nil
}

func resolveFormAction(action, pageURL string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(action)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

package transport

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	xproxy "golang.org/x/net/proxy"

	"github.com/leadharvest/leadharvest/internal/domain"
	"github.com/leadharvest/leadharvest/internal/metrics"
)

const maxBodySize = 5 * 1024 * 1024

// Response is one completed HTTP exchange with its blocking verdict and
// the identity that produced it, so follow-up requests (captcha image
// download, form resubmission) can reuse both.
type Response struct {
	StatusCode int
	FinalURL   string
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
	Verdict    domain.Verdict
	Identity   Identity
}

// Options controls one retried fetch.
type Options struct {
	MaxRetries int           // attempts, default 3
	BaseDelay  time.Duration // backoff base, default 2s
	Timeout    time.Duration // per-attempt, default 30s
	UseProxy   bool
	Proxy      *ProxySettings // provider-level override; nil inherits defaults
	Referer    string
	Identity   *Identity // pin an identity instead of rotating
}

func (o *Options) applyDefaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

// SubmitOptions controls a single-shot request (no retries): captcha image
// downloads and form resubmissions that must ride the original exchange's
// cookies and identity.
type SubmitOptions struct {
	Timeout  time.Duration
	UseProxy bool
	Proxy    *ProxySettings
	Referer  string
	Identity *Identity
	Cookies  []*http.Cookie
}

// Fetcher issues HTTP requests with rotated identities, optional
// proxying, jittered delays and verdict-driven retry/backoff.
type Fetcher struct {
	identities *Rotator
	proxy      ProxySettings
	logger     *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// sleep is ctx-aware and replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher with the process-wide proxy defaults.
func NewFetcher(proxy ProxySettings, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		identities: NewRotator(time.Now().UnixNano()),
		proxy:      proxy,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepCtx,
	}
}

// Fetch issues a GET with retries and backoff. A captcha verdict returns
// the raw response immediately so the caller can attempt a solve. Retry
// exhaustion returns ErrTransportExhausted (or ErrBlockedByTarget when the
// last attempt was a classified block); only a malformed URL is a hard
// contract error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	opts.applyDefaults()

	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, fmt.Errorf("malformed url %q: %w", rawURL, err)
	}

	var lastVerdict domain.Verdict

	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		if attempt == 0 {
			// Short warm-up jitter to desynchronize bursts.
			if err := f.sleep(ctx, f.randDuration(500*time.Millisecond, 1500*time.Millisecond)); err != nil {
				return nil, err
			}
		}

		resp, outcome, err := f.attempt(ctx, http.MethodGet, rawURL, nil, opts.Timeout, opts.UseProxy, opts.Proxy, opts.Referer, opts.Identity, nil)
		if err != nil {
			return nil, err // ctx cancelled or contract violation
		}

		if resp != nil {
			lastVerdict = resp.Verdict

			if resp.Verdict.Kind == domain.VerdictCaptcha {
				// Not retried: the caller decides whether to solve.
				return resp, nil
			}
			if !resp.Verdict.Blocked && resp.StatusCode == http.StatusOK {
				return resp, nil
			}
		}

		d := Decide(attempt, opts.MaxRetries, opts.BaseDelay, outcome)
		if !d.Retry {
			break
		}
		metrics.FetchRetriesTotal.Inc()
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("after", d.After),
			zap.String("verdict", string(outcome.Verdict)),
		)
		if err := f.sleep(ctx, d.After); err != nil {
			return nil, err
		}
	}

	if lastVerdict.Blocked {
		return nil, fmt.Errorf("fetch %s: %s: %w", rawURL, lastVerdict.Detail, domain.ErrBlockedByTarget)
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", rawURL, opts.MaxRetries, domain.ErrTransportExhausted)
}

// FetchOnce issues a single GET without retries, carrying explicit cookies
// and identity. Used to download captcha images with the page's session.
func (f *Fetcher) FetchOnce(ctx context.Context, rawURL string, opts SubmitOptions) (*Response, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	resp, _, err := f.attempt(ctx, http.MethodGet, rawURL, nil, opts.Timeout, opts.UseProxy, opts.Proxy, opts.Referer, opts.Identity, opts.Cookies)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, domain.ErrTransportExhausted)
	}
	return resp, nil
}

// Submit POSTs a form once, with the cookies and identity of the exchange
// that produced the form. No retries: a captcha resubmission either
// sticks or fails.
func (f *Fetcher) Submit(ctx context.Context, action string, form url.Values, opts SubmitOptions) (*Response, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	resp, _, err := f.attempt(ctx, http.MethodPost, action, form, opts.Timeout, opts.UseProxy, opts.Proxy, opts.Referer, opts.Identity, opts.Cookies)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("submit %s: %w", action, domain.ErrTransportExhausted)
	}
	return resp, nil
}

// attempt runs one HTTP exchange. A nil *Response with a nil error means
// a recoverable network failure recorded in the outcome.
func (f *Fetcher) attempt(
	ctx context.Context,
	method, rawURL string,
	form url.Values,
	timeout time.Duration,
	useProxy bool,
	proxyOverride *ProxySettings,
	referer string,
	pinned *Identity,
	cookies []*http.Cookie,
) (*Response, Outcome, error) {
	identity := f.identities.Next()
	if pinned != nil {
		identity = *pinned
	}

	var proxyURL *url.URL
	if useProxy {
		settings := f.proxy.Merge(proxyOverride)
		f.rngMu.Lock()
		u, err := settings.Resolve(f.rng)
		f.rngMu.Unlock()
		if err != nil {
			return nil, Outcome{}, fmt.Errorf("malformed proxy url: %w", err)
		}
		proxyURL = u
	}

	client := newClient(proxyURL, timeout)

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", identity.UserAgent)
	for k, v := range identity.Headers {
		req.Header.Set(k, v)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Outcome{}, ctx.Err()
		}
		f.logger.Warn("request error", zap.String("url", rawURL), zap.Error(err))
		metrics.FetchAttemptsTotal.WithLabelValues("net_error").Inc()
		return nil, Outcome{NetErr: true}, nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		f.logger.Warn("read body", zap.String("url", rawURL), zap.Error(err))
		metrics.FetchAttemptsTotal.WithLabelValues("net_error").Inc()
		return nil, Outcome{NetErr: true}, nil
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	verdict := Classify(resp.StatusCode, finalURL, string(raw))
	metrics.FetchAttemptsTotal.WithLabelValues(string(verdict.Kind)).Inc()
	if verdict.Blocked {
		f.logger.Warn("blocking detected",
			zap.String("url", rawURL),
			zap.String("kind", string(verdict.Kind)),
			zap.String("detail", verdict.Detail),
		)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		Header:     resp.Header,
		Cookies:    resp.Cookies(),
		Body:       raw,
		Verdict:    verdict,
		Identity:   identity,
	}, Outcome{Verdict: verdict.Kind, StatusCode: resp.StatusCode}, nil
}

func (f *Fetcher) randDuration(min, max time.Duration) time.Duration {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return min + time.Duration(f.rng.Int63n(int64(max-min)))
}

func newClient(proxyURL *url.URL, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != nil {
		switch proxyURL.Scheme {
		case "socks5", "socks5h":
			var auth *xproxy.Auth
			if user := proxyURL.User; user != nil {
				password, _ := user.Password()
				auth = &xproxy.Auth{User: user.Username(), Password: password}
			}
			if dialer, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, xproxy.Direct); err == nil {
				if cd, ok := dialer.(xproxy.ContextDialer); ok {
					transport.DialContext = cd.DialContext
				}
			}
		default:
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
)

const (
	solvePollInterval = 5 * time.Second
	solveMaxPolls     = 24
)

// TokenSolver obtains a token for a reCAPTCHA-style challenge from a
// third-party solving service.
type TokenSolver interface {
	Name() string
	Solve(ctx context.Context, ch *domain.Challenge) (string, error)
}

// TwoCaptcha speaks the 2captcha protocol: submit via in.php, then poll
// res.php until the solution is ready.
type TwoCaptcha struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
	logger       *zap.Logger
}

// NewTwoCaptcha creates a 2captcha client. baseURL defaults to the public
// service endpoint.
func NewTwoCaptcha(apiKey, baseURL string, logger *zap.Logger) *TwoCaptcha {
	if baseURL == "" {
		baseURL = "https://2captcha.com"
	}
	return &TwoCaptcha{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 120 * time.Second},
		pollInterval: solvePollInterval,
		maxPolls:     solveMaxPolls,
		logger:       logger,
	}
}

func (s *TwoCaptcha) Name() string { return "2captcha" }

type twoCaptchaReply struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Solve submits the sitekey and polls for a token.
func (s *TwoCaptcha) Solve(ctx context.Context, ch *domain.Challenge) (string, error) {
	form := url.Values{
		"key":       {s.apiKey},
		"method":    {"userrecaptcha"},
		"googlekey": {ch.SiteKey},
		"pageurl":   {ch.PageURL},
		"json":      {"1"},
	}
	if ch.Version == "v3" && ch.Action != "" {
		form.Set("action", ch.Action)
		form.Set("version", "v3")
	}

	var submitted twoCaptchaReply
	if err := s.postForm(ctx, s.baseURL+"/in.php", form, &submitted); err != nil {
		return "", err
	}
	if submitted.Status != 1 || submitted.Request == "" {
		return "", fmt.Errorf("2captcha submit: %s: %w", submitted.Request, domain.ErrCaptchaUnsolved)
	}
	captchaID := submitted.Request

	for i := 0; i < s.maxPolls; i++ {
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return "", err
		}

		query := url.Values{
			"key":    {s.apiKey},
			"action": {"get"},
			"id":     {captchaID},
			"json":   {"1"},
		}
		var res twoCaptchaReply
		if err := s.get(ctx, s.baseURL+"/res.php?"+query.Encode(), &res); err != nil {
			return "", err
		}
		if res.Status == 1 {
			return res.Request, nil
		}
		if res.Request != "CAPCHA_NOT_READY" {
			return "", fmt.Errorf("2captcha poll: %s: %w", res.Request, domain.ErrCaptchaUnsolved)
		}
	}

	s.logger.Warn("2captcha timed out waiting for a solution", zap.String("captcha_id", captchaID))
	return "", fmt.Errorf("2captcha poll limit reached: %w", domain.ErrCaptchaUnsolved)
}

func (s *TwoCaptcha) postForm(ctx context.Context, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, out)
}

func (s *TwoCaptcha) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *TwoCaptcha) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("2captcha request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("2captcha status %d: %w", resp.StatusCode, domain.ErrCaptchaUnsolved)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("2captcha decode: %w", err)
	}
	return nil
}

// AntiCaptcha speaks the anti-captcha protocol: createTask, then poll
// getTaskResult until the task is ready.
type AntiCaptcha struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
	logger       *zap.Logger
}

// NewAntiCaptcha creates an anti-captcha client. baseURL defaults to the
// public service endpoint.
func NewAntiCaptcha(apiKey, baseURL string, logger *zap.Logger) *AntiCaptcha {
	if baseURL == "" {
		baseURL = "https://api.anti-captcha.com"
	}
	return &AntiCaptcha{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: 120 * time.Second},
		pollInterval: solvePollInterval,
		maxPolls:     solveMaxPolls,
		logger:       logger,
	}
}

func (s *AntiCaptcha) Name() string { return "anticaptcha" }

type antiCaptchaTask struct {
	Type       string  `json:"type"`
	WebsiteURL string  `json:"websiteURL"`
	WebsiteKey string  `json:"websiteKey"`
	MinScore   float64 `json:"minScore,omitempty"`
	PageAction string  `json:"pageAction,omitempty"`
}

type antiCaptchaCreateReply struct {
	ErrorID          int    `json:"errorId"`
	ErrorDescription string `json:"errorDescription"`
	TaskID           int64  `json:"taskId"`
}

type antiCaptchaResultReply struct {
	ErrorID  int    `json:"errorId"`
	Status   string `json:"status"`
	Solution struct {
		GRecaptchaResponse string `json:"gRecaptchaResponse"`
	} `json:"solution"`
}

// Solve creates a solving task and polls for its result.
func (s *AntiCaptcha) Solve(ctx context.Context, ch *domain.Challenge) (string, error) {
	task := antiCaptchaTask{
		Type:       "RecaptchaV2TaskProxyless",
		WebsiteURL: ch.PageURL,
		WebsiteKey: ch.SiteKey,
	}
	if ch.Version == "v3" && ch.Action != "" {
		task.Type = "RecaptchaV3TaskProxyless"
		task.MinScore = 0.7
		task.PageAction = ch.Action
	}

	var created antiCaptchaCreateReply
	if err := s.post(ctx, "/createTask", map[string]any{"clientKey": s.apiKey, "task": task}, &created); err != nil {
		return "", err
	}
	if created.ErrorID != 0 || created.TaskID == 0 {
		return "", fmt.Errorf("anticaptcha createTask: %s: %w", created.ErrorDescription, domain.ErrCaptchaUnsolved)
	}

	for i := 0; i < s.maxPolls; i++ {
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return "", err
		}

		var res antiCaptchaResultReply
		payload := map[string]any{"clientKey": s.apiKey, "taskId": created.TaskID}
		if err := s.post(ctx, "/getTaskResult", payload, &res); err != nil {
			return "", err
		}
		if res.ErrorID != 0 {
			return "", fmt.Errorf("anticaptcha getTaskResult error %d: %w", res.ErrorID, domain.ErrCaptchaUnsolved)
		}
		switch res.Status {
		case "ready":
			return res.Solution.GRecaptchaResponse, nil
		case "failed":
			return "", fmt.Errorf("anticaptcha task failed: %w", domain.ErrCaptchaUnsolved)
		}
	}

	s.logger.Warn("anticaptcha timed out waiting for a solution", zap.Int64("task_id", created.TaskID))
	return "", fmt.Errorf("anticaptcha poll limit reached: %w", domain.ErrCaptchaUnsolved)
}

func (s *AntiCaptcha) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("anticaptcha request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anticaptcha status %d: %w", resp.StatusCode, domain.ErrCaptchaUnsolved)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("anticaptcha decode: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

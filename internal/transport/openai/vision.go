package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/domain"
)

const transcribeInstruction = "You are reading a distorted text captcha. " +
	"Reply with only the characters shown in the image, nothing else. " +
	"No quotes, no explanations, no punctuation that is not in the image."

// Vision transcribes captcha images through an OpenAI-compatible
// vision-capable chat model.
type Vision struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// Config holds the vision provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewVision creates an OpenAI-compatible vision client.
func NewVision(cfg *Config) *Vision {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Vision{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Transcribe reads the text out of a base64-encoded captcha image.
// An empty or refused reply is reported as domain.ErrCaptchaUnsolved.
func (v *Vision) Transcribe(ctx context.Context, imageB64 string) (string, error) {
	if imageB64 == "" {
		return "", fmt.Errorf("empty captcha image: %w", domain.ErrNoChallenge)
	}

	req := openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: transcribeInstruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/png;base64," + imageB64,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
		MaxTokens:   32,
		Temperature: 0,
	}

	resp, err := v.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty vision response: %w", domain.ErrCaptchaUnsolved)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	answer = strings.Trim(answer, `"'`)
	if answer == "" {
		return "", fmt.Errorf("vision model returned no text: %w", domain.ErrCaptchaUnsolved)
	}

	v.logger.Debug("captcha image transcribed",
		zap.Int("image_bytes_b64", len(imageB64)),
		zap.Int("answer_len", len(answer)),
	)
	return answer, nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrCaptchaUnsolved so callers can
// fall through to the next solving strategy.
func parseAPIError(err error) error {
	wrap := domain.ErrCaptchaUnsolved

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("vision API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("vision API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("vision API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("vision request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

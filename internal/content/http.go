package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HTTP calls an OpenAI compatible chat-completions endpoint.  Upstream
// failures fall back to Fallback when it is set.
type HTTP struct {
	URL      string
	APIKey   string
	Model    string
	Client   *http.Client
	Fallback Generator
	Logger   *slog.Logger
}

// NewHTTP returns a passthrough generator falling back to Mock.
func NewHTTP(url, apiKey, model string, timeout time.Duration, logger *slog.Logger) *HTTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		URL:      url,
		APIKey:   apiKey,
		Model:    model,
		Client:   &http.Client{Timeout: timeout},
		Fallback: Mock{},
		Logger:   logger.With("component", "content"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var prompts = map[string]string{
	KindEventDescription: "Write a short description (under 150 words) for an association event about: %s",
	KindNewsletter:       "Write a member newsletter (subject line and body, under 250 words) about: %s",
	KindSocialPost:       "Write one social media post (under 280 characters, one hashtag) about: %s",
}

func (h *HTTP) Generate(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	text, err := h.call(ctx, req)
	if err == nil {
		return Result{Kind: req.Kind, Content: text, Source: SourceAPI}, nil
	}
	if h.Fallback == nil {
		return Result{}, err
	}
	h.Logger.Warn("content api failed, using fallback", "error", err)
	return h.Fallback.Generate(ctx, req)
}

func (h *HTTP) call(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: h.Model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf("You write copy for a membership association. Use a %s tone.", req.Tone)},
			{Role: "user", Content: fmt.Sprintf(prompts[req.Kind], req.Topic)},
		},
	})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.APIKey)
	}
	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("content api status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode content api response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", errors.New("content api returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

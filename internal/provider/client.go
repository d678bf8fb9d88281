// Package provider wraps the upstream generative image model behind a
// rate-limited, retrying, circuit-broken client so callers only ever see
// a single Generate call and an apperrors.Error on failure.
package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"imagestudio-backend/internal/apperrors"
	"imagestudio-backend/internal/config"

	"github.com/sony/gobreaker"
)

// ImageBytes is one reference image attached to a generation request.
type ImageBytes struct {
	Data     []byte
	MimeType string
}

// GenerateRequest is the normalized request this adapter sends upstream,
// independent of the operation kind that produced it.
type GenerateRequest struct {
	Model  string
	Prompt string
	Images []ImageBytes
}

// GenerateResult is the first inline image the upstream model returned.
type GenerateResult struct {
	ImageData []byte
	MimeType  string
}

// Client is the Generative Provider Adapter.
type Client struct {
	httpClient  *http.Client
	cfg         config.ProviderConfig
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *userRateLimiter
}

// NewClient builds a provider client from the process configuration.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		cfg:         cfg,
		breaker:     newBreaker(),
		rateLimiter: newUserRateLimiter(cfg.RateLimitPerMinute, time.Minute),
	}
}

// wirePart mirrors the upstream model's multimodal request shape: a
// request is a list of parts, each either inline text or inline base64
// image bytes.
type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wireRequest struct {
	Contents []wireContent `json:"contents"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []wirePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate calls the upstream image model and returns its first inline
// image output. It enforces the per-user rate limit, then retries
// transient failures through the named circuit breaker.
func (c *Client) Generate(ctx context.Context, userID string, req GenerateRequest) (*GenerateResult, error) {
	if !c.rateLimiter.Allow(userID) {
		return nil, apperrors.New(apperrors.KindRateLimited, "generation rate limit exceeded, try again shortly")
	}

	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	result, err := retryWithResult(ctx, defaultRetryConfig(), func() (*GenerateResult, error) {
		raw, cbErr := c.breaker.Execute(func() (interface{}, error) {
			return c.callUpstream(ctx, model, req)
		})
		if cbErr != nil {
			if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
				return nil, apperrors.Wrap(apperrors.KindUpstream, "image provider temporarily unavailable", ErrCircuitOpen)
			}
			return nil, cbErr
		}
		return raw.(*GenerateResult), nil
	})
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.KindUpstream, "image generation failed", err)
	}
	return result, nil
}

func (c *Client) callUpstream(ctx context.Context, model string, req GenerateRequest) (*GenerateResult, error) {
	parts := make([]wirePart, 0, len(req.Images)+1)
	parts = append(parts, wirePart{Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, wirePart{
			InlineData: &wireInlineData{
				MimeType: img.MimeType,
				Data:     base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}

	body, err := json.Marshal(wireRequest{Contents: []wireContent{{Parts: parts}}})
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(respBody))
	}

	var wireResp wireResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}

	for _, candidate := range wireResp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			return &GenerateResult{ImageData: data, MimeType: part.InlineData.MimeType}, nil
		}
	}
	return nil, fmt.Errorf("upstream response contained no image output")
}

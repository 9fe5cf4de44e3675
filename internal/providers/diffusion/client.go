// Package diffusion is the client for the remote generation provider. It
// normalizes the wire protocol into Request/Image pairs and classifies
// provider failures so the batch pipeline can tell a dead credential from a
// rejected prompt or a transient outage.
package diffusion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
)

var (
	// ErrCredentialInvalid means the caller's bearer credential was rejected.
	// The batch pipeline treats this as job-fatal.
	ErrCredentialInvalid = errors.New("diffusion: credential invalid")
	// ErrContentPolicy means the provider refused the prompt. Per-item only.
	ErrContentPolicy = errors.New("diffusion: content policy violation")
)

// IsCredentialInvalid reports whether err is a rejected credential.
func IsCredentialInvalid(err error) bool {
	return errors.Is(err, ErrCredentialInvalid)
}

// IsContentPolicy reports whether err is a content policy refusal.
func IsContentPolicy(err error) bool {
	return errors.Is(err, ErrContentPolicy)
}

// Request carries everything one generation call needs besides the caller's
// credential.
type Request struct {
	Prompt         string
	NegativePrompt string
	Model          string
	Width          int
	Height         int
	Seed           int64
	Options        map[string]any
}

// Image is the normalized generation result.
type Image struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Generator is the consumer-side contract of this package.
type Generator interface {
	Generate(ctx context.Context, token string, req Request) (*Image, error)
}

// Options configures the diffusion client.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the provider. A client without a base
// URL renders deterministic synthetic images instead, which keeps local and
// CI environments fully operational without credentials. Remote failures are
// never silently replaced by synthetic output; the pipeline needs to see
// them.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

var _ Generator = (*Client)(nil)

type wireRequest struct {
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Model          string         `json:"model"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	Seed           int64          `json:"seed"`
	Options        map[string]any `json:"options,omitempty"`
}

type wireResponse struct {
	Image       string `json:"image"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Remote reports whether the client calls a real provider endpoint.
func (c *Client) Remote() bool {
	return c.baseURL != ""
}

// Generate performs one generation call with the given bearer credential.
func (c *Client) Generate(ctx context.Context, token string, req Request) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Remote() {
		return c.synthetic(req), nil
	}

	body, err := json.Marshal(wireRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Model:          req.Model,
		Width:          req.Width,
		Height:         req.Height,
		Seed:           req.Seed,
		Options:        req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("diffusion: encode request: %w", err)
	}

	endpoint := c.baseURL + "/v1/images/generations"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("diffusion: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("diffusion: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("diffusion: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return nil, classifyHTTPError(resp.StatusCode, raw)
	}

	var decoded wireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("diffusion: decode response: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(decoded.Image)
	if err != nil {
		return nil, fmt.Errorf("diffusion: decode image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("diffusion: empty image payload")
	}

	contentType := decoded.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	width, height := decoded.Width, decoded.Height
	if width == 0 || height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}

	c.logger.Debug().
		Str("model", req.Model).
		Int("width", width).
		Int("height", height).
		Msg("diffusion: generated image")

	return &Image{Data: data, ContentType: contentType, Width: width, Height: height}, nil
}

func classifyHTTPError(status int, raw []byte) error {
	var detail wireError
	_ = json.Unmarshal(raw, &detail)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if detail.Message != "" {
			return fmt.Errorf("%w: %s", ErrCredentialInvalid, detail.Message)
		}
		return ErrCredentialInvalid
	case status == http.StatusUnprocessableEntity || detail.Code == "content_policy_violation":
		if detail.Message != "" {
			return fmt.Errorf("%w: %s", ErrContentPolicy, detail.Message)
		}
		return ErrContentPolicy
	}
	if detail.Message != "" {
		return fmt.Errorf("diffusion: %s (%s)", detail.Message, detail.Code)
	}
	return fmt.Errorf("diffusion: status %d: %s", status, strings.TrimSpace(string(raw)))
}

package diffusion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
)

type captureTransport struct {
	status   int
	body     []byte
	lastReq  *http.Request
	lastBody []byte
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.lastReq = req
	if req.Body != nil {
		t.lastBody, _ = io.ReadAll(req.Body)
	}
	return &http.Response{
		StatusCode: t.status,
		Body:       io.NopCloser(bytes.NewReader(t.body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}, nil
}

func newRemoteClient(t *testing.T, transport *captureTransport) *Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseURL:    "https://provider.example.com",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGeneratePayloadAndBearer(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"image":        base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}),
		"content_type": "image/png",
		"width":        1024,
		"height":       768,
	})
	transport := &captureTransport{status: http.StatusOK, body: payload}
	client := newRemoteClient(t, transport)

	img, err := client.Generate(context.Background(), "tok-123", Request{
		Prompt: "a cat", Model: "flux-base", Width: 1024, Height: 768, Seed: 42,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if img.Width != 1024 || img.Height != 768 {
		t.Fatalf("dimensions = %dx%d, want 1024x768", img.Width, img.Height)
	}
	if got := transport.lastReq.Header.Get("Authorization"); got != "Bearer tok-123" {
		t.Fatalf("authorization = %q, want Bearer tok-123", got)
	}
	if transport.lastReq.URL.Path != "/v1/images/generations" {
		t.Fatalf("path = %q", transport.lastReq.URL.Path)
	}

	var sent wireRequest
	if err := json.Unmarshal(transport.lastBody, &sent); err != nil {
		t.Fatalf("decode sent payload: %v", err)
	}
	if sent.Prompt != "a cat" || sent.Model != "flux-base" || sent.Seed != 42 {
		t.Fatalf("sent payload = %+v", sent)
	}
}

func TestGenerateClassifiesCredentialErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"forbidden", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(wireError{Code: "credential_invalid", Message: "key revoked"})
			transport := &captureTransport{status: tt.status, body: body}
			client := newRemoteClient(t, transport)

			_, err := client.Generate(context.Background(), "tok", Request{Prompt: "x", Model: "flux-base"})
			if !IsCredentialInvalid(err) {
				t.Fatalf("err = %v, want credential invalid", err)
			}
			if !strings.Contains(err.Error(), "key revoked") {
				t.Fatalf("err %v should carry provider message", err)
			}
		})
	}
}

func TestGenerateClassifiesContentPolicy(t *testing.T) {
	body, _ := json.Marshal(wireError{Code: "content_policy_violation", Message: "prompt rejected"})
	transport := &captureTransport{status: http.StatusUnprocessableEntity, body: body}
	client := newRemoteClient(t, transport)

	_, err := client.Generate(context.Background(), "tok", Request{Prompt: "x", Model: "flux-base"})
	if !IsContentPolicy(err) {
		t.Fatalf("err = %v, want content policy", err)
	}
	if IsCredentialInvalid(err) {
		t.Fatalf("content policy error misclassified as credential error")
	}
}

func TestGenerateTransientErrorIsNeitherClass(t *testing.T) {
	transport := &captureTransport{status: http.StatusServiceUnavailable, body: []byte("overloaded")}
	client := newRemoteClient(t, transport)

	_, err := client.Generate(context.Background(), "tok", Request{Prompt: "x", Model: "flux-base"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if IsCredentialInvalid(err) || IsContentPolicy(err) {
		t.Fatalf("transient error %v misclassified", err)
	}
}

func TestGenerateSyntheticWithoutBaseURL(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.Remote() {
		t.Fatalf("client without base url should not be remote")
	}

	img, err := client.Generate(context.Background(), "", Request{
		Prompt: "a cat", Model: "flux-base", Width: 512, Height: 320, Seed: 7,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(img.Data))
	if err != nil {
		t.Fatalf("synthetic output is not a png: %v", err)
	}
	bounds := decoded.Bounds()
	if bounds.Dx() != 512 || bounds.Dy() != 320 {
		t.Fatalf("synthetic dimensions = %dx%d, want 512x320", bounds.Dx(), bounds.Dy())
	}

	again, err := client.Generate(context.Background(), "", Request{
		Prompt: "a cat", Model: "flux-base", Width: 512, Height: 320, Seed: 7,
	})
	if err != nil {
		t.Fatalf("generate again: %v", err)
	}
	if !bytes.Equal(img.Data, again.Data) {
		t.Fatalf("synthetic output is not deterministic for equal inputs")
	}
}

func TestGenerateDistinctSeedsDistinctImages(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	first, err := client.Generate(context.Background(), "", Request{Prompt: "a cat", Model: "flux-base", Width: 256, Height: 256, Seed: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := client.Generate(context.Background(), "", Request{Prompt: "a cat", Model: "flux-base", Width: 256, Height: 256, Seed: 2})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if bytes.Equal(first.Data, second.Data) {
		t.Fatalf("distinct seeds produced identical images")
	}
}

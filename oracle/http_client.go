// ABOUTME: HTTP client for an Ollama-compatible generate endpoint
// ABOUTME: Sends one non-streaming prompt and returns the raw model response text
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1"

	maxErrorBody = 4 * 1024
)

// HTTPConfig configures an HTTPOracle.
type HTTPConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	// Timeout bounds a whole HTTP exchange; the generator applies its own per-call timeout too.
	Timeout time.Duration
}

// HTTPOracle talks to POST {baseURL}/api/generate.
type HTTPOracle struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

var _ Oracle = (*HTTPOracle)(nil)

func NewHTTPOracle(cfg HTTPConfig) *HTTPOracle {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/api")

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPOracle{
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Complete posts the prompt and returns the model's response text.
func (o *HTTPOracle) Complete(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if len(req.Context) > 0 {
		ctxJSON, err := json.Marshal(req.Context)
		if err != nil {
			return "", fmt.Errorf("failed to encode prompt context: %w", err)
		}
		prompt = prompt + "\n\nContext:\n" + string(ctxJSON)
	}

	body, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: prompt,
		System: req.System,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", ErrOracleUnavailable, resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode generate response: %v", ErrOracleUnavailable, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrOracleUnavailable, out.Error)
	}

	return out.Response, nil
}

package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pulseerrors "github.com/rcourtman/pulse-anomaly/internal/errors"
	"github.com/rcourtman/pulse-anomaly/pkg/netutil"
	"github.com/rs/zerolog/log"
)

// DefaultOllamaURL is where a local Ollama listens by default.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient implements the Provider interface for Ollama's local API
type OllamaClient struct {
	model   string
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates a new Ollama API client. A zero timeout uses
// 300 seconds since local models can be slow.
func NewOllamaClient(model, baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OllamaClient{
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           netutil.DialContextWithCache,
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

// Name returns the provider name
func (c *OllamaClient) Name() string {
	return "ollama"
}

// Model returns the default model
func (c *OllamaClient) Model() string {
	return c.model
}

// ollamaGenerateRequest is the request body for /api/generate
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Think  bool   `json:"think"`
}

// ollamaGenerateResponse is one object of a /api/generate reply. Streaming
// replies are a sequence of these, one per line.
type ollamaGenerateResponse struct {
	Model           string  `json:"model"`
	CreatedAt       string  `json:"created_at"`
	Response        string  `json:"response"`
	Thinking        string  `json:"thinking,omitempty"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason,omitempty"`
	TotalDuration   *int64  `json:"total_duration,omitempty"`
	LoadDuration    *int64  `json:"load_duration,omitempty"`
	EvalDuration    *int64  `json:"eval_duration,omitempty"`
	PromptEvalCount *uint64 `json:"prompt_eval_count,omitempty"`
	EvalCount       *uint64 `json:"eval_count,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// Generate sends a prompt to /api/generate and delivers the reply as fragments.
// In streaming mode each line of the reply is decoded as it arrives. A stream
// that ends without a done line is delivered as-is; detecting the missing
// terminal fragment is the consumer's job.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest, callback FragmentCallback) error {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		Stream: req.Stream,
		Think:  req.Think,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "application/x-ndjson")
	}

	log.Debug().
		Str("model", model).
		Bool("stream", req.Stream).
		Bool("think", req.Think).
		Int("prompt_chars", len(req.Prompt)).
		Msg("Ollama generate request")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return pulseerrors.WrapBackendError("generate", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return pulseerrors.WrapAPIError("generate", model, apiErrorMessage(resp.StatusCode, respBody), resp.StatusCode)
	}

	if !req.Stream {
		var single ollamaGenerateResponse
		if err := json.NewDecoder(resp.Body).Decode(&single); err != nil {
			if ctx.Err() != nil {
				return pulseerrors.Truncated("generate", ctx.Err())
			}
			return pulseerrors.Malformed("generate", fmt.Errorf("failed to parse response: %w", err))
		}
		_, err := deliver(single, callback)
		return err
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				return pulseerrors.Malformed("generate", fmt.Errorf("failed to parse stream line: %w", err))
			}
			done, err := deliver(chunk, callback)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return pulseerrors.Truncated("generate", fmt.Errorf("stream read error: %w", readErr))
		}
	}
}

// deliver converts one reply object into fragments and reports whether it was
// the terminal one.
func deliver(chunk ollamaGenerateResponse, callback FragmentCallback) (bool, error) {
	if chunk.Error != "" {
		return false, pulseerrors.Truncated("generate", fmt.Errorf("backend error: %s", chunk.Error))
	}
	if chunk.Thinking != "" {
		if err := callback(Reasoning(chunk.Thinking)); err != nil {
			return false, err
		}
	}
	if chunk.Response != "" {
		if err := callback(Answer(chunk.Response)); err != nil {
			return false, err
		}
	}
	if !chunk.Done {
		return false, nil
	}
	return true, callback(Final(chunk.stats()))
}

func (r ollamaGenerateResponse) stats() Stats {
	return Stats{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalDuration:    nanos(r.TotalDuration),
		EvalDuration:     nanos(r.EvalDuration),
		LoadDuration:     nanos(r.LoadDuration),
	}
}

func nanos(v *int64) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v)
	return &d
}

func apiErrorMessage(status int, body []byte) error {
	var errResp ollamaErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("API error (%d): %s", status, errResp.Error)
	}
	return fmt.Errorf("API error (%d): %s", status, strings.TrimSpace(string(body)))
}

// TestConnection validates connectivity by checking the Ollama version endpoint
func (c *OllamaClient) TestConnection(ctx context.Context) error {
	url := c.baseURL + "/api/version"
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return pulseerrors.WrapBackendError("test_connection", c.model, fmt.Errorf("failed to connect to Ollama at %s: %w", c.baseURL, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	return nil
}

// ListModels fetches available models from the local Ollama instance
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	url := c.baseURL + "/api/tags"
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, pulseerrors.WrapBackendError("list_models", c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, pulseerrors.WrapAPIError("list_models", c.model, apiErrorMessage(resp.StatusCode, body), resp.StatusCode)
	}

	var result struct {
		Models []struct {
			Name       string `json:"name"`
			ModifiedAt string `json:"modified_at"`
			Size       int64  `json:"size"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	models := make([]ModelInfo, 0, len(result.Models))
	for _, m := range result.Models {
		models = append(models, ModelInfo{
			ID:   m.Name,
			Name: m.Name,
			Size: m.Size,
		})
	}

	return models, nil
}

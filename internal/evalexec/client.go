// Package evalexec talks to the external eval execution service, which
// runs a named dataset against the current agent and reports case results.
package evalexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RunResult is one dataset execution as reported by the service.
type RunResult struct {
	RunID            string            `json:"runId"`
	PassRate         float64           `json:"passRate"`
	AverageScore     float64           `json:"averageScore"`
	TotalCases       int               `json:"totalCases"`
	ErrorCases       int               `json:"errorCases"`
	ArtifactVersions map[string]string `json:"artifactVersions"`
	Status           string            `json:"status"`
}

// Runner is the orchestrator's view of the service.
type Runner interface {
	Run(ctx context.Context, datasetID string) (RunResult, error)
}

// Unavailable is the Runner used when no service is configured; every
// dataset fails, which a suite run records without aborting.
type Unavailable struct{}

func (Unavailable) Run(ctx context.Context, datasetID string) (RunResult, error) {
	return RunResult{}, fmt.Errorf("eval execution service not configured")
}

type HTTPClientConfig struct {
	BaseURL    string
	Path       string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPClient posts run requests with per-attempt timeouts and linear
// backoff between retries.
type HTTPClient struct {
	baseURL string
	path    string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("eval service base url required")
	}
	path := cfg.Path
	if path == "" {
		path = "/eval/run"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		path:    path,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

func (c *HTTPClient) Run(ctx context.Context, datasetID string) (RunResult, error) {
	body, err := json.Marshal(map[string]string{"datasetId": datasetID})
	if err != nil {
		return RunResult{}, fmt.Errorf("eval marshal request: %w", err)
	}

	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return RunResult{}, ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
		if err != nil {
			cancel()
			return RunResult{}, fmt.Errorf("eval build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := c.client.Do(httpReq)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			result, parseErr := decodeResult(resp)
			resp.Body.Close()
			if parseErr == nil {
				return result, nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return RunResult{}, fmt.Errorf("eval run %s failed: %w", datasetID, lastErr)
}

func decodeResult(resp *http.Response) (RunResult, error) {
	if resp.StatusCode >= 500 {
		return RunResult{}, fmt.Errorf("eval service unavailable: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return RunResult{}, fmt.Errorf("eval service rejected request: %s", resp.Status)
	}
	var result RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RunResult{}, fmt.Errorf("eval decode response: %w", err)
	}
	return result, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/camgate/internal/capture"
	"github.com/yourusername/camgate/internal/channel"
)

// ChannelSpec is one entry of a start request.
type ChannelSpec struct {
	Port int    `json:"port"`
	Type string `json:"type"`
}

// StartResult is the outcome of one requested channel.
type StartResult struct {
	Port   int    `json:"port"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// CaptureRequest mirrors the capture endpoint body.
type CaptureRequest struct {
	IP            string `json:"ip,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	ExtraParam    string `json:"extra_param,omitempty"`
	Type          string `json:"type,omitempty"`
	MaxResultSize int    `json:"max_result_size,omitempty"`
}

// APIError is a non-2xx answer from the gateway API.
type APIError struct {
	Status  int
	Message string
	Kind    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// APIClient handles communication with a running gateway's HTTP API
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListChannels retrieves the live channels
func (c *APIClient) ListChannels(ctx context.Context) ([]channel.Info, error) {
	var out struct {
		Channels []channel.Info `json:"channels"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/channels", nil, &out); err != nil {
		return nil, err
	}
	return out.Channels, nil
}

// StartChannels asks the gateway to start channels. Per-channel failures are
// reported in the results, not as an error.
func (c *APIClient) StartChannels(ctx context.Context, specs []ChannelSpec) ([]StartResult, error) {
	var out struct {
		Results []StartResult `json:"results"`
	}
	body := map[string]interface{}{"channels": specs}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/channels", body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// StopChannel stops the channel on port
func (c *APIClient) StopChannel(ctx context.Context, port int) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/channels/%d", port), nil, nil)
	return err
}

// Latest polls the channel on port. ok is false when nothing new arrived.
func (c *APIClient) Latest(ctx context.Context, port int) (text string, ok bool, err error) {
	var out struct {
		Text string `json:"text"`
	}
	status, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/channels/%d/latest", port), nil, &out)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNoContent {
		return "", false, nil
	}
	return out.Text, true, nil
}

// Capture runs a synchronous capture through the gateway
func (c *APIClient) Capture(ctx context.Context, req CaptureRequest) (capture.Result, error) {
	var res capture.Result
	_, err := c.do(ctx, http.MethodPost, "/api/v1/capture", req, &res)
	return res, err
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var reqBody io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var errBody struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
		}
		if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
			apiErr.Message = errBody.Error
			apiErr.Kind = errBody.Kind
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
		}
	}
	return resp.StatusCode, nil
}

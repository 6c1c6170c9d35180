// Package submit drives the multi-stage remote submission of a case record:
// spreadsheet row creation followed by the dependent template, analysis and
// report stages, each retried with exponential backoff.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig carries the remote endpoints and the bearer token.
type ClientConfig struct {
	RecordURL   string
	TemplateURL string
	AnalysisURL string
	ReportURL   string
	Token       string
	Timeout     time.Duration
}

// Client talks to the spreadsheet-backed record store and the downstream
// stage endpoints.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// RemoteError is a non-2xx response from a remote endpoint. Retryable.
type RemoteError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// StageResult is the structured outcome required from every stage endpoint.
type StageResult struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Progress *StageProgress `json:"progress,omitempty"`
}

type StageProgress struct {
	Details StageDetails `json:"details"`
}

type StageDetails struct {
	DocumentURL string `json:"documentUrl,omitempty"`
	EmailStatus string `json:"emailStatus,omitempty"`
}

// SubmitRecord POSTs the flat wire record and returns the created row
// identifier. The caller owns the retry policy; note that a retried POST
// whose earlier response was merely lost can create a duplicate row: the
// remote API exposes no idempotency lookup, so the submission nonce inside
// the wire record is the only dedupe handle the remote side has.
func (c *Client) SubmitRecord(ctx context.Context, wire map[string]string) (string, error) {
	body, err := c.post(ctx, c.cfg.RecordURL, wire)
	if err != nil {
		return "", err
	}

	var parsed struct {
		RowID string `json:"rowId"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse record response: %w", err)
	}
	rowID := parsed.RowID
	if rowID == "" {
		rowID = parsed.ID
	}
	if rowID == "" {
		return "", fmt.Errorf("record response missing row identifier: %s", string(body))
	}
	return rowID, nil
}

// RunStage POSTs the case id to a stage endpoint and decodes its structured
// result. A success:false result is returned as an error so the retry
// policy treats it exactly like a network failure.
func (c *Client) RunStage(ctx context.Context, url, caseID string) (StageResult, error) {
	body, err := c.post(ctx, url, map[string]string{"caseId": caseID})
	if err != nil {
		return StageResult{}, err
	}

	var result StageResult
	if err := json.Unmarshal(body, &result); err != nil {
		return StageResult{}, fmt.Errorf("parse stage response: %w", err)
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "stage reported failure without detail"
		}
		return StageResult{}, fmt.Errorf("stage failed: %s", msg)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Endpoint: url, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

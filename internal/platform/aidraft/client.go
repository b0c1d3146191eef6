// Package aidraft is the HTTP client for the external draft assistant that
// enriches auto-drafted replies. Assistant failures are soft: callers keep
// their locally composed draft and log the error.
package aidraft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/careroute/careroute/pkg/apperror"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 64 * 1024
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// Client talks to the draft assistant service. It satisfies the query
// package's draft client contract.
type Client struct {
	baseURL  string
	provider string
	http     *http.Client
}

// New returns a client for the assistant at baseURL. provider selects the
// model backend on the assistant side and travels in every request body.
func New(baseURL, provider string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		provider: provider,
		http:     &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type draftRequest struct {
	QueryText string `json:"queryText"`
	Condition string `json:"condition"`
	Provider  string `json:"provider,omitempty"`
}

type draftResponse struct {
	Success  bool                   `json:"success"`
	Response string                 `json:"response"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Draft asks the assistant to draft a reply for the given query text and
// patient condition. Transport and contract failures come back as
// external_service errors; callers treat any error as "no draft".
func (c *Client) Draft(ctx context.Context, queryText, condition string) (string, error) {
	body, err := json.Marshal(draftRequest{
		QueryText: queryText,
		Condition: condition,
		Provider:  c.provider,
	})
	if err != nil {
		return "", fmt.Errorf("encoding draft request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building draft request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperror.Wrap(apperror.CodeExternalService, err, "draft service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return "", apperror.ExternalService("draft service returned status %d", resp.StatusCode)
	}

	var out draftResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", apperror.Wrap(apperror.CodeExternalService, err, "decoding draft response")
	}
	if !out.Success {
		return "", apperror.ExternalService("draft service reported failure")
	}
	return out.Response, nil
}

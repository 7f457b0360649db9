package consult

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPBackend talks to the live consultation service.
//
//	POST {base}/api/consultation/start            {"question","model"} → {"session_id"}
//	GET  {base}/api/consultation/{id}/progress    → Snapshot
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// HTTPOption customizes HTTPBackend construction.
type HTTPOption func(*HTTPBackend)

// WithHTTPClient substitutes the underlying http.Client, mainly for tests.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		if client != nil {
			b.client = client
		}
	}
}

// NewHTTPBackend creates a backend rooted at baseURL (scheme and host, no
// trailing slash required).
func NewHTTPBackend(baseURL string, opts ...HTTPOption) (*HTTPBackend, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("consult: backend base URL is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("consult: parse base URL: %w", err)
	}
	b := &HTTPBackend{
		baseURL: trimmed,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Start implements Backend.
func (b *HTTPBackend) Start(ctx context.Context, req Request) (Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Session{}, fmt.Errorf("consult: encode start request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/api/consultation/start", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("consult: build start request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("consult: start consultation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("consult: start consultation: %s", statusDetail(resp))
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return Session{}, fmt.Errorf("consult: decode start response: %w", err)
	}
	if strings.TrimSpace(session.ID) == "" {
		return Session{}, fmt.Errorf("consult: backend returned empty session id")
	}
	return session, nil
}

// Progress implements Backend.
func (b *HTTPBackend) Progress(ctx context.Context, session Session) (Snapshot, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/consultation/%s/progress", b.baseURL, url.PathEscape(session.ID)), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("consult: build progress request: %w", err)
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return Snapshot{}, fmt.Errorf("consult: fetch progress: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("consult: fetch progress: %s", statusDetail(resp))
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("consult: decode progress response: %w", err)
	}
	return snap, nil
}

// statusDetail summarizes a non-200 response, preferring a JSON error body.
func statusDetail(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		return fmt.Sprintf("%s (%s)", resp.Status, payload.Error)
	}
	return resp.Status
}

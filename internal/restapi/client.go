// Package restapi is the thin client for the remote complaint service: the
// list fetch the snapshot is rebuilt from, and the status write the workflow
// engine gates. The CRUD service itself is someone else's code; this client
// only has to survive its envelope variants.
package restapi

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

	"github.com/civicgrid/complaintd/internal/model"
)

const defaultTimeout = 15 * time.Second

// HTTPError is a non-2xx response from the complaint service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Client talks to the complaint service's REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL. A nil httpClient gets
// a default with a request timeout.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

// FeedURL derives the live feed endpoint from the REST base URL: http
// becomes ws, https becomes wss, and feedPath is appended.
func (c *Client) FeedURL(feedPath string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if feedPath == "" {
		feedPath = "/ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + feedPath
	return u.String(), nil
}

// Token returns the configured bearer token.
func (c *Client) Token() string { return c.token }

// ListComplaints fetches the full complaint list, flattening whichever
// envelope nesting the service happens to produce.
func (c *Client) ListComplaints(ctx context.Context) ([]model.Complaint, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/complaints", nil)
	if err != nil {
		return nil, err
	}
	list, err := extractList(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	return list, nil
}

// UpdateStatus issues the remote status write. The returned complaint is
// the server's confirmed record; callers feed it back through the
// reconciler as a synthetic updated event. The idempotency key lets the
// server deduplicate a retried write.
func (c *Client) UpdateStatus(ctx context.Context, id string, newStatus model.Status, note, idempotencyKey string) (model.Complaint, error) {
	body := map[string]string{
		"status": string(newStatus),
		"note":   note,
	}
	raw, err := c.doWithHeader(ctx, http.MethodPatch, "/api/complaints/"+url.PathEscape(id)+"/status", body,
		http.Header{"Idempotency-Key": []string{idempotencyKey}})
	if err != nil {
		return model.Complaint{}, err
	}
	complaint, err := extractComplaint(raw)
	if err != nil {
		return model.Complaint{}, fmt.Errorf("update status response: %w", err)
	}
	return complaint, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	return c.doWithHeader(ctx, method, path, body, nil)
}

func (c *Client) doWithHeader(ctx context.Context, method, path string, body any, extra http.Header) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func errorMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// listKeys are the envelope keys different service versions have wrapped
// the complaint list in.
var listKeys = []string{"data", "complaints", "results", "items"}

// extractList flattens the known envelope shapes to a plain list: a bare
// array, or an object whose list hides under one of listKeys, possibly
// nested one level deeper ({"data":{"data":[...]}}).
func extractList(raw json.RawMessage, depth int) ([]model.Complaint, error) {
	if depth > 2 {
		return nil, fmt.Errorf("envelope nested too deep")
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	if trimmed[0] == '[' {
		var list []model.Complaint
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	for _, key := range listKeys {
		inner, ok := obj[key]
		if !ok {
			continue
		}
		return extractList(inner, depth+1)
	}
	return nil, fmt.Errorf("unrecognized envelope shape")
}

// extractComplaint accepts a bare complaint object or one wrapped in a
// single "data" envelope.
func extractComplaint(raw json.RawMessage) (model.Complaint, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && bytes.TrimSpace(env.Data)[0] == '{' {
		raw = env.Data
	}
	var c model.Complaint
	if err := json.Unmarshal(raw, &c); err != nil {
		return model.Complaint{}, fmt.Errorf("decode complaint: %w", err)
	}
	if c.ID == "" {
		return model.Complaint{}, fmt.Errorf("complaint missing id")
	}
	return c, nil
}

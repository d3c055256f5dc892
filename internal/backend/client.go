package backend

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

const maxResponseBytes = 10 << 20

// Error is a failed backend call: a transport error (Status 0) or a non-2xx
// response.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "backend unavailable: " + e.Message
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Response is a successful backend reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the backend's Content-Type header.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client performs calls against bot and integration backends.
type Client struct {
	HTTP *http.Client
}

// NewClient creates a Client whose calls are bounded by timeout (0 means none).
func NewClient(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// Do sends payload to url. A nil payload sends no body, []byte and
// json.RawMessage are sent verbatim, anything else is JSON-encoded.
func (c *Client) Do(ctx context.Context, method, url string, payload any) (*Response, error) {
	var body io.Reader
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		body = bytes.NewReader(p)
	case []byte:
		body = bytes.NewReader(p)
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode backend payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Message: err.Error(), Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Message: "read response: " + err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

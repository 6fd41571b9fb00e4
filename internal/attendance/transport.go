// Package attendance is the client side of the attendance service: the
// REST transport, check-in/checkout/history calls, and the QR audit
// registry report.
package attendance

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

// maxBody caps how much of a response we read.
const maxBody = 1 << 20

// APIError is a non-2xx answer from the service. Message carries the
// server's own message when it sent one.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
	// Body is the raw response body, for endpoints whose error answers
	// carry more than a message.
	Body []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed with status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Transport sends JSON requests with bearer authentication.
type Transport struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
}

// NewTransport returns a transport for baseURL. token may be empty until login.
func NewTransport(baseURL, token string) *Transport {
	return &Transport{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AuthToken:  token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// buildURL joins path onto BaseURL and checks the result parses.
func (t *Transport) buildURL(path string) (string, error) {
	u, err := url.Parse(t.BaseURL + path)
	if err != nil {
		return "", fmt.Errorf("build url: %w", err)
	}
	return u.String(), nil
}

// Do sends method path with data as the JSON body (nil for none) and
// decodes a 2xx response into out (nil to discard). Any other status is
// returned as *APIError.
func (t *Transport) Do(ctx context.Context, method, path string, data any, out any) error {
	fullURL, err := t.buildURL(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+t.AuthToken)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%s %s: read response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: serverMessage(raw, resp.StatusCode),
			Body:    raw,
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// serverMessage pulls "message" or "error" out of a JSON error body,
// falling back to the status text.
func serverMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := http.StatusText(status); text != "" {
		return strings.ToLower(text)
	}
	return "request failed"
}

package modeladapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/germanamz/mender/pkg/modeladapter/usage"
)

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}

	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// TransportError is returned when no response was received: the request
// timed out, the connection was refused or reset, or DNS failed.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error { return e.Err }

// Transport marks the error as a failure to get any response.
func (e *TransportError) Transport() bool { return true }

// Auth holds authentication settings for a server sitting behind an
// authenticating proxy.
type Auth struct {
	Key    string // Credential value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// ModelAdapter holds the HTTP plumbing shared by model server clients: base
// URL, auth, custom headers and usage tracking.
type ModelAdapter struct {
	BaseURL string            // Server base URL (no trailing slash).
	Auth    Auth              // Authentication settings.
	Client  *http.Client      // HTTP client; falls back to a default with a 10-minute timeout.
	Headers map[string]string // Extra headers applied to every request.
	Usage   *usage.Tracker    // Optional token usage tracker.

	clientOnce    sync.Once
	defaultClient *http.Client
}

// New creates a ModelAdapter with the given settings.
// A nil client falls back to a default client at call time.
func New(baseURL string, auth Auth, client *http.Client) *ModelAdapter {
	return &ModelAdapter{
		Auth:    auth,
		BaseURL: baseURL,
		Client:  client,
	}
}

// RecordUsage adds tc to the tracker when one is configured.
func (a *ModelAdapter) RecordUsage(tc usage.TokenCount) {
	if a.Usage != nil {
		a.Usage.Add(tc)
	}
}

// httpClient returns the configured client or a cached default client with a 10-minute timeout.
func (a *ModelAdapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		a.defaultClient = &http.Client{Timeout: 10 * time.Minute}
	})

	return a.defaultClient
}

// NewRequest builds an *http.Request with the base URL, auth, and custom
// headers already applied.
func (a *ModelAdapter) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := a.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	if a.Auth.Key != "" {
		header := a.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := a.Auth.Key
		if header == "Authorization" {
			scheme := a.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}

			value = scheme + " " + value
		} else if a.Auth.Scheme != "" {
			value = a.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request using the configured HTTP client. Failures to obtain
// a response are returned as *TransportError.
func (a *ModelAdapter) Do(req *http.Request) (*http.Response, error) {
	resp, err := a.httpClient().Do(req) //nolint:gosec // URL is built from validated BaseURL config.
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}

	return resp, nil
}

// GetRaw sends a GET to path, checks for a 2xx status and returns the body.
func (a *ModelAdapter) GetRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := a.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	return a.send(req)
}

// PostRaw marshals payload as JSON, sends a POST to path, checks for a 2xx
// status and returns the body.
func (a *ModelAdapter) PostRaw(ctx context.Context, path string, payload any) ([]byte, error) {
	req, err := a.newJSONRequest(ctx, path, payload)
	if err != nil {
		return nil, err
	}

	return a.send(req)
}

// GetJSON sends a GET to path and unmarshals the 2xx body into dest.
func (a *ModelAdapter) GetJSON(ctx context.Context, path string, dest any) error {
	body, err := a.GetRaw(ctx, path)
	if err != nil {
		return err
	}

	return decode(body, dest)
}

// PostStream sends a JSON POST and returns the open response body for
// incremental reading. The caller must close it.
func (a *ModelAdapter) PostStream(ctx context.Context, path string, payload any) (io.ReadCloser, error) {
	req, err := a.newJSONRequest(ctx, path, payload)
	if err != nil {
		return nil, err
	}

	resp, err := a.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		respBody, _ := io.ReadAll(resp.Body)

		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return resp.Body, nil
}

func (a *ModelAdapter) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return req, nil
}

func (a *ModelAdapter) send(req *http.Request) ([]byte, error) {
	resp, err := a.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func decode(body []byte, dest any) error {
	if dest == nil {
		return nil
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

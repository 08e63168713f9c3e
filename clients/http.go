package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/logger"
)

const maxErrorBody = 64 << 10

// restClient is the JSON-over-HTTP plumbing shared by the backend and auth
// clients.
type restClient struct {
	baseURL string
	client  *http.Client
}

func newRESTClient(baseURL string, timeout time.Duration) restClient {
	return restClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Do issues a request against baseURL+path. Non-2xx responses are returned
// untouched; only transport failures produce an error.
func (r restClient) Do(ctx context.Context, method, path string, query url.Values, headers http.Header, body io.Reader) (*http.Response, error) {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		for _, vv := range v {
			req.Header.Add(k, vv)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	return r.client.Do(req)
}

// call sends in as JSON and decodes the response into out. Either may be nil.
func (r restClient) call(ctx context.Context, method, path string, query url.Values, headers http.Header, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := r.Do(ctx, method, path, query, headers, body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.BackendUnreachable(err)
	}
	return DecodeJSON(resp, out)
}

// DecodeJSON closes resp and decodes a 2xx body into out. Non-2xx responses
// become *errors.Error carrying the server's message.
func DecodeJSON(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.FromResponse(resp.StatusCode, body)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.New(http.StatusBadGateway, "unexpected response from backend", err)
	}
	return nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

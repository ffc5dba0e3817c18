package polyclob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Request is the injected request primitive's input: method, url, headers,
// query parameters, and an optional JSON-able body.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string
	Body    interface{}
}

// Response is the injected request primitive's output.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Requester is the transport this client is built against. The concrete
// HTTP implementation is explicitly out of scope for the core: callers may
// substitute their own (a retrying client, a mock for tests, one bound to a
// custom TLS config); httpRequester below is the default, swappable
// net/http-based adapter.
type Requester interface {
	Do(req Request) (Response, error)
}

// httpRequester is the default Requester, a thin wrapper over net/http.
type httpRequester struct {
	client *http.Client
}

// NewHTTPRequester returns the default net/http-based Requester with a 30s
// timeout, matching the teacher's API client default.
func NewHTTPRequester() Requester {
	return &httpRequester{client: &http.Client{Timeout: 30 * time.Second}}
}

func (h *httpRequester) Do(req Request) (Response, error) {
	var bodyReader io.Reader
	var rawBody []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, fmt.Errorf("marshal request body: %w", err)
		}
		rawBody = b
		bodyReader = bytes.NewReader(b)
	}

	fullURL := req.URL
	if len(req.Params) > 0 {
		q := url.Values{}
		for k, v := range req.Params {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(fullURL, "?") {
			sep = "&"
		}
		fullURL += sep + q.Encode()
	}

	httpReq, err := http.NewRequest(req.Method, fullURL, bodyReader)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if debugEnabled() {
		log.Debug().Str("method", req.Method).Str("url", fullURL).Int("body_len", len(rawBody)).Msg("http request")
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}

	return Response{Status: resp.StatusCode, Headers: resp.Header, Body: respBody}, nil
}

// checkStatus converts a non-2xx response into a KindTransport error
// carrying the status and a truncated body snippet.
func checkStatus(resp Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	return transportError(resp.Status, resp.Body, "unexpected status from %s", "request")
}

// decodeJSON unmarshals resp.Body into v, wrapping parse failures as
// KindTransport errors.
func decodeJSON(resp Response, v interface{}) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return transportError(resp.Status, resp.Body, "decode response: %v", err)
	}
	return nil
}

// Package httputil holds JSON response helpers and the HTTP client
// abstraction the inspector uses to fetch remote thumbnails.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient abstracts outbound HTTP so remote image fetches can be tested.
// Use StandardClient in production and MockHTTPClient in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardClient wraps *http.Client to implement HTTPClient.
type StandardClient struct {
	*http.Client
}

// NewStandardClient returns a client with the given overall request timeout.
// A zero timeout means no limit.
func NewStandardClient(timeout time.Duration) *StandardClient {
	return &StandardClient{Client: &http.Client{Timeout: timeout}}
}

// Do sends an HTTP request.
func (c *StandardClient) Do(req *http.Request) (*http.Response, error) {
	return c.Client.Do(req)
}

// MockHTTPClient records requests and replays queued responses.
type MockHTTPClient struct {
	mu          sync.Mutex
	Requests    []*http.Request
	Responses   []*MockResponse
	responseIdx int
}

// MockResponse defines a canned HTTP response for testing.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Error      error
}

// NewMockHTTPClient creates a new mock HTTP client.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response to be returned by a subsequent request.
func (m *MockHTTPClient) AddResponse(statusCode int, body []byte, contentType string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := make(http.Header)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	m.Responses = append(m.Responses, &MockResponse{StatusCode: statusCode, Body: body, Headers: h})
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, &MockResponse{Error: err})
	return m
}

// Do records the request and returns the next queued response, or an empty
// 200 when the queue is exhausted.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.responseIdx >= len(m.Responses) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	}

	resp := m.Responses[m.responseIdx]
	m.responseIdx++
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Body:       io.NopCloser(bytes.NewReader(resp.Body)),
		Header:     resp.Headers,
		Request:    req,
	}, nil
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Package httputil holds the HTTP seams shared by the insight client, the
// stub backend and the live view.
package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPClient sends a request. *http.Client satisfies it; MockHTTPClient
// replaces it in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewTimeoutClient returns a client whose requests give up after timeout.
// A zero timeout means no client-side limit.
func NewTimeoutClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// ErrNoResponse is returned by MockHTTPClient when its queue is empty.
var ErrNoResponse = errors.New("mock http: no response queued")

// MockHTTPClient replays queued replies in order and records every request.
type MockHTTPClient struct {
	mu       sync.Mutex
	replies  []mockReply
	requests []*http.Request
}

type mockReply struct {
	status int
	body   string
	header http.Header
	err    error
}

// NewMockHTTPClient returns a mock with an empty queue.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a plain reply.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	return m.push(mockReply{status: status, body: body, header: make(http.Header)})
}

// AddJSONResponse queues a reply with a JSON content type.
func (m *MockHTTPClient) AddJSONResponse(status int, body string) *MockHTTPClient {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return m.push(mockReply{status: status, body: body, header: h})
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	return m.push(mockReply{err: err})
}

func (m *MockHTTPClient) push(r mockReply) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, r)
	return m
}

// Do records req and pops the next reply. Replies honour a cancelled
// request context the way a real transport does.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, ErrNoResponse)
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	m.mu.Unlock()

	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Status:     fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		Header:     r.header.Clone(),
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Request:    req,
	}, nil
}

// GetRequest returns the nth recorded request, or nil.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

// RequestCount returns how many requests were sent.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Pending returns how many queued replies have not been consumed.
func (m *MockHTTPClient) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

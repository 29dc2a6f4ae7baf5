package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/httputil"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/monitoring"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/version"
)

// DefaultBaseURL is the local development API root.
const DefaultBaseURL = "http://localhost:8080/api/v1"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 4 << 20

// Fetcher retrieves the current insight for a (contest, photo) pair.
type Fetcher interface {
	FetchOnce(ctx context.Context, contestID, photoID int64) (*InsightResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, contestID, photoID int64) (*InsightResult, error)

// FetchOnce calls f.
func (f FetcherFunc) FetchOnce(ctx context.Context, contestID, photoID int64) (*InsightResult, error) {
	return f(ctx, contestID, photoID)
}

// Client fetches insights over HTTP from the contest API.
type Client struct {
	baseURL string
	http    httputil.HTTPClient
	token   string
	cookie  *http.Cookie
	logf    func(format string, v ...interface{})
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport.
func WithHTTPClient(c httputil.HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout uses a standard client with the given request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http = httputil.NewTimeoutClient(d) }
}

// WithBearerToken sends the token in the Authorization header.
func WithBearerToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithSessionCookie sends a session cookie with every request.
func WithSessionCookie(name, value string) Option {
	return func(cl *Client) {
		if name == "" {
			cl.cookie = nil
			return
		}
		cl.cookie = &http.Cookie{Name: name, Value: value}
	}
}

// NewClient creates a Client rooted at baseURL (for example
// "https://api.example.com/api/v1"). An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httputil.NewTimeoutClient(30 * time.Second),
		logf:    monitoring.Tagged("insight"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the URL polled for the given pair.
func (c *Client) Endpoint(contestID, photoID int64) string {
	return fmt.Sprintf("%s/contests/%d/photos/%d/similarity-insight", c.baseURL, contestID, photoID)
}

// errorResponse is the body shape of non-2xx responses. The API sends
// {"message": ...} for generic failures and the insight shape (with a
// status) for domain rejections.
type errorResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// FetchOnce performs a single GET of the insight endpoint.
func (c *Client) FetchOnce(ctx context.Context, contestID, photoID int64) (*InsightResult, error) {
	if contestID <= 0 || photoID <= 0 {
		return nil, &FetchError{
			Kind:    InvalidArgument,
			Message: fmt.Sprintf("invalid identifiers: contestId=%d photoId=%d", contestID, photoID),
		}
	}

	url := c.Endpoint(contestID, photoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: Transient, Message: "could not build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "walkfind-insight/"+version.Version)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logf("GET %s failed: %v", url, err)
		return nil, &FetchError{Kind: Transient, Message: "Network error while contacting the server.", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &FetchError{Kind: Transient, StatusCode: resp.StatusCode, Message: "Failed to read the server response.", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := classifyStatus(resp.StatusCode, body)
		c.logf("GET %s: %v", url, fe)
		return nil, fe
	}

	var result InsightResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &FetchError{
			Kind:       Malformed,
			StatusCode: resp.StatusCode,
			Message:    "The analysis result could not be read.",
			Err:        fmt.Errorf("decoding insight response: %w", err),
		}
	}
	if err := result.Validate(); err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			fe.StatusCode = resp.StatusCode
		}
		return nil, err
	}

	c.logf("contest=%d photo=%d status=%s", contestID, photoID, result.Status)
	return &result, nil
}

// classifyStatus maps a non-2xx response onto a FetchError.
func classifyStatus(code int, body []byte) *FetchError {
	fe := &FetchError{StatusCode: code}
	switch code {
	case http.StatusUnauthorized:
		fe.Kind = Unauthorized
	case http.StatusForbidden:
		fe.Kind = Forbidden
	default:
		fe.Kind = Transient
	}

	var er errorResponse
	if len(body) > 0 && json.Unmarshal(body, &er) == nil {
		fe.Message = strings.TrimSpace(er.Message)
		if er.Status != "" {
			fe.Status = ParseStatus(er.Status)
		}
	}
	if fe.Message == "" {
		if fe.Status != "" {
			fe.Message = fmt.Sprintf("API error: status=%d (%s)", code, fe.Status)
		} else {
			fe.Message = fmt.Sprintf("API error: status=%d", code)
		}
	}
	return fe
}

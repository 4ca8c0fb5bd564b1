// Package transport sends requests to forum hosts and hands back decoded text.
// It reports whatever status the server answers with and leaves the meaning
// of 206, 304, 302 and 416 to its callers.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vdavid/bbs2ch/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Request is a single GET or POST to a host and path.
type Request struct {
	Method string
	Host   string
	Path   string
	Header http.Header
	Body   []byte
}

// String renders the request line and headers for diagnostics.
func (r *Request) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\nHost: %s\r\n", r.Method, r.Path, r.Host)
	for key, values := range r.Header {
		for _, v := range values {
			if strings.EqualFold(key, "Cookie") {
				v = "<redacted>"
			}
			fmt.Fprintf(&b, "%s: %s\r\n", key, v)
		}
	}
	return b.String()
}

// Response is a response with its body inflated and decoded to UTF-8.
type Response struct {
	StatusCode int
	Header     http.Header
	// Body is the decoded text.
	Body string
	// Length is the byte length of the body after gzip inflation and before
	// charset decoding. Range offsets are counted in these bytes.
	Length int
}

// LastModified returns the Last-Modified header verbatim.
func (r *Response) LastModified() string {
	return r.Header.Get("Last-Modified")
}

// Options configures a Client.
type Options struct {
	// Scheme is "http" unless set.
	Scheme         string
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// MaxConcurrent caps in-flight requests across all hosts. Zero means 4.
	MaxConcurrent int64
}

// Client sends requests to forum hosts.
type Client struct {
	http      *http.Client
	scheme    string
	userAgent string
	slots     *semaphore.Weighted
}

// NewClient creates a Client. Redirects are never followed.
func NewClient(opts Options) *Client {
	if opts.Scheme == "" {
		opts.Scheme = "http"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}

	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer(opts.ConnectTimeout, opts.ReadTimeout),
		DisableCompression:    true,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.ConnectTimeout,
	}

	return &Client{
		http: &http.Client{
			Transport: httpTransport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		scheme:    opts.Scheme,
		userAgent: opts.UserAgent,
		slots:     semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// Do sends req and reads the whole response. Network failures come back as
// *ConnectionError and unreadable responses as *DecodeError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, &ConnectionError{Request: req, Err: err}
	}
	defer c.slots.Release(1)

	started := time.Now()
	defer func() {
		metrics.TransportDuration.Observe(time.Since(started).Seconds())
	}()

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, &DecodeError{Request: req, Err: err}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.TransportErrors.WithLabelValues(errorKind(err)).Inc()
		if isConnectionFailure(err) || ctx.Err() != nil {
			return nil, &ConnectionError{Request: req, Err: err}
		}
		return nil, &DecodeError{Request: req, Err: err}
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	raw, err := io.ReadAll(&emptyReadLimiter{r: httpResp.Body})
	if err != nil {
		metrics.TransportErrors.WithLabelValues(errorKind(err)).Inc()
		if isConnectionFailure(err) {
			return nil, &ConnectionError{Request: req, Err: err}
		}
		return nil, &DecodeError{Request: req, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	if strings.EqualFold(httpResp.Header.Get("Content-Encoding"), "gzip") && len(raw) > 0 {
		raw, err = gunzip(raw)
		if err != nil {
			metrics.TransportErrors.WithLabelValues("decode").Inc()
			return nil, &DecodeError{Request: req, Err: err}
		}
	}

	metrics.TransportRequests.WithLabelValues(req.Method, strconv.Itoa(httpResp.StatusCode)).Inc()
	log.Printf("Transport: %s %s%s -> %d (%d bytes)", req.Method, req.Host, req.Path, httpResp.StatusCode, len(raw))

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       decodeText(raw, httpResp.Header.Get("Content-Type")),
		Length:     len(raw),
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.scheme+"://"+req.Host+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "*/*")
	}

	return httpReq, nil
}

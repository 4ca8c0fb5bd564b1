package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

func newTestClient(readTimeout time.Duration) *Client {
	return NewClient(Options{
		UserAgent:      "Monazilla/1.00 (test)",
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    readTimeout,
		MaxConcurrent:  2,
	})
}

func hostOf(t *testing.T, server *httptest.Server) string {
	t.Helper()
	return strings.TrimPrefix(server.URL, "http://")
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func shiftJIS(t *testing.T, s string) []byte {
	t.Helper()
	out, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return out
}

func TestClient_Do(t *testing.T) {
	dat := "名無し<>sage<>2011/08/27 ID:abc<> 本文 <>スレ\n"

	tests := []struct {
		name    string
		handler http.HandlerFunc
		req     *Request
		check   func(*testing.T, *Response)
	}{
		{
			name: "inflates gzip and reports the inflated length",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
				w.Header().Set("Content-Encoding", "gzip")
				w.Header().Set("Last-Modified", "Sat, 27 Aug 2011 06:19:47 GMT")
				_, _ = w.Write(gzipBytes(t, shiftJIS(t, dat)))
			},
			req: &Request{
				Method: http.MethodGet,
				Path:   "/test/dat/1314425987.dat",
				Header: http.Header{"Accept-Encoding": {"gzip"}},
			},
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, dat, resp.Body)
				assert.Equal(t, len(shiftJIS(t, dat)), resp.Length)
				assert.Equal(t, "Sat, 27 Aug 2011 06:19:47 GMT", resp.LastModified())
			},
		},
		{
			name: "falls back to Shift_JIS without a declared charset",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				_, _ = w.Write(shiftJIS(t, "テスト (1)"))
			},
			req: &Request{Method: http.MethodGet, Path: "/board/subject.txt"},
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, "テスト (1)", resp.Body)
			},
		},
		{
			name: "honours the charset in Content-Type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=UTF-8")
				_, _ = w.Write([]byte("<b>ニュース</b>"))
			},
			req: &Request{Method: http.MethodGet, Path: "/bbsmenu.html"},
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, "<b>ニュース</b>", resp.Body)
			},
		},
		{
			name: "honours a meta charset",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				page := `<html><head><meta http-equiv="Content-Type" content="text/html; charset=EUC-JP"></head><body>板</body></html>`
				out, err := japanese.EUCJP.NewEncoder().Bytes([]byte(page))
				require.NoError(t, err)
				_, _ = w.Write(out)
			},
			req: &Request{Method: http.MethodGet, Path: "/bbsmenu.html"},
			check: func(t *testing.T, resp *Response) {
				assert.Contains(t, resp.Body, "<body>板</body>")
			},
		},
		{
			name: "replaces undecodable bytes",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte{'a', 0x81, 'b', 0xff})
			},
			req: &Request{Method: http.MethodGet, Path: "/x"},
			check: func(t *testing.T, resp *Response) {
				assert.True(t, strings.HasPrefix(resp.Body, "a"))
				assert.Contains(t, resp.Body, "�")
				assert.Equal(t, 4, resp.Length)
			},
		},
		{
			name: "does not follow redirects",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/moved/", http.StatusFound)
			},
			req: &Request{Method: http.MethodGet, Path: "/board/subject.txt"},
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, http.StatusFound, resp.StatusCode)
				assert.Equal(t, "/moved/", resp.Header.Get("Location"))
			},
		},
		{
			name: "sends range and conditional headers untouched",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "bytes=99-", r.Header.Get("Range"))
				assert.Equal(t, "Sat, 27 Aug 2011 06:19:47 GMT", r.Header.Get("If-Modified-Since"))
				assert.Equal(t, "Monazilla/1.00 (test)", r.Header.Get("User-Agent"))
				w.WriteHeader(http.StatusPartialContent)
				_, _ = w.Write([]byte("\nnew<><><> line <>\n"))
			},
			req: &Request{
				Method: http.MethodGet,
				Path:   "/test/dat/1.dat",
				Header: http.Header{
					"Range":             {"bytes=99-"},
					"If-Modified-Since": {"Sat, 27 Aug 2011 06:19:47 GMT"},
				},
			},
			check: func(t *testing.T, resp *Response) {
				assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
				assert.Equal(t, "\nnew<><><> line <>\n", resp.Body)
				assert.Equal(t, 19, resp.Length)
			},
		},
		{
			name: "posts the body as given",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.NoError(t, r.ParseForm())
				assert.Equal(t, "news", r.PostForm.Get("bbs"))
				_, _ = w.Write([]byte("<!-- 2ch_X:true -->"))
			},
			req: &Request{
				Method: http.MethodPost,
				Path:   "/test/bbs.cgi",
				Header: http.Header{"Content-Type": {"application/x-www-form-urlencoded"}},
				Body:   []byte("bbs=news&key=1"),
			},
			check: func(t *testing.T, resp *Response) {
				assert.Contains(t, resp.Body, "2ch_X:true")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			tt.req.Host = hostOf(t, server)
			resp, err := newTestClient(time.Second).Do(context.Background(), tt.req)
			require.NoError(t, err)
			tt.check(t, resp)
		})
	}
}

func TestClient_Do_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	req := &Request{Method: http.MethodGet, Host: addr, Path: "/bbsmenu.html"}
	_, err = newTestClient(time.Second).Do(context.Background(), req)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
	assert.Same(t, req, connErr.Request)
	assert.Contains(t, connErr.Error(), addr)
}

func TestClient_Do_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	req := &Request{Method: http.MethodGet, Host: hostOf(t, server), Path: "/slow.dat"}
	_, err := newTestClient(100*time.Millisecond).Do(context.Background(), req)

	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
}

func TestClient_Do_ConnectionResetMidBody(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		buf := make([]byte, 4096)
		_, _ = conn.Read(buf)
		_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 1000\r\n\r\npartial"))
		time.Sleep(50 * time.Millisecond)
		// Closing with a zero linger sends RST instead of FIN.
		_ = conn.(*net.TCPConn).SetLinger(0)
		_ = conn.Close()
	}()

	req := &Request{Method: http.MethodGet, Host: listener.Addr().String(), Path: "/reset.dat"}
	_, err = newTestClient(2*time.Second).Do(context.Background(), req)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "expected ConnectionError, got %v", err)
	assert.Equal(t, "/reset.dat", connErr.Request.Path)
}

func TestIsConnectionFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dns", &net.DNSError{Err: "no such host", Name: "example.invalid"}, true},
		{"dial", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"read reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"wrapped reset", fmt.Errorf("failed to read body: %w", syscall.ECONNRESET), true},
		{"broken pipe", &net.OpError{Op: "write", Err: syscall.EPIPE}, true},
		{"deadline", os.ErrDeadlineExceeded, true},
		{"malformed response", errors.New(`malformed HTTP status code "abc"`), false},
		{"unexpected eof", io.ErrUnexpectedEOF, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConnectionFailure(tt.err))
		})
	}
}

func TestClient_Do_CorruptGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write([]byte("not gzip at all"))
	}))
	defer server.Close()

	_, err := newTestClient(time.Second).Do(context.Background(), &Request{Method: http.MethodGet, Host: hostOf(t, server), Path: "/a.dat"})

	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
}

func TestRequest_String(t *testing.T) {
	req := &Request{
		Method: http.MethodPost,
		Host:   "hibari.2ch.net",
		Path:   "/test/bbs.cgi",
		Header: http.Header{"Cookie": {"PON=secret"}, "Referer": {"http://hibari.2ch.net/test/read.cgi/software/1/"}},
	}

	s := req.String()
	assert.Contains(t, s, "POST /test/bbs.cgi HTTP/1.1")
	assert.Contains(t, s, "Host: hibari.2ch.net")
	assert.Contains(t, s, "Referer: http://hibari.2ch.net/test/read.cgi/software/1/")
	assert.NotContains(t, s, "secret")
}

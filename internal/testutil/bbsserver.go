package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/japanese"
)

// ConfirmField is the hidden field the fake forum's confirmation page adds.
// A post carrying it together with the session cookie is accepted.
var ConfirmField = [2]string{"yuki", "akari"}

// SessionCookie is the cookie the fake forum hands out on the confirmation page.
const SessionCookie = "PREN"

// RecordedRequest is a request the fake forum received.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type resource struct {
	content []byte
	modTime time.Time
}

// FakeBBS is an httptest server that behaves like a 2ch host: a board directory, thread
// indexes, dat logs served with Range and If-Modified-Since, board moves answered with
// 302, and a bbs.cgi that asks for confirmation before accepting a first post.
// Text is served in Shift_JIS.
type FakeBBS struct {
	Server *httptest.Server

	mu        sync.Mutex
	clock     time.Time
	files     map[string]*resource
	moves     map[string]string
	overrides map[string]http.HandlerFunc
	requests  []RecordedRequest
	posts     []url.Values
}

// NewFakeBBS starts a fake forum that is shut down when the test finishes.
func NewFakeBBS(t *testing.T) *FakeBBS {
	t.Helper()

	f := NewFakeBBSForE2E()
	t.Cleanup(f.Close)
	return f
}

// NewFakeBBSForE2E starts a fake forum outside of a test. The caller must Close it.
func NewFakeBBSForE2E() *FakeBBS {
	f := &FakeBBS{
		clock:     time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC),
		files:     make(map[string]*resource),
		moves:     make(map[string]string),
		overrides: make(map[string]http.HandlerFunc),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	return f
}

// Close shuts the server down.
func (f *FakeBBS) Close() {
	f.Server.Close()
}

// URL returns the base URL, without a trailing slash.
func (f *FakeBBS) URL() string {
	return f.Server.URL
}

// Host returns the host:port the server listens on.
func (f *FakeBBS) Host() string {
	return strings.TrimPrefix(f.Server.URL, "http://")
}

// BoardURL returns the URL of a board directory.
func (f *FakeBBS) BoardURL(board string) string {
	return f.Server.URL + "/" + board + "/"
}

// MenuPath is where the board directory is served.
const MenuPath = "/bbsmenu.html"

// MenuURL returns the URL of the board directory.
func (f *FakeBBS) MenuURL() string {
	return f.Server.URL + MenuPath
}

// SetMenu replaces the board directory page.
func (f *FakeBBS) SetMenu(page string) {
	f.set(MenuPath, page)
}

// SetSubject replaces the thread index of a board.
func (f *FakeBBS) SetSubject(board, body string) {
	f.set("/"+board+"/subject.txt", body)
}

// SetDat replaces a thread log.
func (f *FakeBBS) SetDat(board, dat, body string) {
	f.set(datPath(board, dat), body)
}

// AppendDat adds lines to the end of a thread log.
func (f *FakeBBS) AppendDat(board, dat, lines string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := datPath(board, dat)
	res := f.files[path]
	if res == nil {
		res = &resource{}
		f.files[path] = res
	}
	res.content = append(res.content, encodeSJIS(lines)...)
	res.modTime = f.tick()
}

// DatLength returns the byte length of a thread log as served.
func (f *FakeBBS) DatLength(board, dat string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if res := f.files[datPath(board, dat)]; res != nil {
		return len(res.content)
	}
	return 0
}

// MoveBoard makes the board answer with redirects and point to its new directory.
func (f *FakeBBS) MoveBoard(from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.moves[from] = to
}

// Handle serves path with h instead of the default behavior until Unhandle is called.
func (f *FakeBBS) Handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.overrides[path] = h
}

// Unhandle restores the default behavior for path.
func (f *FakeBBS) Unhandle(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.overrides, path)
}

// Requests returns every request received so far.
func (f *FakeBBS) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]RecordedRequest(nil), f.requests...)
}

// RequestsTo returns the requests received for path.
func (f *FakeBBS) RequestsTo(path string) []RecordedRequest {
	var matched []RecordedRequest
	for _, r := range f.Requests() {
		if r.Path == path {
			matched = append(matched, r)
		}
	}
	return matched
}

// Posts returns the decoded forms of every post received so far.
func (f *FakeBBS) Posts() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]url.Values(nil), f.posts...)
}

// DatPath returns the request path of a thread log.
func DatPath(board, dat string) string {
	return datPath(board, dat)
}

func datPath(board, dat string) string {
	return "/" + board + "/dat/" + dat + ".dat"
}

func (f *FakeBBS) set(path, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = &resource{content: encodeSJIS(text), modTime: f.tick()}
}

// tick advances the fake clock so every change gets a distinct Last-Modified.
func (f *FakeBBS) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

func (f *FakeBBS) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	override := f.overrides[r.URL.Path]
	f.mu.Unlock()

	if override != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		override(w, r)
		return
	}

	if r.URL.Path == "/test/bbs.cgi" {
		f.servePost(w, r, body)
		return
	}

	if f.serveMove(w, r) {
		return
	}

	f.mu.Lock()
	res := f.files[r.URL.Path]
	var content []byte
	var modTime time.Time
	if res != nil {
		content = append([]byte(nil), res.content...)
		modTime = res.modTime
	}
	f.mu.Unlock()

	if res == nil {
		http.NotFound(w, r)
		return
	}

	contentType := "text/plain; charset=Shift_JIS"
	if strings.HasSuffix(r.URL.Path, ".html") {
		contentType = "text/html; charset=Shift_JIS"
	}
	w.Header().Set("Content-Type", contentType)

	if r.Header.Get("Range") == "" && strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		serveGzip(w, r, content, modTime)
		return
	}

	http.ServeContent(w, r, "", modTime, bytes.NewReader(content))
}

func serveGzip(w http.ResponseWriter, r *http.Request, content []byte, modTime time.Time) {
	if since, err := http.ParseTime(r.Header.Get("If-Modified-Since")); err == nil && !modTime.Truncate(time.Second).After(since) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(content)
	_ = zw.Close()

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// serveMove answers requests under a moved board. It reports whether it handled r.
func (f *FakeBBS) serveMove(w http.ResponseWriter, r *http.Request) bool {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if len(parts) < 2 {
		return false
	}

	f.mu.Lock()
	to, moved := f.moves[parts[0]]
	f.mu.Unlock()
	if !moved {
		return false
	}

	newURL := f.BoardURL(to)
	if parts[1] == "" {
		w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
		page := fmt.Sprintf("<html><head><script>window.location.href=\"%s\"</script></head><body>移転しました</body></html>", newURL)
		_, _ = w.Write(encodeSJIS(page))
		return true
	}

	w.Header().Set("Location", newURL+parts[1])
	w.WriteHeader(http.StatusFound)
	return true
}

func (f *FakeBBS) servePost(w http.ResponseWriter, r *http.Request, body []byte) {
	form := decodeSJISForm(string(body))

	f.mu.Lock()
	f.posts = append(f.posts, form)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")

	if form.Get("MESSAGE") == "" {
		_, _ = w.Write(encodeSJIS("<html><!-- 2ch_X:error --><body>ＥＲＲＯＲ：本文がありません！</body></html>"))
		return
	}

	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" || form.Get(ConfirmField[0]) != ConfirmField[1] {
		http.SetCookie(w, &http.Cookie{
			Name:    SessionCookie,
			Value:   "session-" + form.Get("key"),
			Path:    "/",
			Expires: time.Now().Add(365 * 24 * time.Hour),
		})
		_, _ = w.Write(encodeSJIS(confirmationPage(form)))
		return
	}

	f.AppendDat(form.Get("bbs"), form.Get("key"), fmt.Sprintf("%s<>%s<>2006/01/02 15:04:05 ID:fake0000<>%s<>\n",
		form.Get("FROM"), form.Get("mail"), form.Get("MESSAGE")))
	_, _ = w.Write(encodeSJIS("<html><!-- 2ch_X:true --><head><title>書きこみました。</title></head></html>"))
}

func confirmationPage(form url.Values) string {
	var b strings.Builder
	b.WriteString("<html><!-- 2ch_X:cookie --><head><title>■ 書き込み確認 ■</title></head><body>\n")
	b.WriteString("<form method=POST action=\"../test/bbs.cgi\">\n")
	for _, name := range []string{"bbs", "key", "time", "FROM", "mail", "MESSAGE"} {
		fmt.Fprintf(&b, "<input type=hidden name=\"%s\" value=\"%s\">\n", name, form.Get(name))
	}
	fmt.Fprintf(&b, "<input type=hidden name=\"%s\" value=\"%s\">\n", ConfirmField[0], ConfirmField[1])
	b.WriteString("<input type=submit value=\"上記全てを承諾して書き込む\">\n</form></body></html>")
	return b.String()
}

// decodeSJISForm decodes an x-www-form-urlencoded body whose values are Shift_JIS.
func decodeSJISForm(body string) url.Values {
	form := url.Values{}
	for pair := range strings.SplitSeq(body, "&") {
		name, value, _ := strings.Cut(pair, "=")
		form.Add(decodeSJISComponent(name), decodeSJISComponent(value))
	}
	return form
}

func decodeSJISComponent(s string) string {
	raw, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	decoded, err := japanese.ShiftJIS.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func encodeSJIS(s string) []byte {
	encoded, err := japanese.ShiftJIS.NewEncoder().String(s)
	if err != nil {
		return []byte(s)
	}
	return []byte(encoded)
}

package bbs

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/vdavid/bbs2ch/internal/metrics"
	"github.com/vdavid/bbs2ch/internal/transport"
	"golang.org/x/net/html"
)

// submitLabel is the value of the form's submit button, "書き込む".
const submitLabel = "書き込む"

// postClockSkew is how many seconds the submitted time field lags the clock.
const postClockSkew = 1000

// postMarker finds the status comment the server embeds in its answer to a post.
var postMarker = regexp.MustCompile(`<!--\s2ch_X:([^\s]+)\s-->`)

// standardFields are the form fields every submission carries, in order.
var standardFields = []string{"bbs", "key", "time", "FROM", "mail", "MESSAGE", "submit"}

// PostOutcome is how the server answered a post.
type PostOutcome string

const (
	PostAccepted          PostOutcome = "accepted"
	PostNeedsConfirmation PostOutcome = "needs_confirmation"
	PostRejected          PostOutcome = "rejected"
)

// FormField is one name/value pair of a form.
type FormField struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

// PostRequest is a message to submit to a thread.
type PostRequest struct {
	ThreadID string `json:"thread_id" validate:"required"`
	Name     string `json:"name" validate:"max=64"`
	Mail     string `json:"mail" validate:"max=64"`
	Message  string `json:"message" validate:"required,max=4096"`
	// Confirm carries the fields of a confirmation page. Re-submitting the same
	// message with them finalizes the post.
	Confirm []FormField `json:"confirm,omitempty" validate:"dive"`
}

// PostResult is the server's answer to a post.
type PostResult struct {
	Outcome PostOutcome `json:"outcome"`
	// Marker is the status token the server embedded, empty if there was none.
	Marker string `json:"marker"`
	// Fields holds the extra fields of a confirmation page.
	Fields []FormField `json:"fields,omitempty"`
	// Body is the server's page, kept for diagnosing rejections.
	Body string `json:"body,omitempty"`
}

// Submit posts a message to a thread. The session cookies for the submission path
// are sent along, and any cookie the server sets is recorded and persisted before
// returning, whatever the outcome.
func (s *Service) Submit(ctx context.Context, req PostRequest) (*PostResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPost, err)
	}

	info, err := s.store.GetThreadInfo(ctx, req.ThreadID)
	if err != nil {
		return nil, storageError("get thread info", err)
	}

	loc, err := parseBoardURL(info.BoardURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Referer", loc.readURL(info.Dat))
	header.Set("Accept-Encoding", "gzip")
	if s.cookies != nil {
		if cookie := s.cookies.CookieHeader(loc.Host, postPath); cookie != "" {
			header.Set("Cookie", cookie)
		}
	}

	body := encodePostForm(s.postFields(loc.Name, info.Dat, req))
	resp, err := s.transport.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Host:   loc.Host,
		Path:   postPath,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	if s.cookies != nil {
		for _, raw := range resp.Header.Values("Set-Cookie") {
			s.cookies.ApplySetCookie(raw, loc.Host, postPath)
		}
		if err := s.cookies.Persist(); err != nil {
			return nil, fmt.Errorf("failed to persist cookies: %w", err)
		}
	}

	result := interpretPostResponse(resp.Body)
	log.Printf("Post: %s/%s -> %d, %s (marker %q)", info.BoardURL, info.Dat, resp.StatusCode, result.Outcome, result.Marker)
	metrics.Posts.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

// postFields lists the submission form in the order the server expects, followed by
// the confirmation fields that aren't standard fields.
func (s *Service) postFields(board, dat string, req PostRequest) []FormField {
	fields := []FormField{
		{Name: "bbs", Value: board},
		{Name: "key", Value: dat},
		{Name: "time", Value: strconv.FormatInt(s.now().Unix()-postClockSkew, 10)},
		{Name: "FROM", Value: req.Name},
		{Name: "mail", Value: req.Mail},
		{Name: "MESSAGE", Value: req.Message},
		{Name: "submit", Value: submitLabel},
	}

	for _, f := range req.Confirm {
		if isStandardField(f.Name) {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

func isStandardField(name string) bool {
	for _, f := range standardFields {
		if f == name {
			return true
		}
	}
	return false
}

// encodePostForm encodes fields as a form body in the forum's legacy encoding.
func encodePostForm(fields []FormField) []byte {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(string(transport.EncodeForm(f.Name))))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(string(transport.EncodeForm(f.Value))))
	}
	return []byte(b.String())
}

func interpretPostResponse(body string) *PostResult {
	result := &PostResult{Outcome: PostRejected}
	if m := postMarker.FindStringSubmatch(body); m != nil {
		result.Marker = m[1]
	}

	switch result.Marker {
	case "true":
		result.Outcome = PostAccepted
	case "cookie":
		result.Outcome = PostNeedsConfirmation
		result.Fields = extraHiddenFields(body)
	default:
		result.Body = body
	}
	return result
}

// extraHiddenFields returns the hidden inputs of a confirmation page that aren't
// standard submission fields, in document order.
func extraHiddenFields(page string) []FormField {
	var fields []FormField
	tokenizer := html.NewTokenizer(strings.NewReader(page))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return fields
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "input" {
				continue
			}

			var inputType, name, value string
			for _, attr := range token.Attr {
				switch strings.ToLower(attr.Key) {
				case "type":
					inputType = strings.ToLower(attr.Val)
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if inputType == "hidden" && name != "" && !isStandardField(name) {
				fields = append(fields, FormField{Name: name, Value: value})
			}
		}
	}
}

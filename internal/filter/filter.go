// Package filter decides which messages of a thread to hide. It never changes
// stored messages; it returns a view over them.
package filter

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/vdavid/bbs2ch/internal/models"
)

// Fields a rule can match on.
const (
	FieldName    = "name"
	FieldMail    = "mail"
	FieldID      = "id"
	FieldMessage = "message"
)

var (
	posterID  = regexp.MustCompile(`ID:([^\s<]+)`)
	lineBreak = regexp.MustCompile(`(?i)\s*<br\s*/?>\s*`)
	validate  = validator.New(validator.WithRequiredStructEnabled())
	strict    = bluemonday.StrictPolicy()
)

// Result is a message with the filter's verdict.
type Result struct {
	Message  models.Message `json:"message"`
	Redacted bool           `json:"redacted"`
	Reason   string         `json:"reason,omitempty"`
}

type rule struct {
	models.FilterRule
	pattern *regexp.Regexp
}

func (r *rule) appliesTo(boardURL, dat string) bool {
	if r.BoardURL != "" && r.BoardURL != boardURL {
		return false
	}
	return r.Dat == "" || r.Dat == dat
}

func (r *rule) matches(m models.Message) bool {
	switch r.Field {
	case FieldName:
		return r.pattern.MatchString(m.Name)
	case FieldMail:
		return r.pattern.MatchString(m.Mail)
	case FieldID:
		id := PosterID(m.DateID)
		return id != "" && r.pattern.MatchString(id)
	case FieldMessage:
		return r.pattern.MatchString(PlainText(m.Body))
	}
	return false
}

// Filter applies a set of NG rules.
type Filter struct {
	rules []rule
}

// ValidateRule checks a rule's field and pattern.
func ValidateRule(r models.FilterRule) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid filter rule: %w", err)
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("invalid filter pattern %q: %w", r.Pattern, err)
	}
	return nil
}

// New compiles rules into a Filter.
func New(rules []models.FilterRule) (*Filter, error) {
	f := &Filter{rules: make([]rule, 0, len(rules))}
	for _, r := range rules {
		if err := ValidateRule(r); err != nil {
			return nil, err
		}
		f.rules = append(f.rules, rule{FilterRule: r, pattern: regexp.MustCompile(r.Pattern)})
	}
	return f, nil
}

// Apply returns one Result per message, in order. A message is redacted by the first
// rule that matches it. A matching rule with ChainID set also redacts every other
// message posted under the same poster ID.
func (f *Filter) Apply(boardURL, dat string, messages []models.Message) []Result {
	results := make([]Result, len(messages))
	chained := make(map[string]string)

	for i, m := range messages {
		results[i].Message = m
		for _, r := range f.rules {
			if !r.appliesTo(boardURL, dat) || !r.matches(m) {
				continue
			}
			results[i].Redacted = true
			results[i].Reason = r.Reason
			if r.ChainID {
				if id := PosterID(m.DateID); id != "" {
					if _, seen := chained[id]; !seen {
						chained[id] = r.Reason
					}
				}
			}
			break
		}
	}

	if len(chained) == 0 {
		return results
	}

	for i := range results {
		if results[i].Redacted {
			continue
		}
		if reason, ok := chained[PosterID(results[i].Message.DateID)]; ok {
			results[i].Redacted = true
			results[i].Reason = "chain: " + reason
		}
	}
	return results
}

// PosterID extracts the poster identifier from a date/ID field, or "" if it has none.
// IDs of "???" and "???0" are shared by many posters and count as none.
func PosterID(dateID string) string {
	m := posterID.FindStringSubmatch(dateID)
	if m == nil || strings.HasPrefix(m[1], "???") {
		return ""
	}
	return m[1]
}

// PlainText converts a message body to text: line breaks become newlines and other
// markup is dropped.
func PlainText(body string) string {
	text := lineBreak.ReplaceAllString(body, "\n")
	text = strict.Sanitize(text)
	return html.UnescapeString(text)
}

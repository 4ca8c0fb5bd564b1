package decode

import (
	"iter"
	"strings"

	"github.com/vdavid/bbs2ch/internal/models"
)

// Delimiter separates the fields of a dat line.
const Delimiter = "<>"

// UnparsedPrefix starts the body of a record built from a line that could not be split.
const UnparsedPrefix = "can not understand this line:<br>"

// Dat parses a thread log. Each non-blank line yields one message; lines with an
// unexpected field count yield a synthetic message named name whose body
// carries the line with every delimiter escaped. Numbers are left at zero.
func Dat(body, name string) iter.Seq[models.Message] {
	return func(yield func(models.Message) bool) {
		for line := range strings.Lines(body) {
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				continue
			}
			if !yield(ParseLine(line, name)) {
				return
			}
		}
	}
}

// ParseLine parses a single dat line.
//
// 4 fields: name, mail, date_id, message.
// 5 fields: the same plus the thread title (set on the first line only).
// 6 fields: the same plus a deletion marker before the title.
func ParseLine(line, name string) models.Message {
	fields := strings.Split(line, Delimiter)
	switch len(fields) {
	case 4, 5, 6:
		return models.Message{
			Name:   fields[0],
			Mail:   fields[1],
			DateID: fields[2],
			Body:   fields[3],
		}
	default:
		return models.Message{
			Name: name,
			Body: UnparsedPrefix + strings.ReplaceAll(line, Delimiter, "&lt;&gt;"),
		}
	}
}

// Title returns the thread title carried by the first 5- or 6-field line, if any.
func Title(body string) string {
	for line := range strings.Lines(body) {
		fields := strings.Split(strings.TrimRight(line, "\r\n"), Delimiter)
		if (len(fields) == 5 || len(fields) == 6) && fields[len(fields)-1] != "" {
			return fields[len(fields)-1]
		}
	}
	return ""
}

// EncodeLine writes a message as a legacy 4-field dat line without a line terminator.
func EncodeLine(m models.Message) string {
	return strings.Join([]string{m.Name, m.Mail, m.DateID, m.Body}, Delimiter)
}

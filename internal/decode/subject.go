package decode

import (
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/vdavid/bbs2ch/internal/models"
)

var subjectLine = regexp.MustCompile(`^(\d+)\.dat<>\s*(.+)\s\((\d+)\)\s*$`)

// Subject parses a board's subject.txt. Lines that don't match are skipped.
func Subject(body string) iter.Seq[models.ThreadEntry] {
	return func(yield func(models.ThreadEntry) bool) {
		for line := range strings.Lines(body) {
			m := subjectLine.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
			if m == nil {
				continue
			}
			total, err := strconv.Atoi(m[3])
			if err != nil {
				continue
			}
			entry := models.ThreadEntry{Dat: m[1], Title: strings.TrimSpace(m[2]), Total: total}
			if !yield(entry) {
				return
			}
		}
	}
}

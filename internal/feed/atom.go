// Package feed renders a thread's stored messages as an Atom feed.
package feed

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/feeds"
	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/filter"
	"github.com/vdavid/bbs2ch/internal/models"
)

// postedAt matches the date part of a date/ID field, with two- or four-digit years.
var postedAt = regexp.MustCompile(`(\d{2,4})/(\d{2})/(\d{2})\D*?(\d{2}):(\d{2})(?::(\d{2}))?`)

var jst = time.FixedZone("JST", 9*60*60)

// Atom renders the visible messages of a thread, newest first. Redacted messages are left out.
func Atom(info *models.ThreadInfo, results []filter.Result) (string, error) {
	link := bbs.ReadURL(info.BoardURL, info.Dat)

	f := &feeds.Feed{
		Title:       info.Title,
		Link:        &feeds.Link{Href: link},
		Description: info.BoardTitle,
		Id:          link,
	}
	if info.LastAcquired != nil {
		f.Updated = *info.LastAcquired
	}

	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if r.Redacted {
			continue
		}

		m := r.Message
		item := &feeds.Item{
			Title:   fmt.Sprintf("%d: %s", m.Number, m.Name),
			Link:    &feeds.Link{Href: link + strconv.Itoa(m.Number)},
			Id:      link + strconv.Itoa(m.Number),
			Author:  &feeds.Author{Name: m.Name, Email: m.Mail},
			Content: filter.PlainText(m.Body),
			Created: PostedAt(m.DateID),
		}
		if f.Updated.Before(item.Created) {
			f.Updated = item.Created
		}
		f.Items = append(f.Items, item)
	}

	atom, err := f.ToAtom()
	if err != nil {
		return "", fmt.Errorf("failed to render feed: %w", err)
	}
	return atom, nil
}

// PostedAt returns the time in a date/ID field, read as Japan time. It returns the
// zero time if the field has no date.
func PostedAt(dateID string) time.Time {
	m := postedAt.FindStringSubmatch(dateID)
	if m == nil {
		return time.Time{}
	}

	year, _ := strconv.Atoi(m[1])
	if len(m[1]) == 2 {
		year += 2000
	}
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second, _ := strconv.Atoi(m[6])

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, jst)
}

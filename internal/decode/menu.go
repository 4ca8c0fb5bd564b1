// Package decode parses the three 2ch text formats: the board directory
// (bbsmenu.html), a board's thread index (subject.txt) and a thread log (.dat).
// None of the parsers fail: bad lines are skipped or turned into records.
package decode

import (
	"iter"
	"regexp"
	"strings"

	"github.com/vdavid/bbs2ch/internal/models"
)

var (
	categoryHeading = regexp.MustCompile(`(?i)^<BR><BR><B>([^<]+)</B><BR>`)
	categoryBold    = regexp.MustCompile(`(?i)<b>([^<]+)</b>`)
	boardLink       = regexp.MustCompile(`(?i)^<A HREF=(https?://[^/\s>]+/[^/\s>]+/)>([^<]+)<`)
)

// MenuState is the fold state of the menu scan: the category currently in effect.
type MenuState struct {
	Category string
}

// NoCategory is the state before the first category heading.
var NoCategory = MenuState{}

// StepMenu advances the menu fold by one line. It returns the next state and,
// when the line is a board link under a known category, the parsed entry.
func StepMenu(state MenuState, line string) (MenuState, models.BoardEntry, bool) {
	if m := categoryHeading.FindStringSubmatch(line); m != nil {
		state = MenuState{Category: m[1]}
	} else if m := categoryBold.FindStringSubmatch(line); m != nil {
		state = MenuState{Category: m[1]}
	}

	if state.Category == "" {
		return state, models.BoardEntry{}, false
	}

	m := boardLink.FindStringSubmatch(line)
	if m == nil {
		return state, models.BoardEntry{}, false
	}

	return state, models.BoardEntry{URL: m[1], Category: state.Category, Title: m[2]}, true
}

// Menu parses a board directory. Board links seen before any category heading are dropped.
func Menu(body string) iter.Seq[models.BoardEntry] {
	return func(yield func(models.BoardEntry) bool) {
		state := NoCategory
		for line := range strings.Lines(body) {
			var entry models.BoardEntry
			var ok bool
			state, entry, ok = StepMenu(state, strings.TrimRight(line, "\r\n"))
			if ok && !yield(entry) {
				return
			}
		}
	}
}

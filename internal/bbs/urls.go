package bbs

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// postPath is where posts are submitted and the path session cookies are scoped to.
	postPath = "/test/bbs.cgi"
	readPath = "/test/read.cgi/"
)

// movedBoard finds the new location on the page an old board URL serves after a move.
var movedBoard = regexp.MustCompile(`window\.location\.href="(https?://[^"/]+/[^"/]+/)"`)

// boardLocation is a board URL split into what requests need.
type boardLocation struct {
	Host string
	// Path is the board directory, with leading and trailing slashes.
	Path string
	// Name is the board directory without slashes.
	Name string
}

func parseBoardURL(boardURL string) (boardLocation, error) {
	u, err := url.Parse(boardURL)
	if err != nil {
		return boardLocation{}, fmt.Errorf("failed to parse board URL %q: %w", boardURL, err)
	}
	if u.Host == "" {
		return boardLocation{}, fmt.Errorf("board URL %q has no host", boardURL)
	}

	name := strings.Trim(u.Path, "/")
	if name == "" {
		return boardLocation{}, fmt.Errorf("board URL %q has no board directory", boardURL)
	}

	return boardLocation{Host: u.Host, Path: "/" + name + "/", Name: name}, nil
}

func (b boardLocation) subjectPath() string {
	return b.Path + "subject.txt"
}

func (b boardLocation) datPath(dat string) string {
	return b.Path + "dat/" + dat + ".dat"
}

// ReadURL returns the browser URL of a thread. Requests for the thread use it as Referer.
func ReadURL(boardURL, dat string) string {
	loc, err := parseBoardURL(boardURL)
	if err != nil {
		return ""
	}
	return loc.readURL(dat)
}

func (b boardLocation) readURL(dat string) string {
	return "http://" + b.Host + readPath + b.Name + "/" + dat + "/"
}

// splitURL splits an absolute URL into host and request path.
func splitURL(raw string) (host, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("URL %q has no host", raw)
	}

	path = u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return u.Host, path, nil
}

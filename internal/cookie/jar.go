// Package cookie keeps the session cookies a forum hands out on post submission
// and writes the persistent ones to a file between runs.
package cookie

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vdavid/bbs2ch/internal/crypto"
)

// ErrCorruptJar is returned when the cookie file can't be read back.
var ErrCorruptJar = errors.New("cookie file is corrupt")

type entry struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Domain  string    `json:"domain"`
	Path    string    `json:"path"`
	Expires time.Time `json:"expires"`
	Secure  bool      `json:"secure,omitempty"`
}

func (e *entry) persistent() bool {
	return !e.Expires.IsZero()
}

func (e *entry) expired(now time.Time) bool {
	return e.persistent() && !e.Expires.After(now)
}

func (e *entry) matches(host, path string) bool {
	host = stripPort(host)
	domainOK := host == e.Domain || strings.HasSuffix(host, "."+e.Domain)
	return domainOK && strings.HasPrefix(path, e.Path)
}

// Jar is a cookie store keyed by (name, domain, path). It is safe for concurrent use.
type Jar struct {
	mu        sync.Mutex
	path      string
	encryptor *crypto.Encryptor
	entries   []*entry
	now       func() time.Time
}

// Open loads the jar from path. A missing file gives an empty jar. When
// encryptor is non-nil the file is sealed with it.
func Open(path string, encryptor *crypto.Encryptor) (*Jar, error) {
	j := &Jar{path: path, encryptor: encryptor, now: time.Now}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	if encryptor != nil {
		data, err = encryptor.Open(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptJar, err)
		}
	}

	if err := json.Unmarshal(data, &j.entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptJar, err)
	}
	j.prune()

	return j, nil
}

// CookieHeader returns the Cookie header value for a request to host and path.
// Later cookies with the same name win.
func (j *Jar) CookieHeader(host, path string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.prune()

	var order []string
	values := make(map[string]string)
	for _, e := range j.entries {
		if !e.matches(host, path) {
			continue
		}
		if _, seen := values[e.Name]; !seen {
			order = append(order, e.Name)
		}
		values[e.Name] = e.Value
	}

	pairs := make([]string, 0, len(order))
	for _, name := range order {
		pairs = append(pairs, name+"="+values[name])
	}
	return strings.Join(pairs, "; ")
}

// ApplySetCookie merges one Set-Cookie header value received from host for a
// request to path. Domain and path default to the request's. Malformed values
// are ignored.
func (j *Jar) ApplySetCookie(raw, host, path string) {
	c, err := http.ParseSetCookie(raw)
	if err != nil {
		log.Printf("Warning: ignoring malformed Set-Cookie from %s: %v", host, err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	e := &entry{
		Name:   c.Name,
		Value:  c.Value,
		Domain: strings.TrimPrefix(c.Domain, "."),
		Path:   c.Path,
		Secure: c.Secure,
	}
	if e.Domain == "" {
		e.Domain = stripPort(host)
	}
	if e.Path == "" {
		e.Path = path
	}
	switch {
	case c.MaxAge < 0:
		e.Expires = now.Add(-time.Second)
	case c.MaxAge > 0:
		e.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	case !c.Expires.IsZero():
		e.Expires = c.Expires
	}

	replaced := false
	for i, old := range j.entries {
		if old.Name == e.Name && old.Domain == e.Domain && old.Path == e.Path {
			j.entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		j.entries = append(j.entries, e)
	}

	j.prune()
}

// Persist writes the cookies that carry an expiry to the jar file. Session
// cookies live only in memory.
func (j *Jar) Persist() error {
	j.mu.Lock()
	j.prune()
	keep := make([]*entry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.persistent() {
			keep = append(keep, e)
		}
	}
	j.mu.Unlock()

	data, err := json.MarshalIndent(keep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if j.encryptor != nil {
		data, err = j.encryptor.Seal(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt cookies: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".cookie-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary cookie file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write cookie file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set cookie file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close cookie file: %w", err)
	}

	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}

// Len returns the number of live cookies, session cookies included.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prune()
	return len(j.entries)
}

// prune drops expired cookies. The caller holds mu, except during Open.
func (j *Jar) prune() {
	now := j.now()
	kept := j.entries[:0]
	for _, e := range j.entries {
		if !e.expired(now) {
			kept = append(kept, e)
		}
	}
	clear(j.entries[len(kept):])
	j.entries = kept
}

func stripPort(host string) string {
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return host
}

// Package bbs keeps a local copy of 2ch-style boards and threads in step with the
// forum and submits posts to it.
//
// Every operation is a blocking call started by the caller. Nothing here polls.
package bbs

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// DefaultName is the display name given to records built from unreadable dat lines.
const DefaultName = "名無しさん"

// Options configures a Service.
type Options struct {
	// MenuURL is the board directory page.
	MenuURL string
	// DefaultName overrides DefaultName when set.
	DefaultName string
	// Notifier, when set, is told about every change to stored data.
	Notifier Notifier
}

// Service synchronizes boards and threads and submits posts.
type Service struct {
	store       Store
	transport   Transport
	cookies     CookieStore
	menuURL     string
	defaultName string
	notifier    Notifier
	guard       *guard
	menuGroup   singleflight.Group
	validate    *validator.Validate
	now         func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, transport Transport, cookies CookieStore, opts Options) *Service {
	name := opts.DefaultName
	if name == "" {
		name = DefaultName
	}

	return &Service{
		store:       store,
		transport:   transport,
		cookies:     cookies,
		menuURL:     opts.MenuURL,
		defaultName: name,
		notifier:    opts.Notifier,
		guard:       newGuard(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         time.Now,
	}
}

func (s *Service) notify(event Event) {
	if s.notifier != nil {
		s.notifier.Notify(event)
	}
}

// IsSyncing reports whether a synchronization of the thread is in flight.
func (s *Service) IsSyncing(threadID string) bool {
	return s.guard.busy(threadKey(threadID))
}

// Package app builds the forum client stack from configuration.
package app

import (
	"fmt"

	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/config"
	"github.com/vdavid/bbs2ch/internal/cookie"
	"github.com/vdavid/bbs2ch/internal/crypto"
	"github.com/vdavid/bbs2ch/internal/transport"
)

// NewService creates the transport and cookie jar described by cfg and a bbs
// service on top of store. The notifier may be nil.
func NewService(cfg *config.Config, store bbs.Store, notifier bbs.Notifier) (*bbs.Service, *cookie.Jar, error) {
	var encryptor *crypto.Encryptor
	if cfg.CookieKeyBase64 != "" {
		var err error
		encryptor, err = crypto.NewEncryptor(cfg.CookieKeyBase64)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create cookie encryptor: %w", err)
		}
	}

	jar, err := cookie.Open(cfg.CookieFile, encryptor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cookie jar: %w", err)
	}

	client := transport.NewClient(transport.Options{
		UserAgent:      cfg.UserAgent,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxConcurrent:  int64(cfg.MaxConcurrentRequests),
	})

	service := bbs.NewService(store, client, jar, bbs.Options{
		MenuURL:     cfg.MenuURL,
		DefaultName: cfg.DefaultName,
		Notifier:    notifier,
	})
	return service, jar, nil
}

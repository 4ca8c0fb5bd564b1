package bbs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vdavid/bbs2ch/internal/cookie"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/testutil"
	"github.com/vdavid/bbs2ch/internal/testutil/memstore"
	"github.com/vdavid/bbs2ch/internal/transport"
)

var _ Store = (*memstore.Store)(nil)

const testBoard = "prog"

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

type testEnv struct {
	service  *Service
	store    *memstore.Store
	fake     *testutil.FakeBBS
	jar      *cookie.Jar
	jarFile  string
	notifier *recordingNotifier
	boardID  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := testutil.NewFakeBBS(t)
	store := memstore.New()
	jarFile := filepath.Join(t.TempDir(), "cookie.json")
	jar, err := cookie.Open(jarFile, nil)
	require.NoError(t, err)

	client := transport.NewClient(transport.Options{
		UserAgent:      "Monazilla/1.00 (bbs2ch-test)",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
	})

	notifier := &recordingNotifier{}
	service := NewService(store, client, jar, Options{
		MenuURL:  fake.MenuURL(),
		Notifier: notifier,
	})
	service.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	return &testEnv{
		service:  service,
		store:    store,
		fake:     fake,
		jar:      jar,
		jarFile:  jarFile,
		notifier: notifier,
		boardID:  store.AddBoard(fake.BoardURL(testBoard), "PC等", "プログラム"),
	}
}

func (e *testEnv) jarPath() string {
	return e.jarFile
}

// addThread stores a listed thread on the test board.
func (e *testEnv) addThread(t *testing.T, th models.Thread, messages []models.Message) string {
	t.Helper()

	th.BoardID = e.boardID
	if th.Rank == 0 {
		th.Rank = 1
	}
	return e.store.AddThread(th, messages)
}

func (e *testEnv) messages(t *testing.T, threadID string) []models.Message {
	t.Helper()

	messages, err := e.store.GetMessages(t.Context(), threadID, 0)
	require.NoError(t, err)
	return messages
}

func datLine(name, body string) string {
	return name + "<>sage<>2006/01/02 15:04:05 ID:abcd1234<>" + body + "<>\n"
}

const (
	testTimeout = 5 * time.Second
	testTick    = 10 * time.Millisecond
)

// faultyStore fails selected writes of an in-memory store.
type faultyStore struct {
	*memstore.Store
	fieldsErr error
	mergeErr  error
}

func (s *faultyStore) SetThreadFields(ctx context.Context, threadID string, fields models.ThreadFields) error {
	if s.fieldsErr != nil {
		return s.fieldsErr
	}
	return s.Store.SetThreadFields(ctx, threadID, fields)
}

func (s *faultyStore) ReplaceMessages(ctx context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	if s.mergeErr != nil {
		return s.mergeErr
	}
	return s.Store.ReplaceMessages(ctx, threadID, cursor, messages, fields)
}

func (s *faultyStore) AppendMessages(ctx context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	if s.mergeErr != nil {
		return s.mergeErr
	}
	return s.Store.AppendMessages(ctx, threadID, cursor, messages, fields)
}

// withFaultyStore replaces the service with one whose store is wrapped by a faultyStore.
func (e *testEnv) withFaultyStore() *faultyStore {
	store := &faultyStore{Store: e.store}
	now := e.service.now
	e.service = NewService(store, e.service.transport, e.jar, Options{MenuURL: e.fake.MenuURL(), Notifier: e.notifier})
	e.service.now = now
	return store
}

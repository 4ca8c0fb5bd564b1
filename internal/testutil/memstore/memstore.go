// Package memstore is an in-memory Store with the same semantics as the PostgreSQL one,
// for tests that exercise the service and handlers without a database.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vdavid/bbs2ch/internal/db"
	"github.com/vdavid/bbs2ch/internal/models"
)

type thread struct {
	models.Thread
	messages []models.Message
}

// Store keeps boards, threads, messages and filter rules in maps.
type Store struct {
	mu      sync.Mutex
	boards  []*models.Board
	menus   map[string]models.MenuState
	threads map[string]*thread
	rules   []models.FilterRule
	writes  int
	// Err, when set, is returned by every call.
	Err error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		menus:   make(map[string]models.MenuState),
		threads: make(map[string]*thread),
	}
}

// Writes returns how many mutating calls succeeded.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

// AddBoard stores a board directly and returns its ID.
func (s *Store) AddBoard(url, category, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertBoard(models.BoardEntry{URL: url, Category: category, Title: title})
}

// AddThread stores a thread directly, with rank and cursor as given, and returns its ID.
func (s *Store) AddThread(t models.Thread, messages []models.Message) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.threads[t.ID] = &thread{Thread: t, messages: slices.Clone(messages)}
	return t.ID
}

func (s *Store) insertBoard(entry models.BoardEntry) string {
	board := &models.Board{ID: uuid.NewString(), URL: entry.URL, Category: entry.Category, Title: entry.Title}
	s.boards = append(s.boards, board)
	return board.ID
}

func (s *Store) findBoard(boardID string) *models.Board {
	for _, b := range s.boards {
		if b.ID == boardID {
			return b
		}
	}
	return nil
}

func (s *Store) GetBoard(_ context.Context, boardID string) (*models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	b := s.findBoard(boardID)
	if b == nil {
		return nil, db.ErrBoardNotFound
	}
	board := *b
	return &board, nil
}

func (s *Store) GetBoardByURL(_ context.Context, url string) (*models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	for _, b := range s.boards {
		if b.URL == url {
			board := *b
			return &board, nil
		}
	}
	return nil, db.ErrBoardNotFound
}

func (s *Store) GetBoards(_ context.Context) ([]models.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	boards := make([]models.Board, 0, len(s.boards))
	for _, b := range s.boards {
		boards = append(boards, *b)
	}
	return boards, nil
}

func (s *Store) UpsertBoards(_ context.Context, entries []models.BoardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	matched := make(map[string]bool)
	for _, entry := range entries {
		var target *models.Board
		for _, b := range s.boards {
			if b.URL == entry.URL && !matched[b.ID] {
				target = b
				break
			}
		}
		if target != nil {
			target.Category, target.Title = entry.Category, entry.Title
			matched[target.ID] = true
			continue
		}

		for _, b := range s.boards {
			if b.Category == entry.Category && b.Title == entry.Title && !matched[b.ID] {
				target = b
				break
			}
		}
		if target != nil {
			target.URL = entry.URL
			matched[target.ID] = true
			continue
		}

		matched[s.insertBoard(entry)] = true
	}
	s.writes++
	return nil
}

func (s *Store) SetBoardFields(_ context.Context, boardID string, fields models.BoardFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	b := s.findBoard(boardID)
	if b == nil {
		return db.ErrBoardNotFound
	}
	if fields.URL != nil {
		b.URL = *fields.URL
	}
	if fields.IsOpen != nil {
		b.IsOpen = *fields.IsOpen
	}
	if fields.Favorite != nil {
		b.Favorite = *fields.Favorite
	}
	if fields.LastModified != nil {
		b.LastModified = *fields.LastModified
	}
	if fields.LastAcquired != nil {
		t := *fields.LastAcquired
		b.LastAcquired = &t
	}
	s.writes++
	return nil
}

func (s *Store) GetMenuState(_ context.Context, url string) (*models.MenuState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	state, ok := s.menus[url]
	if !ok {
		state = models.MenuState{URL: url}
	}
	return &state, nil
}

func (s *Store) SetMenuState(_ context.Context, state models.MenuState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	if state.LastAcquired == nil {
		now := time.Now()
		state.LastAcquired = &now
	}
	s.menus[state.URL] = state
	s.writes++
	return nil
}

func (s *Store) GetThreadInfo(_ context.Context, threadID string) (*models.ThreadInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	t, ok := s.threads[threadID]
	if !ok {
		return nil, db.ErrThreadNotFound
	}
	info := &models.ThreadInfo{Thread: t.Thread}
	if b := s.findBoard(t.BoardID); b != nil {
		info.BoardURL = b.URL
		info.BoardTitle = b.Title
	}
	return info, nil
}

func (s *Store) GetThreadByDat(_ context.Context, boardID, dat string) (*models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	for _, t := range s.threads {
		if t.BoardID == boardID && t.Dat == dat {
			th := t.Thread
			return &th, nil
		}
	}
	return nil, db.ErrThreadNotFound
}

func (s *Store) selectThreads(keep func(*thread) bool) []models.Thread {
	var selected []*thread
	for _, t := range s.threads {
		if keep(t) {
			selected = append(selected, t)
		}
	}
	slices.SortFunc(selected, func(a, b *thread) int {
		return cmp.Or(cmp.Compare(a.Rank, b.Rank), cmp.Compare(a.Dat, b.Dat))
	})

	threads := make([]models.Thread, 0, len(selected))
	for _, t := range selected {
		threads = append(threads, t.Thread)
	}
	return threads
}

func (s *Store) GetThreads(_ context.Context, boardID string) ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return s.selectThreads(func(t *thread) bool {
		return t.BoardID == boardID && (!t.IsMissing() || t.IsOpen || t.Favorite)
	}), nil
}

func (s *Store) GetThreadsFull(_ context.Context, boardID string) ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return s.selectThreads(func(t *thread) bool { return t.BoardID == boardID }), nil
}

func (s *Store) GetFollowedThreads(_ context.Context) ([]models.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return s.selectThreads(func(t *thread) bool { return t.IsOpen || t.Favorite }), nil
}

func (s *Store) UpsertThreads(_ context.Context, boardID string, entries []models.ThreadEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	byDat := make(map[string]*thread)
	for _, t := range s.threads {
		if t.BoardID == boardID {
			t.Rank = models.MissingRank
			byDat[t.Dat] = t
		}
	}

	for i, entry := range entries {
		t, ok := byDat[entry.Dat]
		if !ok {
			t = &thread{Thread: models.Thread{ID: uuid.NewString(), BoardID: boardID, Dat: entry.Dat}}
			s.threads[t.ID] = t
			byDat[entry.Dat] = t
		}
		t.Title = entry.Title
		t.Rank = i + 1
		t.Total = entry.Total
	}
	s.writes++
	return nil
}

func (s *Store) SetThreadFields(_ context.Context, threadID string, fields models.ThreadFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	t, ok := s.threads[threadID]
	if !ok {
		return db.ErrThreadNotFound
	}
	applyThreadFields(&t.Thread, fields)
	s.writes++
	return nil
}

// applyThreadFields sets the non-nil fields on t.
func applyThreadFields(t *models.Thread, fields models.ThreadFields) {
	if fields.Title != nil {
		t.Title = *fields.Title
	}
	if fields.Rank != nil {
		t.Rank = *fields.Rank
	}
	if fields.IsOpen != nil {
		t.IsOpen = *fields.IsOpen
	}
	if fields.Favorite != nil {
		t.Favorite = *fields.Favorite
	}
	if fields.LastRead != nil {
		t.LastRead = *fields.LastRead
	}
	if fields.ScrollPosition != nil {
		t.ScrollPosition = *fields.ScrollPosition
	}
	if fields.LastAcquired != nil {
		at := *fields.LastAcquired
		t.LastAcquired = &at
	}
}

func (s *Store) RemoveOldThreads(_ context.Context, boardID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return 0, s.Err
	}
	var removed int64
	for id, t := range s.threads {
		if t.BoardID == boardID && !t.IsOpen && !t.Favorite && t.IsMissing() && t.Acquired == 0 {
			delete(s.threads, id)
			removed++
		}
	}
	s.writes++
	return removed, nil
}

func (s *Store) ReplaceMessages(_ context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	t, ok := s.threads[threadID]
	if !ok {
		return db.ErrThreadNotFound
	}
	t.messages = slices.Clone(messages)
	t.Total = len(messages)
	t.Acquired = len(messages)
	t.Cursor = cursor
	applyThreadFields(&t.Thread, fields)
	s.writes++
	return nil
}

func (s *Store) AppendMessages(_ context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	t, ok := s.threads[threadID]
	if !ok {
		return db.ErrThreadNotFound
	}
	t.messages = append(t.messages, messages...)
	for _, m := range messages {
		t.Acquired = max(t.Acquired, m.Number)
	}
	t.Total = max(t.Total, t.Acquired)
	t.Cursor = cursor
	applyThreadFields(&t.Thread, fields)
	s.writes++
	return nil
}

func (s *Store) GetMessages(_ context.Context, threadID string, number int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	t, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	var messages []models.Message
	for _, m := range t.messages {
		if number <= 0 || m.Number == number {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

func (s *Store) SaveFilterRule(_ context.Context, rule *models.FilterRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	rule.ID = uuid.NewString()
	rule.CreatedAt = time.Now()
	s.rules = append(s.rules, *rule)
	s.writes++
	return nil
}

func (s *Store) ListFilterRules(_ context.Context) ([]models.FilterRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return slices.Clone(s.rules), nil
}

func (s *Store) DeleteFilterRule(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.rules = slices.DeleteFunc(s.rules, func(r models.FilterRule) bool { return r.ID == ruleID })
	s.writes++
	return nil
}

package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/bbs2ch/internal/models"
)

// Store exposes the package functions bound to one pool, so that the bbs service
// and the API can be tested with in-memory implementations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store that uses the given database pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetBoard(ctx context.Context, boardID string) (*models.Board, error) {
	return GetBoard(ctx, s.pool, boardID)
}

func (s *Store) GetBoardByURL(ctx context.Context, url string) (*models.Board, error) {
	return GetBoardByURL(ctx, s.pool, url)
}

func (s *Store) GetBoards(ctx context.Context) ([]models.Board, error) {
	return GetBoards(ctx, s.pool)
}

func (s *Store) UpsertBoards(ctx context.Context, entries []models.BoardEntry) error {
	return UpsertBoards(ctx, s.pool, entries)
}

func (s *Store) SetBoardFields(ctx context.Context, boardID string, fields models.BoardFields) error {
	return SetBoardFields(ctx, s.pool, boardID, fields)
}

func (s *Store) GetMenuState(ctx context.Context, url string) (*models.MenuState, error) {
	return GetMenuState(ctx, s.pool, url)
}

func (s *Store) SetMenuState(ctx context.Context, state models.MenuState) error {
	return SetMenuState(ctx, s.pool, state)
}

func (s *Store) GetThreadInfo(ctx context.Context, threadID string) (*models.ThreadInfo, error) {
	return GetThreadInfo(ctx, s.pool, threadID)
}

func (s *Store) GetThreadByDat(ctx context.Context, boardID, dat string) (*models.Thread, error) {
	return GetThreadByDat(ctx, s.pool, boardID, dat)
}

func (s *Store) GetThreads(ctx context.Context, boardID string) ([]models.Thread, error) {
	return GetThreads(ctx, s.pool, boardID)
}

func (s *Store) GetThreadsFull(ctx context.Context, boardID string) ([]models.Thread, error) {
	return GetThreadsFull(ctx, s.pool, boardID)
}

func (s *Store) GetFollowedThreads(ctx context.Context) ([]models.Thread, error) {
	return GetFollowedThreads(ctx, s.pool)
}

func (s *Store) UpsertThreads(ctx context.Context, boardID string, entries []models.ThreadEntry) error {
	return UpsertThreads(ctx, s.pool, boardID, entries)
}

func (s *Store) SetThreadFields(ctx context.Context, threadID string, fields models.ThreadFields) error {
	return SetThreadFields(ctx, s.pool, threadID, fields)
}

func (s *Store) RemoveOldThreads(ctx context.Context, boardID string) (int64, error) {
	return RemoveOldThreads(ctx, s.pool, boardID)
}

func (s *Store) ReplaceMessages(ctx context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	return ReplaceMessages(ctx, s.pool, threadID, cursor, messages, fields)
}

func (s *Store) AppendMessages(ctx context.Context, threadID string, cursor models.Cursor, messages []models.Message, fields models.ThreadFields) error {
	return AppendMessages(ctx, s.pool, threadID, cursor, messages, fields)
}

func (s *Store) GetMessages(ctx context.Context, threadID string, number int) ([]models.Message, error) {
	return GetMessages(ctx, s.pool, threadID, number)
}

func (s *Store) SaveFilterRule(ctx context.Context, rule *models.FilterRule) error {
	return SaveFilterRule(ctx, s.pool, rule)
}

func (s *Store) ListFilterRules(ctx context.Context) ([]models.FilterRule, error) {
	return ListFilterRules(ctx, s.pool)
}

func (s *Store) DeleteFilterRule(ctx context.Context, ruleID string) error {
	return DeleteFilterRule(ctx, s.pool, ruleID)
}

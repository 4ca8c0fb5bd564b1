package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/testutil"
)

func boardsByURL(t *testing.T, boards []models.Board) map[string]models.Board {
	t.Helper()

	result := make(map[string]models.Board, len(boards))
	for _, b := range boards {
		result[b.URL] = b
	}
	return result
}

func TestUpsertBoards(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	initial := []models.BoardEntry{
		{URL: "http://news.2ch.net/newsplus/", Category: "ニュース", Title: "ニュース速報+"},
		{URL: "http://pc.2ch.net/prog/", Category: "PC等", Title: "プログラム"},
	}
	require.NoError(t, UpsertBoards(ctx, pool, initial))

	boards, err := GetBoards(ctx, pool)
	require.NoError(t, err)
	require.Len(t, boards, 2)
	assert.Equal(t, "http://news.2ch.net/newsplus/", boards[0].URL, "directory order is kept")

	original := boardsByURL(t, boards)

	t.Run("same URL updates category and title", func(t *testing.T) {
		require.NoError(t, UpsertBoards(ctx, pool, []models.BoardEntry{
			{URL: "http://pc.2ch.net/prog/", Category: "PC", Title: "プログラム技術"},
		}))

		board, err := GetBoardByURL(ctx, pool, "http://pc.2ch.net/prog/")
		require.NoError(t, err)
		assert.Equal(t, original["http://pc.2ch.net/prog/"].ID, board.ID)
		assert.Equal(t, "PC", board.Category)
		assert.Equal(t, "プログラム技術", board.Title)
	})

	t.Run("same category and title rewrites the URL", func(t *testing.T) {
		require.NoError(t, UpsertBoards(ctx, pool, []models.BoardEntry{
			{URL: "http://news9.2ch.net/newsplus/", Category: "ニュース", Title: "ニュース速報+"},
		}))

		board, err := GetBoardByURL(ctx, pool, "http://news9.2ch.net/newsplus/")
		require.NoError(t, err)
		assert.Equal(t, original["http://news.2ch.net/newsplus/"].ID, board.ID)

		_, err = GetBoardByURL(ctx, pool, "http://news.2ch.net/newsplus/")
		assert.ErrorIs(t, err, ErrBoardNotFound)
	})

	t.Run("unknown entries are inserted and absent boards kept", func(t *testing.T) {
		require.NoError(t, UpsertBoards(ctx, pool, []models.BoardEntry{
			{URL: "http://game.2ch.net/game/", Category: "ゲーム", Title: "ゲーム"},
		}))

		boards, err := GetBoards(ctx, pool)
		require.NoError(t, err)
		assert.Len(t, boards, 3)
	})

	t.Run("empty directory is a no-op", func(t *testing.T) {
		require.NoError(t, UpsertBoards(ctx, pool, nil))
	})
}

func TestGetBoardNotFound(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name string
		id   string
	}{
		{"unknown UUID", "5b0c3c4e-7a52-4f7b-9a43-3f1b2f6f0c11"},
		{"malformed ID", "not-a-uuid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetBoard(ctx, pool, tt.id)
			assert.ErrorIs(t, err, ErrBoardNotFound)
		})
	}
}

func TestSetBoardFields(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, UpsertBoards(ctx, pool, []models.BoardEntry{
		{URL: "http://pc.2ch.net/prog/", Category: "PC等", Title: "プログラム"},
	}))
	board, err := GetBoardByURL(ctx, pool, "http://pc.2ch.net/prog/")
	require.NoError(t, err)

	favorite := true
	lastModified := "Mon, 02 Jan 2006 15:04:05 GMT"
	require.NoError(t, SetBoardFields(ctx, pool, board.ID, models.BoardFields{
		Favorite:     &favorite,
		LastModified: &lastModified,
	}))

	updated, err := GetBoard(ctx, pool, board.ID)
	require.NoError(t, err)
	assert.True(t, updated.Favorite)
	assert.False(t, updated.IsOpen, "nil fields are left unchanged")
	assert.Equal(t, lastModified, updated.LastModified)
	assert.Equal(t, board.URL, updated.URL)

	err = SetBoardFields(ctx, pool, "5b0c3c4e-7a52-4f7b-9a43-3f1b2f6f0c11", models.BoardFields{Favorite: &favorite})
	assert.ErrorIs(t, err, ErrBoardNotFound)
}

func TestMenuState(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	url := "http://menu.2ch.net/bbsmenu.html"

	state, err := GetMenuState(ctx, pool, url)
	require.NoError(t, err)
	assert.Empty(t, state.LastModified)
	assert.Nil(t, state.LastAcquired)

	require.NoError(t, SetMenuState(ctx, pool, models.MenuState{URL: url, LastModified: "token-1"}))
	require.NoError(t, SetMenuState(ctx, pool, models.MenuState{URL: url, LastModified: "token-2"}))

	state, err = GetMenuState(ctx, pool, url)
	require.NoError(t, err)
	assert.Equal(t, "token-2", state.LastModified)
	assert.NotNil(t, state.LastAcquired)
}

package bbs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/testutil"
	"github.com/vdavid/bbs2ch/internal/transport"
)

const oldToken = "Mon, 02 Jan 2006 15:00:00 GMT"

func TestSyncThreadFresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.fake.SetDat(testBoard, "100",
		"名無しさん<>sage<>2006/01/02 15:04:05 ID:abcd1234<>first<br>post<>Goについて語るスレ\n"+
			datLine("名無しさん", "second"))
	threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

	result, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, ModeFresh, result.Mode)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 2, result.NewMessages)

	require.NotNil(t, result.Thread)
	assert.Equal(t, 2, result.Thread.Acquired)
	assert.Equal(t, 2, result.Thread.Total)
	assert.Equal(t, int64(env.fake.DatLength(testBoard, "100")), result.Thread.Cursor.FetchedLength)
	assert.NotEmpty(t, result.Thread.Cursor.LastModified)
	assert.Equal(t, "Goについて語るスレ", result.Thread.Title)
	assert.NotNil(t, result.Thread.LastAcquired)

	messages := env.messages(t, threadID)
	require.Len(t, messages, 2)
	assert.Equal(t, 1, messages[0].Number)
	assert.Equal(t, "first<br>post", messages[0].Body)
	assert.Equal(t, 2, messages[1].Number)

	requests := env.fake.RequestsTo(testutil.DatPath(testBoard, "100"))
	require.Len(t, requests, 1)
	assert.Equal(t, "gzip", requests[0].Header.Get("Accept-Encoding"))
	assert.Empty(t, requests[0].Header.Get("Range"))
	assert.Empty(t, requests[0].Header.Get("If-Modified-Since"))
	assert.Equal(t, "http://"+env.fake.Host()+"/test/read.cgi/prog/100/", requests[0].Header.Get("Referer"))

	events := env.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, Event{Type: EventThreadUpdated, BoardID: env.boardID, ThreadID: threadID, NewMessages: 2}, events[0])
}

func TestSyncThreadConditional(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one")+datLine("名無しさん", "two"))
	threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

	first, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)
	require.Equal(t, StatusUpdated, first.Status)
	before := first.Thread.Cursor

	t.Run("unchanged log is not modified", func(t *testing.T) {
		result, err := env.service.SyncThread(ctx, threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusNotModified, result.Status)
		assert.Equal(t, ModeConditional, result.Mode)
		assert.Equal(t, http.StatusNotModified, result.StatusCode)
		assert.Equal(t, before, result.Thread.Cursor)
		assert.Len(t, env.messages(t, threadID), 2)
	})

	t.Run("continuation is appended", func(t *testing.T) {
		oldMessages := env.messages(t, threadID)
		env.fake.AppendDat(testBoard, "100", datLine("名無しさん", "three")+datLine("名無しさん", "four"))

		result, err := env.service.SyncThread(ctx, threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusUpdated, result.Status)
		assert.Equal(t, ModeConditional, result.Mode)
		assert.Equal(t, http.StatusPartialContent, result.StatusCode)
		assert.Equal(t, 2, result.NewMessages)
		assert.Equal(t, 4, result.Thread.Acquired)
		assert.Equal(t, int64(env.fake.DatLength(testBoard, "100")), result.Thread.Cursor.FetchedLength)
		assert.NotEqual(t, before.LastModified, result.Thread.Cursor.LastModified)

		messages := env.messages(t, threadID)
		require.Len(t, messages, 4)
		assert.Equal(t, oldMessages, messages[:2], "stored messages are untouched")
		assert.Equal(t, 3, messages[2].Number)
		assert.Equal(t, "three", messages[2].Body)
		assert.Equal(t, 4, messages[3].Number)

		requests := env.fake.RequestsTo(testutil.DatPath(testBoard, "100"))
		last := requests[len(requests)-1]
		assert.Equal(t, "bytes="+strconv.FormatInt(before.FetchedLength-1, 10)+"-", last.Header.Get("Range"))
		assert.Equal(t, before.LastModified, last.Header.Get("If-Modified-Since"))
		assert.Empty(t, last.Header.Get("Accept-Encoding"))
	})
}

func TestSyncThreadRangeNotSatisfiable(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one")+datLine("名無しさん", "two"))

	stored := []models.Message{
		{Number: 1, Body: "a"}, {Number: 2, Body: "b"}, {Number: 3, Body: "c"},
		{Number: 4, Body: "d"}, {Number: 5, Body: "e"},
	}
	threadID := env.addThread(t, models.Thread{
		Dat:      "100",
		Total:    5,
		Acquired: 5,
		Cursor:   models.Cursor{LastModified: oldToken, FetchedLength: 100000},
	}, stored)

	result, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, ModeConditional, result.Mode)
	assert.Equal(t, 2, result.Thread.Acquired)
	assert.Equal(t, 2, result.Thread.Total)
	assert.Equal(t, int64(env.fake.DatLength(testBoard, "100")), result.Thread.Cursor.FetchedLength)

	messages := env.messages(t, threadID)
	require.Len(t, messages, 2, "full replace leaves no old messages behind")
	assert.Equal(t, "one", messages[0].Body)

	requests := env.fake.RequestsTo(testutil.DatPath(testBoard, "100"))
	require.Len(t, requests, 2)
	assert.Equal(t, "bytes=99999-", requests[0].Header.Get("Range"))
	assert.Empty(t, requests[1].Header.Get("Range"))
}

func TestSyncThreadBoundaryDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	body := datLine("名無しさん", "one") + datLine("名無しさん", "two") + datLine("名無しさん", "three")
	env.fake.SetDat(testBoard, "100", body)

	// The stored copy ends inside what is now the last line.
	threadID := env.addThread(t, models.Thread{
		Dat:      "100",
		Total:    2,
		Acquired: 2,
		Cursor:   models.Cursor{LastModified: oldToken, FetchedLength: int64(env.fake.DatLength(testBoard, "100") - 10)},
	}, []models.Message{{Number: 1, Body: "old one"}, {Number: 2, Body: "old two"}})

	result, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, 3, result.NewMessages)

	messages := env.messages(t, threadID)
	require.Len(t, messages, 3)
	assert.Equal(t, "one", messages[0].Body)
	assert.Len(t, env.fake.RequestsTo(testutil.DatPath(testBoard, "100")), 2)
}

func TestSyncThreadFallbackWithoutLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.fake.Handle(testutil.DatPath(testBoard, "100"), func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		http.NotFound(w, r)
	})

	cursor := models.Cursor{LastModified: oldToken, FetchedLength: 500}
	threadID := env.addThread(t, models.Thread{Dat: "100", Acquired: 1, Total: 1, Cursor: cursor},
		[]models.Message{{Number: 1, Body: "kept"}})

	result, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusNotModified, result.Status)
	assert.Equal(t, cursor, result.Thread.Cursor)
	assert.Len(t, env.messages(t, threadID), 1)
	assert.Equal(t, 1, env.store.Writes(), "only the last acquired time is written")
}

func TestSyncThreadEmptyContinuation(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	env.fake.Handle(testutil.DatPath(testBoard, "100"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Tue, 03 Jan 2006 15:00:00 GMT")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("\n"))
	})

	cursor := models.Cursor{LastModified: oldToken, FetchedLength: 500}
	threadID := env.addThread(t, models.Thread{Dat: "100", Acquired: 1, Total: 1, Cursor: cursor}, nil)

	result, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusNotModified, result.Status)
	assert.Equal(t, cursor, result.Thread.Cursor)
}

func TestSyncThreadSkipped(t *testing.T) {
	t.Run("missing rank is not applicable", func(t *testing.T) {
		env := newTestEnv(t)
		threadID := env.addThread(t, models.Thread{
			Dat:    "100",
			Rank:   models.MissingRank,
			Cursor: models.Cursor{LastModified: oldToken, FetchedLength: 10},
		}, nil)

		result, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusNotApplicable, result.Status)
		assert.Nil(t, result.Thread)
		assert.Empty(t, env.fake.Requests())
		assert.Zero(t, env.store.Writes())
	})

	t.Run("busy thread returns at once", func(t *testing.T) {
		env := newTestEnv(t)
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

		require.True(t, env.service.guard.tryAcquire(threadKey(threadID)))
		defer env.service.guard.release(threadKey(threadID))

		result, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusBusy, result.Status)
		assert.True(t, env.service.IsSyncing(threadID))
		assert.Empty(t, env.fake.Requests())
		assert.Zero(t, env.store.Writes())
	})
}

func TestRefetchThreadIgnoresMissingRank(t *testing.T) {
	env := newTestEnv(t)

	env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one"))
	threadID := env.addThread(t, models.Thread{
		Dat:    "100",
		Rank:   models.MissingRank,
		Cursor: models.Cursor{LastModified: oldToken, FetchedLength: 10},
	}, nil)

	result, err := env.service.RefetchThread(t.Context(), threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, ModeFresh, result.Mode)
	assert.Equal(t, 1, result.Thread.Acquired)
}

func TestSyncThreadConcurrentCallsAreBusy(t *testing.T) {
	env := newTestEnv(t)
	ctx := t.Context()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	env.fake.Handle(testutil.DatPath(testBoard, "100"), func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-unblock
		_, _ = w.Write([]byte(datLine("name", "body")))
	})

	threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

	var wg sync.WaitGroup
	var first *SyncResult
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = env.service.SyncThread(ctx, threadID)
	}()

	<-entered
	second, err := env.service.SyncThread(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, StatusBusy, second.Status)

	close(unblock)
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Equal(t, StatusUpdated, first.Status)
	assert.False(t, env.service.IsSyncing(threadID))
}

func TestSyncThreadBoardMoved(t *testing.T) {
	t.Run("fresh fetch follows the move once", func(t *testing.T) {
		env := newTestEnv(t)

		env.fake.MoveBoard(testBoard, "prog2")
		env.fake.SetDat("prog2", "100", datLine("名無しさん", "moved"))
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

		result, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusUpdated, result.Status)
		assert.Equal(t, env.fake.BoardURL("prog2"), result.Thread.BoardURL)

		board, err := env.store.GetBoard(t.Context(), env.boardID)
		require.NoError(t, err)
		assert.Equal(t, env.fake.BoardURL("prog2"), board.URL)

		var paths []string
		for _, r := range env.fake.Requests() {
			paths = append(paths, r.Path)
		}
		assert.Equal(t, []string{"/prog/dat/100.dat", "/prog/", "/prog2/dat/100.dat"}, paths)
	})

	t.Run("conditional fetch retries on the new board with the same headers", func(t *testing.T) {
		env := newTestEnv(t)

		env.fake.SetDat("prog2", "100", datLine("名無しさん", "one")+datLine("名無しさん", "two"))
		cursor := models.Cursor{LastModified: oldToken, FetchedLength: int64(env.fake.DatLength("prog2", "100"))}
		env.fake.AppendDat("prog2", "100", datLine("名無しさん", "three"))
		env.fake.MoveBoard(testBoard, "prog2")

		stored := []models.Message{{Number: 1, Body: "one"}, {Number: 2, Body: "two"}}
		threadID := env.addThread(t, models.Thread{Dat: "100", Acquired: 2, Total: 2, Cursor: cursor}, stored)

		result, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusUpdated, result.Status)
		assert.Equal(t, ModeConditional, result.Mode)
		assert.Equal(t, 1, result.NewMessages)
		assert.Equal(t, 3, result.Thread.Acquired)
		assert.Equal(t, env.fake.BoardURL("prog2"), result.Thread.BoardURL)
		assert.Equal(t, int64(env.fake.DatLength("prog2", "100")), result.Thread.Cursor.FetchedLength)

		messages := env.messages(t, threadID)
		require.Len(t, messages, 3)
		assert.Equal(t, stored, messages[:2])
		assert.Equal(t, "three", messages[2].Body)

		var paths []string
		for _, r := range env.fake.Requests() {
			paths = append(paths, r.Path)
		}
		assert.Equal(t, []string{"/prog/dat/100.dat", "/prog/", "/prog2/dat/100.dat"}, paths)

		first := env.fake.RequestsTo("/prog/dat/100.dat")
		retry := env.fake.RequestsTo("/prog2/dat/100.dat")
		require.Len(t, first, 1)
		require.Len(t, retry, 1)
		wantRange := "bytes=" + strconv.FormatInt(cursor.FetchedLength-1, 10) + "-"
		for _, r := range []testutil.RecordedRequest{first[0], retry[0]} {
			assert.Equal(t, wantRange, r.Header.Get("Range"))
			assert.Equal(t, oldToken, r.Header.Get("If-Modified-Since"))
		}
	})

	t.Run("second redirect means not found", func(t *testing.T) {
		env := newTestEnv(t)

		env.fake.MoveBoard(testBoard, "prog2")
		env.fake.MoveBoard("prog2", "prog3")
		cursor := models.Cursor{LastModified: oldToken, FetchedLength: 10}
		threadID := env.addThread(t, models.Thread{Dat: "100", Cursor: cursor}, nil)

		result, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		assert.Equal(t, StatusNotFound, result.Status)
		assert.Equal(t, http.StatusFound, result.StatusCode)
		assert.Equal(t, cursor, result.Thread.Cursor)
	})
}

func TestSyncThreadNotFound(t *testing.T) {
	env := newTestEnv(t)

	threadID := env.addThread(t, models.Thread{Dat: "404"}, nil)

	result, err := env.service.SyncThread(t.Context(), threadID)
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, result.Status)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Nil(t, result.Thread.LastAcquired)
	assert.Empty(t, env.notifier.Events())
}

func TestSyncThreadErrors(t *testing.T) {
	t.Run("connection failure leaves the cursor unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		cursor := models.Cursor{LastModified: oldToken, FetchedLength: 10}
		threadID := env.addThread(t, models.Thread{Dat: "100", Cursor: cursor}, nil)

		env.fake.Server.Close()

		_, err := env.service.SyncThread(t.Context(), threadID)
		var connErr *transport.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.True(t, strings.HasSuffix(connErr.Request.Path, "/dat/100.dat"))
		assert.False(t, env.service.IsSyncing(threadID))

		info, err := env.store.GetThreadInfo(t.Context(), threadID)
		require.NoError(t, err)
		assert.Equal(t, cursor, info.Cursor)
		assert.Zero(t, env.store.Writes())
	})

	t.Run("store failure is a storage error", func(t *testing.T) {
		env := newTestEnv(t)
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)
		diskFull := errors.New("disk full")
		env.store.Err = diskFull

		_, err := env.service.SyncThread(t.Context(), threadID)
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "get thread info", storageErr.Op)
		assert.ErrorIs(t, err, diskFull)
		assert.False(t, env.service.IsSyncing(threadID))
	})
}

func TestSyncThreadStorageFailureKeepsCursor(t *testing.T) {
	diskFull := errors.New("disk full")

	t.Run("fresh merge does not depend on a follow-up write", func(t *testing.T) {
		env := newTestEnv(t)
		store := env.withFaultyStore()
		store.fieldsErr = diskFull

		env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one")+datLine("名無しさん", "two"))
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

		result, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)
		assert.Equal(t, StatusUpdated, result.Status)
		assert.Equal(t, 2, result.Thread.Acquired)
		assert.NotEmpty(t, result.Thread.Cursor.LastModified)
		require.NotNil(t, result.Thread.LastAcquired)
		assert.True(t, env.service.now().Equal(*result.Thread.LastAcquired))
	})

	t.Run("failed append leaves cursor and messages unchanged", func(t *testing.T) {
		env := newTestEnv(t)
		env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one")+datLine("名無しさん", "two"))
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)
		_, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		before, err := env.store.GetThreadInfo(t.Context(), threadID)
		require.NoError(t, err)

		store := env.withFaultyStore()
		store.mergeErr = diskFull
		env.fake.AppendDat(testBoard, "100", datLine("名無しさん", "three"))

		_, err = env.service.SyncThread(t.Context(), threadID)
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "append messages", storageErr.Op)
		assert.ErrorIs(t, err, diskFull)
		assert.False(t, env.service.IsSyncing(threadID))

		after, err := env.store.GetThreadInfo(t.Context(), threadID)
		require.NoError(t, err)
		assert.Equal(t, before.Cursor, after.Cursor)
		assert.Equal(t, before.Acquired, after.Acquired)
		assert.Equal(t, before.LastAcquired, after.LastAcquired)
		assert.Len(t, env.messages(t, threadID), 2)
	})

	t.Run("failed fresh replace stores nothing", func(t *testing.T) {
		env := newTestEnv(t)
		store := env.withFaultyStore()
		store.mergeErr = diskFull

		env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one"))
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)

		_, err := env.service.SyncThread(t.Context(), threadID)
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "replace messages", storageErr.Op)

		info, err := env.store.GetThreadInfo(t.Context(), threadID)
		require.NoError(t, err)
		assert.True(t, info.Cursor.IsZero())
		assert.Zero(t, info.Acquired)
		assert.Nil(t, info.LastAcquired)
		assert.Empty(t, env.messages(t, threadID))
	})

	t.Run("failed timestamp on an unchanged log leaves the cursor", func(t *testing.T) {
		env := newTestEnv(t)
		env.fake.SetDat(testBoard, "100", datLine("名無しさん", "one"))
		threadID := env.addThread(t, models.Thread{Dat: "100"}, nil)
		first, err := env.service.SyncThread(t.Context(), threadID)
		require.NoError(t, err)

		store := env.withFaultyStore()
		store.fieldsErr = diskFull

		_, err = env.service.SyncThread(t.Context(), threadID)
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "set last acquired", storageErr.Op)

		info, err := env.store.GetThreadInfo(t.Context(), threadID)
		require.NoError(t, err)
		assert.Equal(t, first.Thread.Cursor, info.Cursor)
		assert.Len(t, env.messages(t, threadID), 1)
	})
}

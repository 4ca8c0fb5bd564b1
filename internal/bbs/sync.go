package bbs

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/vdavid/bbs2ch/internal/decode"
	"github.com/vdavid/bbs2ch/internal/metrics"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/transport"
)

// continuation is the byte a range response starts with when the stored log ends
// exactly where the server's copy continues.
const continuation = "\n"

// SyncMode is how a synchronization fetched the thread log.
type SyncMode string

const (
	// ModeFresh downloads the whole log.
	ModeFresh SyncMode = "fresh"
	// ModeConditional asks for the bytes after the stored ones, if the log changed.
	ModeConditional SyncMode = "conditional"
)

// SyncResult is the outcome of a thread synchronization.
type SyncResult struct {
	Status Status   `json:"status"`
	Mode   SyncMode `json:"mode,omitempty"`
	// StatusCode is the HTTP status of the last response, zero if nothing was sent.
	StatusCode  int `json:"status_code,omitempty"`
	NewMessages int `json:"new_messages"`
	// Thread is the stored state after the synchronization. It is nil for busy
	// and not-applicable outcomes.
	Thread *models.ThreadInfo `json:"thread,omitempty"`
}

// SyncThread brings a thread's stored messages up to date.
//
// A thread with a cursor is asked for the bytes after the stored ones; otherwise the
// whole log is downloaded. A call for a thread that is already synchronizing returns
// StatusBusy at once, and a thread that left its board index returns
// StatusNotApplicable. Neither touches the network or the store. On error the
// stored messages and cursor are unchanged.
func (s *Service) SyncThread(ctx context.Context, threadID string) (*SyncResult, error) {
	return s.sync(ctx, threadID, false)
}

// RefetchThread downloads a thread's whole log and replaces its stored messages.
// Unlike SyncThread it also runs for threads that left the board index.
func (s *Service) RefetchThread(ctx context.Context, threadID string) (*SyncResult, error) {
	return s.sync(ctx, threadID, true)
}

func (s *Service) sync(ctx context.Context, threadID string, full bool) (*SyncResult, error) {
	key := threadKey(threadID)
	if !s.guard.tryAcquire(key) {
		metrics.ThreadSyncs.WithLabelValues("", string(StatusBusy)).Inc()
		return &SyncResult{Status: StatusBusy}, nil
	}
	defer s.guard.release(key)

	info, err := s.store.GetThreadInfo(ctx, threadID)
	if err != nil {
		return nil, storageError("get thread info", err)
	}

	if !full && info.IsMissing() {
		log.Printf("Sync: thread %s/%s is no longer listed, skipping", info.BoardURL, info.Dat)
		metrics.ThreadSyncs.WithLabelValues("", string(StatusNotApplicable)).Inc()
		return &SyncResult{Status: StatusNotApplicable}, nil
	}

	mode := ModeFresh
	if !full && !info.Cursor.IsZero() {
		mode = ModeConditional
	}

	var result *SyncResult
	if mode == ModeConditional {
		result, err = s.syncConditional(ctx, info)
	} else {
		result, err = s.syncFresh(ctx, info)
	}
	if err != nil {
		return nil, err
	}
	result.Mode = mode

	// An update stored the acquisition time along with the messages.
	if result.Status == StatusNotModified {
		now := s.now()
		if err := s.store.SetThreadFields(ctx, threadID, models.ThreadFields{LastAcquired: &now}); err != nil {
			return nil, storageError("set last acquired", err)
		}
	}

	result.Thread, err = s.store.GetThreadInfo(ctx, threadID)
	if err != nil {
		return nil, storageError("get thread info", err)
	}

	log.Printf("Sync: %s/%s %s -> %d, %s (%d new)", info.BoardURL, info.Dat, mode, result.StatusCode, result.Status, result.NewMessages)
	metrics.ThreadSyncs.WithLabelValues(string(mode), string(result.Status)).Inc()
	if result.Status == StatusUpdated {
		metrics.SyncedMessages.Add(float64(result.NewMessages))
		s.notify(Event{Type: EventThreadUpdated, BoardID: info.BoardID, ThreadID: threadID, NewMessages: result.NewMessages})
	}
	return result, nil
}

// syncFresh downloads the whole log. Anything but a 200 with at least one message
// means the thread is gone.
func (s *Service) syncFresh(ctx context.Context, info *models.ThreadInfo) (*SyncResult, error) {
	moved := false
	for {
		resp, err := s.fetchDat(ctx, info, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusFound && !moved {
			moved = true
			info, err = s.followThreadMove(ctx, info)
			if err != nil {
				return nil, err
			}
			if info != nil {
				continue
			}
		}

		result := &SyncResult{Status: StatusNotFound, StatusCode: resp.StatusCode}
		if resp.StatusCode != http.StatusOK {
			return result, nil
		}

		stored, err := s.replace(ctx, info, resp)
		if err != nil {
			return nil, err
		}
		if stored > 0 {
			result.Status = StatusUpdated
			result.NewMessages = stored
		}
		return result, nil
	}
}

// syncConditional asks for the log from one byte before the stored end. A response
// that starts with the continuation byte carries only new lines; any other answer
// except 302 and 304 means the server's copy no longer lines up with ours, and the
// whole log is downloaded again.
func (s *Service) syncConditional(ctx context.Context, info *models.ThreadInfo) (*SyncResult, error) {
	moved := false
	for {
		resp, err := s.fetchDat(ctx, info, &info.Cursor)
		if err != nil {
			return nil, err
		}

		switch {
		case resp.StatusCode == http.StatusFound:
			if moved {
				return &SyncResult{Status: StatusNotFound, StatusCode: resp.StatusCode}, nil
			}
			moved = true

			info, err = s.followThreadMove(ctx, info)
			if err != nil {
				return nil, err
			}
			if info == nil {
				return &SyncResult{Status: StatusNotFound, StatusCode: resp.StatusCode}, nil
			}

		case resp.StatusCode == http.StatusNotModified:
			return &SyncResult{Status: StatusNotModified, StatusCode: resp.StatusCode}, nil

		case (resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent) &&
			strings.HasPrefix(resp.Body, continuation):
			return s.appendContinuation(ctx, info, resp)

		default:
			if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
				log.Printf("Sync: %s/%s range not satisfiable, downloading in full", info.BoardURL, info.Dat)
			} else {
				log.Printf("Sync: %s/%s answered %d without continuation, downloading in full", info.BoardURL, info.Dat, resp.StatusCode)
			}
			return s.refetchAfterDrift(ctx, info)
		}
	}
}

// refetchAfterDrift replaces the stored log with a full download. An empty or failed
// download leaves everything as it was.
func (s *Service) refetchAfterDrift(ctx context.Context, info *models.ThreadInfo) (*SyncResult, error) {
	resp, err := s.fetchDat(ctx, info, nil)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Status: StatusNotModified, StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		return result, nil
	}

	stored, err := s.replace(ctx, info, resp)
	if err != nil {
		return nil, err
	}
	if stored > 0 {
		result.Status = StatusUpdated
		result.NewMessages = stored
	}
	return result, nil
}

// appendContinuation stores the lines of a continuation response after the acquired ones.
func (s *Service) appendContinuation(ctx context.Context, info *models.ThreadInfo, resp *transport.Response) (*SyncResult, error) {
	result := &SyncResult{Status: StatusNotModified, StatusCode: resp.StatusCode}

	messages := s.parse(strings.TrimPrefix(resp.Body, continuation), info.Acquired)
	if len(messages) == 0 {
		return result, nil
	}

	cursor := models.Cursor{
		LastModified:  resp.LastModified(),
		FetchedLength: info.Cursor.FetchedLength + int64(resp.Length-len(continuation)),
	}
	if cursor.LastModified == "" {
		cursor.LastModified = info.Cursor.LastModified
	}

	now := s.now()
	if err := s.store.AppendMessages(ctx, info.ID, cursor, messages, models.ThreadFields{LastAcquired: &now}); err != nil {
		return nil, storageError("append messages", err)
	}

	result.Status = StatusUpdated
	result.NewMessages = len(messages)
	return result, nil
}

// replace stores a full log in place of the stored messages and returns how many
// messages it stored. An empty log stores nothing.
func (s *Service) replace(ctx context.Context, info *models.ThreadInfo, resp *transport.Response) (int, error) {
	messages := s.parse(resp.Body, 0)
	if len(messages) == 0 {
		return 0, nil
	}

	now := s.now()
	fields := models.ThreadFields{LastAcquired: &now}
	if info.Title == "" {
		if title := decode.Title(resp.Body); title != "" {
			fields.Title = &title
		}
	}

	cursor := models.Cursor{LastModified: resp.LastModified(), FetchedLength: int64(resp.Length)}
	if err := s.store.ReplaceMessages(ctx, info.ID, cursor, messages, fields); err != nil {
		return 0, storageError("replace messages", err)
	}

	return len(messages), nil
}

// parse decodes dat lines and numbers them after the given count.
func (s *Service) parse(body string, after int) []models.Message {
	var messages []models.Message
	for m := range decode.Dat(body, s.defaultName) {
		m.Number = after + len(messages) + 1
		messages = append(messages, m)
	}
	return messages
}

// fetchDat requests a thread log. With a cursor the request is conditional and
// starts one byte before the stored end; without one it asks for the whole log, gzipped.
func (s *Service) fetchDat(ctx context.Context, info *models.ThreadInfo, cursor *models.Cursor) (*transport.Response, error) {
	loc, err := parseBoardURL(info.BoardURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Referer", loc.readURL(info.Dat))
	if cursor != nil {
		header.Set("If-Modified-Since", cursor.LastModified)
		header.Set("Range", "bytes="+strconv.FormatInt(cursor.FetchedLength-1, 10)+"-")
	} else {
		header.Set("Accept-Encoding", "gzip")
	}

	return s.transport.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		Host:   loc.Host,
		Path:   loc.datPath(info.Dat),
		Header: header,
	})
}

// followThreadMove checks whether the thread's board moved and returns the thread
// as stored afterwards, or nil if the board did not move.
func (s *Service) followThreadMove(ctx context.Context, info *models.ThreadInfo) (*models.ThreadInfo, error) {
	board, err := s.store.GetBoard(ctx, info.BoardID)
	if err != nil {
		return nil, storageError("get board", err)
	}

	found, err := s.followBoardMove(ctx, board)
	if err != nil || !found {
		return nil, err
	}

	moved, err := s.store.GetThreadInfo(ctx, info.ID)
	if err != nil {
		return nil, storageError("get thread info", err)
	}
	return moved, nil
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/db"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/transport"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 1 << 20

// Store is the part of the persistent store the handlers read and edit.
// *db.Store satisfies it.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (*models.Board, error)
	GetBoards(ctx context.Context) ([]models.Board, error)
	SetBoardFields(ctx context.Context, boardID string, fields models.BoardFields) error

	GetThreadInfo(ctx context.Context, threadID string) (*models.ThreadInfo, error)
	GetThreads(ctx context.Context, boardID string) ([]models.Thread, error)
	GetThreadsFull(ctx context.Context, boardID string) ([]models.Thread, error)
	SetThreadFields(ctx context.Context, threadID string, fields models.ThreadFields) error
	GetMessages(ctx context.Context, threadID string, number int) ([]models.Message, error)

	SaveFilterRule(ctx context.Context, rule *models.FilterRule) error
	ListFilterRules(ctx context.Context) ([]models.FilterRule, error)
	DeleteFilterRule(ctx context.Context, ruleID string) error
}

var _ Store = (*db.Store)(nil)

// WriteJSONResponse encodes data and writes it with status 200.
// Returns false if encoding failed and an error response was written instead.
func WriteJSONResponse(w http.ResponseWriter, data any) bool {
	return writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) bool {
	// Encode to buffer first to prevent partial writes
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
	}
	return true
}

// decodeJSONBody decodes the request body into dst, writing a 400 when it can't.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, component string, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		log.Printf("%s: Failed to decode request: %v", component, err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeServiceError maps an error from the store or the bbs service to a response.
func writeServiceError(w http.ResponseWriter, component string, err error) {
	var connErr *transport.ConnectionError
	var decodeErr *transport.DecodeError

	switch {
	case errors.Is(err, db.ErrBoardNotFound):
		http.Error(w, "Board not found", http.StatusNotFound)
	case errors.Is(err, db.ErrThreadNotFound):
		http.Error(w, "Thread not found", http.StatusNotFound)
	case errors.Is(err, bbs.ErrInvalidPost):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &connErr), errors.As(err, &decodeErr):
		log.Printf("%s: Upstream failure: %v", component, err)
		http.Error(w, "Bad gateway", http.StatusBadGateway)
	default:
		log.Printf("%s: %v", component, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// ParsePaginationParams parses page and limit from query parameters.
// Returns default values (page=1, limit=defaultLimit) if parameters are missing or invalid.
func ParsePaginationParams(r *http.Request, defaultLimit int) (page, limit int) {
	page = 1
	limit = defaultLimit

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			page = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	return page, limit
}

// paginate returns the page of items selected by page and limit.
func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	return items[start:min(start+limit, len(items))]
}

// queryFlag reports whether a boolean query parameter is set to a true value.
func queryFlag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

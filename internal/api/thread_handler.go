package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/feed"
	"github.com/vdavid/bbs2ch/internal/filter"
	"github.com/vdavid/bbs2ch/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ThreadResponse is a thread with its board and whether a sync of it is running.
type ThreadResponse struct {
	*models.ThreadInfo
	Syncing bool `json:"syncing"`
}

// MessagesResponse is a thread's messages after filtering.
type MessagesResponse struct {
	Thread   *models.ThreadInfo `json:"thread"`
	Messages []filter.Result    `json:"messages"`
}

// ThreadFlagsRequest updates a thread's reading state. Omitted fields are left unchanged.
type ThreadFlagsRequest struct {
	IsOpen         *bool `json:"is_open"`
	Favorite       *bool `json:"favorite"`
	LastRead       *int  `json:"last_read" validate:"omitempty,min=0"`
	ScrollPosition *int  `json:"scroll_position" validate:"omitempty,min=0"`
}

// PostMessageRequest is the body of a post submission. The thread comes from the path.
type PostMessageRequest struct {
	Name    string          `json:"name"`
	Mail    string          `json:"mail"`
	Message string          `json:"message"`
	Confirm []bbs.FormField `json:"confirm,omitempty"`
}

// ThreadHandler handles requests about a single thread.
type ThreadHandler struct {
	store   Store
	service bbs.BBSService
}

// NewThreadHandler creates a new ThreadHandler instance.
func NewThreadHandler(store Store, service bbs.BBSService) *ThreadHandler {
	return &ThreadHandler{
		store:   store,
		service: service,
	}
}

// GetThread returns a thread's stored state.
func (h *ThreadHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	info, err := h.store.GetThreadInfo(r.Context(), threadID)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	WriteJSONResponse(w, &ThreadResponse{ThreadInfo: info, Syncing: h.service.IsSyncing(threadID)})
}

// UpdateThread sets a thread's flags and reading position.
func (h *ThreadHandler) UpdateThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID := r.PathValue("thread_id")

	var req ThreadFlagsRequest
	if !decodeJSONBody(w, r, "ThreadHandler", &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetThreadInfo(ctx, threadID); err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	fields := models.ThreadFields{
		IsOpen:         req.IsOpen,
		Favorite:       req.Favorite,
		LastRead:       req.LastRead,
		ScrollPosition: req.ScrollPosition,
	}
	if err := h.store.SetThreadFields(ctx, threadID, fields); err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	info, err := h.store.GetThreadInfo(ctx, threadID)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	WriteJSONResponse(w, &ThreadResponse{ThreadInfo: info, Syncing: h.service.IsSyncing(threadID)})
}

// filteredMessages loads a thread with its messages and applies the stored NG rules.
func (h *ThreadHandler) filteredMessages(w http.ResponseWriter, r *http.Request) (*models.ThreadInfo, []filter.Result, bool) {
	ctx := r.Context()
	threadID := r.PathValue("thread_id")

	info, err := h.store.GetThreadInfo(ctx, threadID)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return nil, nil, false
	}

	messages, err := h.store.GetMessages(ctx, threadID, 0)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return nil, nil, false
	}

	rules, err := h.store.ListFilterRules(ctx)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return nil, nil, false
	}

	f, err := filter.New(rules)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return nil, nil, false
	}

	return info, f.Apply(info.BoardURL, info.Dat, messages), true
}

// GetMessages returns a thread's messages with the NG verdict for each.
// The from query parameter skips messages numbered below it.
func (h *ThreadHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	from := 1
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "from must be a positive number", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	info, results, ok := h.filteredMessages(w, r)
	if !ok {
		return
	}

	visible := make([]filter.Result, 0, len(results))
	for _, res := range results {
		if res.Message.Number >= from {
			visible = append(visible, res)
		}
	}

	WriteJSONResponse(w, &MessagesResponse{Thread: info, Messages: visible})
}

// SyncThread fetches what is new in the thread. With full=true it downloads the
// thread again from the start.
func (h *ThreadHandler) SyncThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	var result *bbs.SyncResult
	var err error
	if queryFlag(r, "full") {
		result, err = h.service.RefetchThread(r.Context(), threadID)
	} else {
		result, err = h.service.SyncThread(r.Context(), threadID)
	}
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	log.Printf("ThreadHandler: Synced thread %s: %s (%d new)", threadID, result.Status, result.NewMessages)
	WriteJSONResponse(w, result)
}

// PostMessage submits a message to the thread. A confirmation page comes back
// as outcome needs_confirmation with the fields to send along on the retry.
func (h *ThreadHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !decodeJSONBody(w, r, "ThreadHandler", &req) {
		return
	}

	result, err := h.service.Submit(r.Context(), bbs.PostRequest{
		ThreadID: r.PathValue("thread_id"),
		Name:     req.Name,
		Mail:     req.Mail,
		Message:  req.Message,
		Confirm:  req.Confirm,
	})
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	WriteJSONResponse(w, result)
}

// GetFeed renders the thread's visible messages as an Atom feed.
func (h *ThreadHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	info, results, ok := h.filteredMessages(w, r)
	if !ok {
		return
	}

	atom, err := feed.Atom(info, results)
	if err != nil {
		writeServiceError(w, "ThreadHandler", err)
		return
	}

	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	if _, err := w.Write([]byte(atom)); err != nil {
		log.Printf("ThreadHandler: Failed to write feed: %v", err)
	}
}

package api

import (
	"log"
	"net/http"

	"github.com/vdavid/bbs2ch/internal/bbs"
	"github.com/vdavid/bbs2ch/internal/models"
)

// PaginationInfo describes which slice of a list a response carries.
type PaginationInfo struct {
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
}

// ThreadsResponse is a page of a board's threads.
type ThreadsResponse struct {
	Threads    []models.Thread `json:"threads"`
	Pagination PaginationInfo  `json:"pagination"`
}

// PruneResponse reports how many threads a prune deleted.
type PruneResponse struct {
	Removed int64 `json:"removed"`
}

// BoardFlagsRequest toggles a board's user flags. Omitted fields are left unchanged.
type BoardFlagsRequest struct {
	IsOpen   *bool `json:"is_open"`
	Favorite *bool `json:"favorite"`
}

// BoardsHandler handles board directory and thread index requests.
type BoardsHandler struct {
	store   Store
	service bbs.BBSService
}

// NewBoardsHandler creates a new BoardsHandler instance.
func NewBoardsHandler(store Store, service bbs.BBSService) *BoardsHandler {
	return &BoardsHandler{
		store:   store,
		service: service,
	}
}

// GetBoards returns every stored board in directory order.
func (h *BoardsHandler) GetBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.store.GetBoards(r.Context())
	if err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}
	if boards == nil {
		boards = []models.Board{}
	}

	WriteJSONResponse(w, boards)
}

// RefreshMenu fetches the board directory and reconciles the stored boards with it.
func (h *BoardsHandler) RefreshMenu(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RefreshMenu(r.Context())
	if err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	WriteJSONResponse(w, result)
}

// UpdateBoard sets a board's open and favorite flags.
func (h *BoardsHandler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	boardID := r.PathValue("board_id")

	var req BoardFlagsRequest
	if !decodeJSONBody(w, r, "BoardsHandler", &req) {
		return
	}

	if _, err := h.store.GetBoard(ctx, boardID); err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	if err := h.store.SetBoardFields(ctx, boardID, models.BoardFields{IsOpen: req.IsOpen, Favorite: req.Favorite}); err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	board, err := h.store.GetBoard(ctx, boardID)
	if err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	WriteJSONResponse(w, board)
}

// GetThreads returns a page of a board's threads in rank order. With full=true
// the list also includes threads that dropped out of the index.
func (h *BoardsHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	boardID := r.PathValue("board_id")

	if _, err := h.store.GetBoard(ctx, boardID); err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	page, limit := ParsePaginationParams(r, 100)

	var threads []models.Thread
	var err error
	if queryFlag(r, "full") {
		threads, err = h.store.GetThreadsFull(ctx, boardID)
	} else {
		threads, err = h.store.GetThreads(ctx, boardID)
	}
	if err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	WriteJSONResponse(w, &ThreadsResponse{
		Threads: paginate(threads, page, limit),
		Pagination: PaginationInfo{
			TotalCount: len(threads),
			Page:       page,
			PerPage:    limit,
		},
	})
}

// RefreshBoard fetches the board's thread index and applies it to the stored threads.
func (h *BoardsHandler) RefreshBoard(w http.ResponseWriter, r *http.Request) {
	boardID := r.PathValue("board_id")

	result, err := h.service.RefreshBoard(r.Context(), boardID)
	if err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	log.Printf("BoardsHandler: Refreshed board %s: %s", boardID, result.Status)
	WriteJSONResponse(w, result)
}

// PruneBoard deletes threads that left the index and were never followed or fetched.
func (h *BoardsHandler) PruneBoard(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.PruneBoard(r.Context(), r.PathValue("board_id"))
	if err != nil {
		writeServiceError(w, "BoardsHandler", err)
		return
	}

	WriteJSONResponse(w, &PruneResponse{Removed: removed})
}

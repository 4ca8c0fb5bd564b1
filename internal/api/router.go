package api

import (
	"fmt"
	"net/http"

	"github.com/vdavid/bbs2ch/internal/auth"
	"github.com/vdavid/bbs2ch/internal/bbs"
	ws "github.com/vdavid/bbs2ch/internal/websocket"
)

// RouterOptions holds what NewRouter wires together.
type RouterOptions struct {
	Store   Store
	Service bbs.BBSService
	Hub     *ws.Hub
	// Token, when set, is required as a bearer token on every /api/v1 route.
	Token string
	// Banner is the body of the plain-text root page.
	Banner string
}

// NewRouter registers every API route on a new mux.
func NewRouter(opts RouterOptions) *http.ServeMux {
	boards := NewBoardsHandler(opts.Store, opts.Service)
	threads := NewThreadHandler(opts.Store, opts.Service)
	rules := NewRulesHandler(opts.Store)
	requireToken := auth.RequireToken(opts.Token)

	mux := http.NewServeMux()

	banner := opts.Banner
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, banner)
	})

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireToken(h))
	}

	handle("GET /api/v1/boards", boards.GetBoards)
	handle("POST /api/v1/menu/refresh", boards.RefreshMenu)
	handle("PATCH /api/v1/boards/{board_id}", boards.UpdateBoard)
	handle("GET /api/v1/boards/{board_id}/threads", boards.GetThreads)
	handle("POST /api/v1/boards/{board_id}/refresh", boards.RefreshBoard)
	handle("POST /api/v1/boards/{board_id}/prune", boards.PruneBoard)

	handle("GET /api/v1/threads/{thread_id}", threads.GetThread)
	handle("PATCH /api/v1/threads/{thread_id}", threads.UpdateThread)
	handle("GET /api/v1/threads/{thread_id}/messages", threads.GetMessages)
	handle("POST /api/v1/threads/{thread_id}/sync", threads.SyncThread)
	handle("POST /api/v1/threads/{thread_id}/posts", threads.PostMessage)
	handle("GET /api/v1/threads/{thread_id}/feed.atom", threads.GetFeed)

	handle("GET /api/v1/filter-rules", rules.ListRules)
	handle("POST /api/v1/filter-rules", rules.CreateRule)
	handle("DELETE /api/v1/filter-rules/{rule_id}", rules.DeleteRule)

	if opts.Hub != nil {
		// WebSocket clients pass the token as a query parameter since browsers
		// can't set headers on WebSocket connections.
		handle("GET /api/v1/ws", NewWebSocketHandler(opts.Hub).Handle)
	}

	return mux
}

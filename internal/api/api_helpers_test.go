package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vdavid/bbs2ch/internal/models"
	"github.com/vdavid/bbs2ch/internal/testutil/memstore"
	"github.com/vdavid/bbs2ch/internal/testutil/mocks"
	ws "github.com/vdavid/bbs2ch/internal/websocket"
)

var _ Store = (*memstore.Store)(nil)

const testBoardURL = "http://pc11.2ch.net/prog/"

type apiEnv struct {
	store   *memstore.Store
	service *mocks.BBSService
	hub     *ws.Hub
	router  http.Handler
	boardID string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := memstore.New()
	service := mocks.NewBBSService(t)
	hub := ws.NewHub(10)

	return &apiEnv{
		store:   store,
		service: service,
		hub:     hub,
		router:  NewRouter(RouterOptions{Store: store, Service: service, Hub: hub, Banner: "bbs2ch API is running"}),
		boardID: store.AddBoard(testBoardURL, "PC等", "プログラム"),
	}
}

func (e *apiEnv) addThread(th models.Thread, messages []models.Message) string {
	th.BoardID = e.boardID
	if th.Rank == 0 {
		th.Rank = 1
	}
	return e.store.AddThread(th, messages)
}

// do sends a request through the router. A non-nil body is encoded as JSON
// unless it is already a string.
func (e *apiEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func testMessages() []models.Message {
	return []models.Message{
		{Number: 1, Name: "名無しさん", Mail: "sage", DateID: "2006/01/02 15:04:05 ID:abcd1234", Body: "first<br>post"},
		{Number: 2, Name: "荒らし", DateID: "2006/01/02 15:05:00 ID:troll999", Body: "spam spam"},
		{Number: 3, Name: "名無しさん", DateID: "2006/01/02 15:06:00 ID:troll999", Body: "more"},
	}
}

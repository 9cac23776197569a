package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/catalog"
	"github.com/DoyleJ11/duel-backend/internal/engine"
	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/match"
	"github.com/DoyleJ11/duel-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *hub.Hub, *store.Memory) {
	t.Helper()
	h := hub.NewHub(context.Background(), hub.Config{})
	t.Cleanup(h.Shutdown)
	mem := store.NewMemory()
	return SetupRoutes(Deps{Hub: h, History: mem, Catalog: catalog.Default()}), h, mem
}

func do(t *testing.T, handler http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateThenGetMatch(t *testing.T) {
	r, _, _ := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/matches")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	rec = do(t, r, http.MethodGet, "/matches/"+created.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var view match.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, created.ID, view.ID)
	assert.Equal(t, engine.PhaseAwaitingOpponent, view.Phase)

	rec = do(t, r, http.MethodGet, "/matches")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []match.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&views))
	require.Len(t, views, 1)
}

func TestGetMatch_NotFound(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/matches/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlayerHistory(t *testing.T) {
	r, _, mem := newTestRouter(t)
	finished := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, mem.Record(context.Background(), match.Result{
		MatchID:    "m1",
		Identities: [2]string{"ash", "gary"},
		Winner:     "ash",
		Loser:      "gary",
		Reason:     "knockout",
		Turns:      5,
		FinishedAt: finished,
	}))

	rec := do(t, r, http.MethodGet, "/players/gary/matches?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs []store.Record
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "ash", recs[0].Winner)

	rec = do(t, r, http.MethodGet, "/players/brock/matches")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, r, http.MethodGet, "/players/gary/matches?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFighters(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/fighters")
	require.Equal(t, http.StatusOK, rec.Code)

	var fighters []engine.Fighter
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&fighters))
	assert.Equal(t, catalog.Default().Len(), len(fighters))
}

func TestWS_RequiresIdentity(t *testing.T) {
	r, _, _ := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/ws")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DoyleJ11/duel-backend/internal/catalog"
	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

func CreateMatch(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.Create(r.Context())
		if err != nil {
			log.Error("failed to create match", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create match")
			return
		}

		writeJSON(w, http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: id})
	}
}

func ListMatches(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := h.List(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func GetMatch(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, hub.ErrNotFound) {
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}

		view, err := m.View(r.Context())
		if err != nil {
			// evicted between lookup and view
			writeError(w, http.StatusNotFound, "match not found")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func PlayerHistory(hist store.HistoryReader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := store.DefaultHistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		recs, err := hist.History(r.Context(), chi.URLParam(r, "identity"), limit)
		if err != nil {
			log.Error("history query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if recs == nil {
			recs = []store.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func ListFighters(c *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.All())
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/duel-backend/internal/catalog"
	"github.com/DoyleJ11/duel-backend/internal/hub"
	"github.com/DoyleJ11/duel-backend/internal/identity"
	"github.com/DoyleJ11/duel-backend/internal/store"
	"github.com/DoyleJ11/duel-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	Hub      *hub.Hub
	History  store.HistoryReader
	Catalog  *catalog.Catalog
	Identity identity.Provider
	Logger   *zap.Logger
	WS       ws.Config
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Identity == nil {
		d.Identity = identity.Header{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Hub, d.Identity, d.Logger, d.WS))

	r.Route("/matches", func(r chi.Router) {
		r.Post("/", CreateMatch(d.Hub, d.Logger))
		r.Get("/", ListMatches(d.Hub))
		r.Get("/{id}", GetMatch(d.Hub))
	})
	if d.History != nil {
		r.Get("/players/{identity}/matches", PlayerHistory(d.History, d.Logger))
	}
	if d.Catalog != nil {
		r.Get("/fighters", ListFighters(d.Catalog))
	}
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"autoenroll-service/config"
	"autoenroll-service/internal/middleware"
	"autoenroll-service/pkg/httputil"
)

// NewRouter はルーターを生成する。
func NewRouter(h *EnrollHandler, metrics *middleware.Metrics, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	r.Get("/autoenroll", h.Autoenroll)
	r.Post("/autoenroll", h.Autoenroll)

	if cfg != nil && cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "autoenroll",
			otelhttp.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
			}),
		)
	}
	return r
}

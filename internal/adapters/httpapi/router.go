package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	// AuthMiddleware guards every control endpoint. Nil leaves them open.
	AuthMiddleware func(http.Handler) http.Handler
	// Metrics is served on /metrics when set.
	Metrics http.Handler
}

// NewRouter constructs the control API router.
func NewRouter(api *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Infra endpoints stay unauthenticated.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.AuthMiddleware != nil {
			r.Use(opts.AuthMiddleware)
		}
		r.Get("/subscribers", api.ListSubscribers)
		r.Route("/subscribers/{subscriberId}", func(r chi.Router) {
			r.Use(bindSubscriber)
			r.Put("/config", api.PutConfig)
			r.Get("/config", api.GetConfig)
			r.Post("/reload", api.Reload)
			r.Get("/view", api.GetView)
			r.Delete("/", api.DeleteSubscriber)
		})
	})
	return r
}

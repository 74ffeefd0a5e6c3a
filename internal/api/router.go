package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	// Gatherer backs /metrics. Nil leaves the endpoint unmounted.
	Gatherer     prometheus.Gatherer
	AdminEnabled bool
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(h *HandlerProvider, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/credits", func(r chi.Router) {
		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Post("/generate", h.GenerateHandler)
		r.Post("/withdrawals", h.WithdrawHandler)
		r.Get("/events", h.StreamHandler)
	})

	if opts.AdminEnabled {
		r.Delete("/admin/ledger", h.ResetHandler)
	}

	return r
}

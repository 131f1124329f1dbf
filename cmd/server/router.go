package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"freewalk/internal/platform/config"
	"freewalk/internal/platform/middleware"
	reporthandler "freewalk/internal/report/handler"
	userhandler "freewalk/internal/user/handler"
	"freewalk/pkg/platform/httputil"
)

func newRouter(d *deps, cfg config.Config, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(d.metrics))

	r.Get("/healthz", d.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.verifier, d.users, log))
		userhandler.New(d.users, log).Register(r)

		r.Group(func(r chi.Router) {
			r.Use(d.idempotency.Handler)
			if d.rateLimit != nil {
				r.Use(d.rateLimit.PerUser)
			}
			reporthandler.New(d.reports, d.uploader, cfg.Storage.MaxUploadBytes, log).Register(r)
		})
	})
	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
}

func (d *deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}, CheckedAt: time.Now().UTC()}
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	if d.db != nil {
		check("database", d.db.PingContext)
	}
	if d.redis != nil {
		check("redis", d.redis.Health)
	}
	if d.publisher != nil {
		check("kafka", d.publisher.Ping)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

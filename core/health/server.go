// Package health serves the operational HTTP endpoint: liveness plus a
// small status document with the poll loop and dispatch counters.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"vkcoursebot/core/buildinfo"
	"vkcoursebot/core/dispatch"
	"vkcoursebot/core/logger"
	"vkcoursebot/core/longpoll"
)

type Server struct {
	srv     *http.Server
	started time.Time
	poller  *longpoll.Poller
	pool    *dispatch.Pool
}

type statusDoc struct {
	Version  string             `json:"version"`
	Commit   string             `json:"commit"`
	UptimeS  int64              `json:"uptime_s"`
	LongPoll longpoll.Stats     `json:"longpoll"`
	Dispatch dispatch.PoolStats `json:"dispatch"`
}

func NewServer(listen string, poller *longpoll.Poller, pool *dispatch.Pool) *Server {
	s := &Server{
		started: time.Now(),
		poller:  poller,
		pool:    pool,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	logger.OPS.Info("ops endpoint listening",
		slog.String("event", "ops.start"),
		slog.String("listen", s.srv.Addr),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc := statusDoc{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		UptimeS: int64(time.Since(s.started).Seconds()),
	}
	if s.poller != nil {
		doc.LongPoll = s.poller.Stats()
	}
	if s.pool != nil {
		doc.Dispatch = s.pool.Stats()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logger.OPS.Warn("status encode failed",
			slog.String("event", "ops.status"),
			slog.String("err", err.Error()),
		)
	}
}

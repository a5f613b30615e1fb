package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobsched/internal/config"
	"jobsched/internal/domain"
	"jobsched/internal/infra/redisq"
	"jobsched/internal/jobs"
	"jobsched/internal/ports"
	"jobsched/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Server struct {
	router chi.Router
	cli    *redisq.Client
}

// NewServer connects to redis and builds submission handles for every
// registered job. It does not run any job itself.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	cli := redisq.New(cfg.Redis)
	if err := cli.Init(ctx); err != nil {
		return nil, err
	}

	registry, err := domain.NewRegistry(jobs.Definitions()...)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}

	sched := usecase.NewScheduler(cli, registry, usecase.Options{
		App:       cfg.Scheduler.AppName,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	return &Server{router: NewRouter(sched, cli.Mailbox()), cli: cli}, nil
}

// NewRouter exposes job submission and event injection over HTTP.
func NewRouter(sched *usecase.Scheduler, mb ports.Mailbox) chi.Router {
	h := handlers{sched: sched, mailbox: mb}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(func(r *http.Request) bool { return r.URL.Path == "/" }),
		middleware.Recoverer,
	)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/jobs/{name}", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/tasks", h.task)
		r.Get("/stats", h.stats)
		r.Get("/runs/{id}", h.run)
	})
	r.Post("/events/{app}/{topic}", h.event)
	return r
}

// Run serves on port until SIGINT or SIGTERM, then drains in-flight requests.
func (s *Server) Run(port int) {
	addr := fmt.Sprintf(":%d", port)
	defer s.cli.Close()

	httpServer := http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Fatal().Err(err).Msg("Server forced to shutdown")
		}

		close(done)
	}()

	log.Info().Msgf("server serving on port %d", port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to listen and serve")
	}

	<-done
	log.Info().Msg("Server stopped")
}

func requestLogger(skip func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			logger := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}

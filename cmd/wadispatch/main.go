package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"wadispatch/internal/api"
	"wadispatch/internal/cache"
	"wadispatch/internal/client"
	"wadispatch/internal/config"
	"wadispatch/internal/repo"
	"wadispatch/internal/scheduler"
	"wadispatch/internal/service"
	"wadispatch/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		cancelPing()
		log.Fatal(err)
	}
	cancelPing()

	gateway := client.NewGatewayClient(cfg.Gateway.URL)
	sup := session.NewSupervisor(gateway, cfg.Gateway.PollInterval)
	campaignRepo := repo.NewPostgresCampaignRepo(db)

	worker, err := service.NewWorker(sup, campaignRepo, cfg.Pacing.Min, cfg.Pacing.Max)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		sentCache := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		worker.WithSentHook(func(ctx context.Context, campaignID int64, phone, remoteID string) {
			if err := sentCache.StoreSent(ctx, campaignID, phone, remoteID, time.Now()); err != nil {
				slog.Warn("failed to cache sent message", "campaign_id", campaignID, "error", err)
			}
		})
	}

	reconciler, err := scheduler.New(cfg.Reconcile.Interval, sup.Reconcile)
	if err != nil {
		log.Fatal(err)
	}
	reconciler.Start()
	defer reconciler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Gateway.AutoConnect {
		if _, err := sup.Connect(ctx, false); err != nil {
			slog.Error("initial connect failed", "error", err)
		}
	}

	h := api.NewHandler(sup, worker, campaignRepo)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(h)),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("dispatch server listening", "addr", cfg.Server.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"request_id", uuid.NewString(),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

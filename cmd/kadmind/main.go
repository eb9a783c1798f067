// Command kadmind serves the admin auth API: phone+password login with
// SMS-verified registration, short-lived access tokens, and the refresh
// protocol backed by Redis.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kadmin "github.com/kadmin/kadmin"
	"github.com/kadmin/kadmin/userstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := kadmin.LoadConfigFromEnv()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return err
	}

	users, err := userstore.OpenSQLite(envOr("KADMIN_DB", "kadmin.db"))
	if err != nil {
		return err
	}
	defer users.Close()

	engine, err := kadmin.New(cfg, users, rdb,
		kadmin.WithLogger(logger),
		kadmin.WithMetrics(kadmin.NewMetrics()),
	)
	if err != nil {
		return err
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Token-Refresh", "cf-turnstile-response", "k-mode"},
	}).Handler((&api{engine: engine, logger: logger}).routes())

	server := &http.Server{
		Addr:              envOr("KADMIN_ADDR", ":8080"),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func allowedOrigins() []string {
	if v := os.Getenv("KADMIN_CORS_ORIGINS"); v != "" {
		return []string{v}
	}
	return []string{"*"}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/openplace/pixelfield/internal/config"
	"github.com/openplace/pixelfield/internal/factory"
	"github.com/openplace/pixelfield/internal/middleware"
	"github.com/openplace/pixelfield/internal/model"
	redisstorage "github.com/openplace/pixelfield/internal/storage/redis"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	env, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg := factory.Config{
		FieldWidth:      env.FieldWidth,
		FieldHeight:     env.FieldHeight,
		CooldownSeconds: env.CooldownSeconds,
		TokenSecret:     []byte(env.TokenSecret),
		Logger:          logger,
		StorageType:     env.StorageType,
	}
	if env.StorageType == factory.StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = env.RedisURL
		cfg.RedisConfig = &redisCfg
	}

	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := seedAdmin(context.Background(), app, env); err != nil {
		logger.Error("failed to seed admin record", slog.String("error", err.Error()))
		os.Exit(1)
	}

	r := mux.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.HandleFunc("/ws", app.WSServer.HandleWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"metrics": app.Metrics.Snapshot(),
		})
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", env.Host, env.Port),
		Handler:      r,
		ReadTimeout:  0, // websocket connections stay open indefinitely
		WriteTimeout: 0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		app.Registry.ShutdownAll()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// seedAdmin ensures the configured administrator record exists. Token
// issuance happens in the administrative login flow outside this process;
// the record here is what those tokens resolve against.
func seedAdmin(ctx context.Context, app *factory.App, env config.Env) error {
	if env.AdminPassword == "" {
		return nil
	}

	if _, err := app.Storage.GetAdminByName(ctx, env.AdminName); err == nil {
		return nil
	} else if !errors.Is(err, model.ErrAdminNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(env.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return app.Storage.SaveAdmin(ctx, &model.Admin{
		ID:             uuid.NewString(),
		DisplayName:    env.AdminName,
		CredentialHash: string(hash),
		CreatedAt:      time.Now(),
	})
}

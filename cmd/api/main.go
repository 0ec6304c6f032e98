package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/acoda/backend/internal/app"
	"github.com/zhouzirui/acoda/backend/internal/config"
	"github.com/zhouzirui/acoda/backend/internal/handler"
	"github.com/zhouzirui/acoda/backend/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("main")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Warn("failed to load .env file, continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	st, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	svcs, err := app.NewServices(ctx, cfg, st)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize services")
	}

	router := handler.NewRouter(svcs.RouterDeps(cfg))

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithComponent("main").WithField("addr", addr).Info("Acoda backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithComponent("main").WithError(err).Error("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"renderspace/internal/adapter/repo"
	"renderspace/internal/broker"
	"renderspace/internal/gateway"
	"renderspace/internal/http/handlers"
	"renderspace/internal/http/httpapi"
	"renderspace/internal/infra"
	"renderspace/internal/pipeline"
	"renderspace/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	jobs := repo.NewRenderJobRepo(dbpool)
	credits := repo.NewCreditRepo(dbpool)
	activity := repo.NewActivityRepo(dbpool)

	events := broker.New(rdb, logger)
	app := &handlers.App{
		Jobs:     jobs,
		Credits:  credits,
		Activity: activity,
		Queue:    queue.New(rdb),
		Reaper:   pipeline.NewReaper(jobs, events, cfg.RenderTimeout, logger),
		Gateway:  gateway.New(events, logger),
		Logger:   logger,
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:   cfg.JWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		StaticDir:   cfg.StoragePath,
		Logger:      logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

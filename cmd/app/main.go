package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/compose"
	cfgpkg "github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/document"
	logpkg "github.com/local/pdfstamp/internal/logger"
	"github.com/local/pdfstamp/internal/metrics"
	"github.com/local/pdfstamp/internal/server"
	"github.com/local/pdfstamp/internal/session"
	"github.com/local/pdfstamp/internal/statuscheck"
	"github.com/local/pdfstamp/internal/storage"
	"github.com/local/pdfstamp/internal/store"
	"github.com/local/pdfstamp/internal/web"
)

func main() {
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Merge history: Redis when configured, otherwise in memory
	var (
		history store.History
		pinger  statuscheck.RedisPinger
	)
	if cfg.History.RedisURL != "" {
		rh, err := store.NewRedisHistory(cfg.History.RedisURL, cfg.History.Recent)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		history, pinger = rh, rh
	} else {
		history = store.NewMemoryHistory(cfg.History.Recent)
	}
	defer history.Close()

	composer := compose.New(cfg, nil)
	deps := &session.Deps{
		Config:     cfg,
		Loader:     document.NewLoader(cfg.Render),
		Composer:   composer,
		History:    history,
		OutputPath: cfg.SessionOutputPath,
	}
	if cfg.Publish.Bucket != "" {
		pub, err := storage.NewS3Publisher(ctx, cfg.Publish.Bucket, cfg.Publish.Prefix)
		if err != nil {
			log.Warn().Err(err).Msg("s3 publishing disabled")
		} else {
			deps.Publisher = pub
		}
	}

	sessions := session.NewManager(deps, cfg.Server.SessionTTL)
	defer sessions.CloseAll()
	go sessions.Run(ctx, time.Minute)

	api := &server.Server{
		Sessions: sessions,
		Composer: composer,
		Checker: statuscheck.New(statuscheck.Options{
			Redis:      pinger,
			S3Bucket:   cfg.Publish.Bucket,
			OutputDir:  cfg.Server.OutputDir,
			ScratchDir: cfg.Merge.ScratchDir,
		}),
		History:        history,
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Dashboard: web.New(web.Options{
			History:  history,
			Sessions: sessions,
			Title:    cfg.Variant.Title,
			Username: cfg.Server.WebUsername,
			Password: cfg.Server.WebPassword,
		}),
	}
	srv := server.NewHTTPServer(":"+cfg.Server.Port, api.Routes())

	go func() {
		log.Info().
			Str("variant", cfg.Variant.Name).
			Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}

package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Schredly/packgraph/internal/archive"
	"github.com/Schredly/packgraph/internal/config"
	"github.com/Schredly/packgraph/internal/events"
	"github.com/Schredly/packgraph/internal/httpserver"
	"github.com/Schredly/packgraph/internal/install"
	"github.com/Schredly/packgraph/internal/promotion"
	"github.com/Schredly/packgraph/internal/recordtypes"
	"github.com/Schredly/packgraph/internal/store"
	"github.com/Schredly/packgraph/internal/webhook"
)

func main() {
	log := newLogger(os.Getenv("PACKGRAPH_LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db ping")
	}

	pgStore := store.NewPGStore(db)
	if err := pgStore.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("schema init")
	}

	var emitter events.Emitter = events.NoopEmitter{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaEmitter := events.NewKafkaEmitter(events.KafkaEmitterConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, log)
		defer kafkaEmitter.Close()
		emitter = kafkaEmitter
	}

	var archiver archive.Archiver
	if cfg.ArchiveBucket != "" {
		archiver, err = archive.NewS3Archiver(context.Background(), cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("archiver init")
		}
	}

	installs := install.NewEngine(pgStore, recordtypes.NewCreator(pgStore), emitter, archiver, log)
	promoter := promotion.NewEngine(pgStore, installs, emitter, log)
	sender := webhook.NewHTTPSender(time.Duration(cfg.WebhookTimeoutSeconds)*time.Second, log)
	intents := promotion.NewIntentService(pgStore, promoter, sender, emitter, log)

	server := httpserver.New(cfg, pgStore, installs, promoter, intents, log)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("packgraph service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	shutdown(httpServer, log)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Str("service", "packgraph").Logger()
}

func shutdown(s *http.Server, log zerolog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"match-service/internal/config"
	"match-service/internal/matching/embed"
	matchHnd "match-service/internal/matching/handler"
	"match-service/internal/matching/service"
	"match-service/internal/matching/textnorm"
	"match-service/internal/metrics"
	"match-service/internal/photostore"
	serverhttp "match-service/server/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logger := config.SetupLogger(cfg)
	metrics.Register()

	rankOpts, _ := cfg.Matching.RankOptions() // validated by Load
	pairWeights, _ := cfg.Matching.PairWeights()

	photos := photostore.New(cfg.UploadFolder, int64(cfg.Clip.MaxPhotoMB)<<20)
	emb := embed.Disabled()
	if cfg.Clip.URL != "" {
		emb = embed.New(
			embed.HTTPLoader(embed.HTTPConfig{
				URL:     cfg.Clip.URL,
				Model:   cfg.Clip.Model,
				Timeout: cfg.Clip.RequestTimeout,
			}, logger),
			photos,
			embed.Options{
				LoadTimeout: cfg.Clip.LoadTimeout,
				CallTimeout: cfg.Clip.RequestTimeout,
				CacheSize:   cfg.Clip.CacheSize,
			},
			logger,
		)
		// load in the background so the first ranking does not pay for it
		go emb.Warm(context.Background())
	} else {
		logger.Info().Msg("CLIP_URL not set, ranking on text only")
	}

	workers := cfg.Matching.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	ranker := service.NewRanker(textnorm.New(textnorm.French()), emb, logger, workers)
	h := matchHnd.New(ranker, matchHnd.Defaults{
		Rank:               rankOpts,
		PairWeights:        pairWeights,
		DuplicateThreshold: cfg.Matching.DuplicateThreshold,
		PairsThreshold:     cfg.Matching.PairsThreshold,
	}, int64(cfg.MaxUploadMB)<<20, logger)

	r := serverhttp.NewRouter(cfg, logger, h, emb.State)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Str("addr", cfg.Addr()).Int("workers", workers).Msg("server starting")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info().Msg("bye")
}

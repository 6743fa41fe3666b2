package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chadiek/live-interpreter/internal/config"
	"github.com/chadiek/live-interpreter/internal/history"
	"github.com/chadiek/live-interpreter/internal/httpserver"
	"github.com/chadiek/live-interpreter/internal/recognition"
	"github.com/chadiek/live-interpreter/internal/rtc"
	"github.com/chadiek/live-interpreter/internal/session"
	"github.com/chadiek/live-interpreter/internal/speechout"
	"github.com/chadiek/live-interpreter/internal/translate"
	"github.com/chadiek/live-interpreter/internal/tts"
	"github.com/chadiek/live-interpreter/internal/turnlog"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}
	logger := log.With().Str("service", "live-interpreter").Logger()

	cfg := config.Load()

	hist := history.New()

	var writer *turnlog.Writer
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		sink, err := turnlog.NewSupabaseSink(turnlog.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseKey,
			Table:          cfg.TurnLogTable,
		})
		if err != nil {
			logger.Error().Err(err).Msg("supabase sink unavailable, turns will not be persisted")
		} else {
			writer = turnlog.NewWriter(sink, logger)
		}
	}

	sinkMux := rtc.NewSinkMux()

	var speechPort tts.Port
	switch cfg.SpeechProvider {
	case "deepgram":
		speechPort = tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel, sinkMux, logger)
	default:
		speechPort = tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, sinkMux, logger)
	}
	coord := speechout.New(speechPort, cfg.SpeechSettleDelay, logger)

	rec := recognition.NewAssemblyAIPort(cfg.AssemblyAIKey, logger)
	translator := translate.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)

	ctrl := session.New(rec, translator, coord, writer, hist, session.Config{
		WarmUpDelay:           cfg.WarmUpDelay,
		PartialGraceWindow:    cfg.PartialGraceWindow,
		AutoSpeakTranslations: cfg.AutoSpeakTranslations,
		Voice:                 cfg.ElevenLabsVoiceID,
	}, logger)

	rtcHandler := rtc.NewHandler(ctrl, sinkMux, cfg.ICEServersJSON, logger)
	srv := httpserver.New(ctrl, coord, rtcHandler, cfg.AuthPassword, logger)

	serverErrors := make(chan error, 1)
	go func() { serverErrors <- srv.Start(cfg.HTTPAddress) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	ctrl.Close()
	if writer != nil {
		writer.Close()
	}
}

// Command server runs the private messaging relay: it wires configuration,
// storage, the delivery core, the external collaborators (session gateway,
// push dispatcher, assistant responder), and the HTTP/websocket transport,
// then serves until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-messenger-backend/internal/assistant"
	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/chat"
	"github.com/tbourn/go-messenger-backend/internal/config"
	"github.com/tbourn/go-messenger-backend/internal/crypto"
	httpapi "github.com/tbourn/go-messenger-backend/internal/http"
	"github.com/tbourn/go-messenger-backend/internal/notify"
	"github.com/tbourn/go-messenger-backend/internal/observability"
	"github.com/tbourn/go-messenger-backend/internal/repo"
	"github.com/tbourn/go-messenger-backend/internal/services"
	"github.com/tbourn/go-messenger-backend/internal/sysutil"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments use the process environment.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	codec, err := crypto.NewCodec(cfg.CryptoKey)
	if err != nil {
		log.Fatal().Err(err).Msg("crypto codec setup failed")
	}
	gateway, err := auth.NewJWTGateway(db, cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("session gateway setup failed")
	}

	var dispatcher notify.Dispatcher = notify.Nop{}
	if cfg.FCMKey != "" {
		dispatcher = notify.NewFCMDispatcher(db, cfg.FCMKey)
	}

	var responder assistant.Responder
	if cfg.Chat.AssistantUser != "" {
		responder = assistant.NewCompleter(assistant.CompleterConfig{
			APIKey:  cfg.Chat.AssistantAPIKey,
			APIBase: cfg.Chat.AssistantAPIBase,
			Model:   cfg.Chat.AssistantModel,
		})
	}

	hub := &chat.Hub{
		Registry:            chat.NewRegistry(),
		Messages:            &services.MessageService{DB: db, Codec: codec},
		Gateway:             gateway,
		Notifier:            dispatcher,
		Assistant:           responder,
		AssistantUserName:   cfg.Chat.AssistantUser,
		ReadRefreshInterval: cfg.Chat.ReadRefreshInterval,
		AssistantChunkDelay: cfg.Chat.AssistantChunkDelay,
	}

	engine := gin.New()
	httpapi.RegisterRoutes(engine, hub, gateway, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

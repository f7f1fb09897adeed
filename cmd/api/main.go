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

	"github.com/meetai-labs/meetai/backend/internal/config"
	"github.com/meetai-labs/meetai/backend/internal/handler"
	"github.com/meetai-labs/meetai/backend/internal/logging"
	"github.com/meetai-labs/meetai/backend/internal/model/chat"
	"github.com/meetai-labs/meetai/backend/internal/persist"
	"github.com/meetai-labs/meetai/backend/internal/service/ai"
	chatservice "github.com/meetai-labs/meetai/backend/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logging.Warn().Err(err).Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	fileStore, err := persist.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open data dir")
	}

	var streamer chatservice.Streamer
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			logging.Warn().Err(err).Msg("failed to initialize AI service, responses will fail in-transcript")
			streamer = unavailableStreamer{}
		} else {
			logging.Info().Str("model", cfg.AI.Model).Msg("AI service initialized")
			streamer = aiService
		}
	} else {
		logging.Warn().Msg("model credentials not configured, responses will fail in-transcript")
		streamer = unavailableStreamer{}
	}

	store := chatservice.NewStore()
	controller := chatservice.NewController(store, streamer)
	workspace := chatservice.NewWorkspace(store, controller, fileStore)

	sessions, err := fileStore.LoadSessions()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to load persisted sessions, starting fresh")
		sessions = nil
	}
	userName, err := fileStore.LoadUserName()
	if err != nil {
		logging.Warn().Err(err).Msg("failed to load persisted profile")
	}
	// Attach before restore so the bootstrap state reaches disk immediately.
	store.SetPersister(fileStore)
	workspace.Restore(sessions, userName)

	router := handler.NewRouter(workspace)
	startServer(ctx, cfg.Server, router)
}

// unavailableStreamer stands in when no model is configured; every turn
// fails and the controller writes the fixed notice into the transcript.
type unavailableStreamer struct{}

func (unavailableStreamer) StreamTurn(_ context.Context, _ []chat.Message) (chatservice.ChunkStream, error) {
	return nil, errors.New("chat model not configured")
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logging.Info().Str("addr", serverCfg.Addr).Msg("MeetAi backend listening")
	if err := runServer(ctx, srv); err != nil {
		logging.Fatal().Err(err).Msg("server error")
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

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fsy-chat/internal/config"
	"github.com/zhouzirui/fsy-chat/internal/handler"
	"github.com/zhouzirui/fsy-chat/internal/logging"
	"github.com/zhouzirui/fsy-chat/internal/model/category"
	"github.com/zhouzirui/fsy-chat/internal/service/ai"
	"github.com/zhouzirui/fsy-chat/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Pretty, os.Stderr)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	categories := category.NewMemoryStore(category.Seed())
	chatService := chat.NewService()
	responder := newResponder(ctx, cfg.AI)

	router := handler.NewRouter(categories, chatService, responder)

	startServer(ctx, cfg.Server, router)
}

// newResponder prefers the model responder when it is requested and
// configured, and falls back to the echo responder otherwise.
func newResponder(ctx context.Context, cfg config.AIConfig) ai.Responder {
	if cfg.Responder != config.ResponderModel {
		log.Info().Dur("delay", cfg.EchoDelay).Msg("using echo responder")
		return ai.NewEchoResponder(cfg.EchoDelay)
	}
	if !cfg.Enabled() {
		log.Warn().Msg("Ark 凭证未配置，回退到 echo 回复")
		return ai.NewEchoResponder(cfg.EchoDelay)
	}

	responder, err := ai.NewModelResponder(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize model responder, falling back to echo - 请检查 Ark 模型相关环境变量")
		return ai.NewEchoResponder(cfg.EchoDelay)
	}
	log.Info().Str("model", cfg.Model).Msg("model responder initialized")
	return responder
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Push streams end with the process context so Shutdown can drain them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	log.Info().Str("addr", addr).Msg("fsy-chat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
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

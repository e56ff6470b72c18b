package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/config"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/export"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	chatService := chat.NewService(cfg.Session.TTL)
	extractor := document.NewExtractor()

	// Initialize AI service. answerer stays a nil interface when unavailable.
	var answerer qa.Answerer
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, cfg.QA)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查模型相关环境变量")
		} else {
			answerer = aiService
			policy := aiService.Policy()
			log.Printf("AI service initialized: provider=%s model=%s retries=%d base=%s jitter=%s",
				cfg.AI.Provider, cfg.AI.Model, policy.MaxRetries, policy.BaseDelay, policy.MaxJitter)
		}
	} else {
		log.Println("模型凭证未配置，上传与问答将返回 503")
	}

	qaService := qa.NewService(chatService, extractor, answerer, export.Options{Escape: cfg.Export.EscapeLaTeX})

	router := handler.NewRouter(qaService, cfg.Document.MaxUploadBytes)

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

	log.Printf("PDF chatbot backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
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

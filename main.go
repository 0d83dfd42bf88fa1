package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Chative-cs-agent/server/internal/agent/cache"
	"github.com/Chative-cs-agent/server/internal/agent/conversations"
	"github.com/Chative-cs-agent/server/internal/agent/coordinator"
	"github.com/Chative-cs-agent/server/internal/agent/feedback"
	"github.com/Chative-cs-agent/server/internal/agent/handlers"
	"github.com/Chative-cs-agent/server/internal/agent/llm"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/repo"
	"github.com/Chative-cs-agent/server/internal/agent/retriever"
	"github.com/Chative-cs-agent/server/internal/agent/router"
	"github.com/Chative-cs-agent/server/internal/agent/tasks"
	"github.com/Chative-cs-agent/server/internal/config"
	"github.com/Chative-cs-agent/server/internal/server"
	"github.com/Chative-cs-agent/server/internal/session"
	logx "github.com/Chative-cs-agent/server/pkg/logger"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		logx.Init()
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Env(), Level: cfg.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logx.Fatal().Err(err).Msg("server stopped")
	}
	logx.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.AppConfig) error {
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return fmt.Errorf("initialise redis: %w", err)
	}
	defer rdb.Close()
	logx.Info().Msg("connected to redis")

	store, err := repo.NewSQLiteStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	if cfg.Store.SeedDemo {
		if err := store.SeedDemoOrders(ctx); err != nil {
			return fmt.Errorf("seed demo orders: %w", err)
		}
	}

	docs, err := retriever.LoadDocuments(cfg.Knowledge.Path)
	if err != nil {
		return fmt.Errorf("load knowledge: %w", err)
	}
	gateway := cache.NewGateway(rdb)
	policies := retriever.NewCached(
		retriever.NewService(retriever.NewKeywordRetriever(retriever.FilterCategory(docs, retriever.CategoryPolicy))),
		gateway, retriever.CategoryPolicy, cfg.Cache.PolicyTTL)
	products := retriever.NewCached(
		retriever.NewService(retriever.NewKeywordRetriever(retriever.FilterCategory(docs, retriever.CategoryProduct))),
		gateway, retriever.CategoryProduct, cfg.Cache.ProductTTL)

	// nil completers switch routing to rules and answers to templates
	var classifier, answerer llm.Completer
	if cfg.Gemini.Enabled() {
		models, err := llm.NewGeminiModels(ctx, cfg.Gemini, cfg.Router, cfg.Answer)
		if err != nil {
			return err
		}
		classifier, answerer = models.Router, models.Answer
	} else {
		logx.Warn().Msg("GEMINI_API_KEY not set, running with rule routing and template answers")
	}

	var logistics model.LogisticsService
	if cfg.Logistics.Enabled() {
		logistics = repo.NewLogisticsClient(cfg.Logistics)
	}

	intentRouter := router.New(classifier)
	logx.Info().Bool("model_routing", intentRouter.ModelEnabled()).Msg("intent router ready")

	convs := conversations.NewMessagesManager(repo.NewRedisSessionRepository(rdb, cfg.Session), cfg.Session)
	runner := tasks.NewRunner(cfg.Background)
	knowledge := handlers.KnowledgeConfig{Business: cfg.Business, Limit: cfg.Knowledge.Limit}

	coord := coordinator.New(coordinator.Deps{
		Router: intentRouter,
		Handlers: coordinator.Handlers{
			Orders:     handlers.NewOrderHandler(store, logistics),
			AfterSales: handlers.NewAfterSalesHandler(policies, answerer, knowledge),
			Product:    handlers.NewProductHandler(products, answerer, knowledge),
			Canned:     handlers.NewCannedHandler(),
		},
		Cache:         gateway,
		HotPolicy:     cache.NewHotPolicy(cfg.Cache),
		Tasks:         runner,
		Store:         store,
		Conversations: convs,
		ResponseTTL:   cfg.Cache.ResponseTTL,
	})

	analyzer := feedback.NewAnalyzer(store, cfg.Feedback)
	go analyzer.Run(ctx)

	srv := server.New(cfg.HTTP, server.Deps{
		Chat:            coord,
		WebSocket:       session.NewManager(coord, cfg.WebSocket),
		Sessions:        convs,
		Transcripts:     store,
		Feedback:        store,
		FeedbackReports: analyzer,
		Checks: map[string]server.HealthCheck{
			"redis":  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"sqlite": store.Ping,
		},
	})

	serveErr := srv.ListenAndServe(ctx)

	// let detached persistence finish before closing the stores
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Background.Timeout+5*time.Second)
	defer cancel()
	if err := runner.Wait(waitCtx); err != nil {
		logx.Warn().Err(err).Msg("background tasks did not finish before shutdown")
	}
	return serveErr
}

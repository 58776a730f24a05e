// Command api runs the conversation engagement engine and its HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/toran-bot/engage/internal/assemble"
	"github.com/toran-bot/engage/internal/config"
	"github.com/toran-bot/engage/internal/dedup"
	"github.com/toran-bot/engage/internal/engage"
	"github.com/toran-bot/engage/internal/engine"
	"github.com/toran-bot/engage/internal/handler"
	"github.com/toran-bot/engage/internal/heat"
	"github.com/toran-bot/engage/internal/history"
	"github.com/toran-bot/engage/internal/intent"
	"github.com/toran-bot/engage/internal/lane"
	"github.com/toran-bot/engage/internal/middleware"
	natsclient "github.com/toran-bot/engage/internal/platform/nats"
	"github.com/toran-bot/engage/internal/state"
	"github.com/toran-bot/engage/internal/summary"
	"github.com/toran-bot/engage/pkg/logger"
	"github.com/toran-bot/engage/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "engage-api", cfg.TracingEndpoint)
		if err != nil {
			log.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tracing.Shutdown(context.Background(), tp); err != nil {
				log.Error("failed to shut down tracer", zap.Error(err))
			}
		}()
	}

	nats, err := natsclient.Connect(ctx, natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer nats.Close()

	hist := history.NewNATS(nats, 0)
	if err := hist.EnsureStream(ctx); err != nil {
		log.Fatal("failed to ensure history stream", zap.Error(err))
	}

	responder := engine.NewNATSResponder(nats, 0)
	if err := responder.EnsureStream(ctx); err != nil {
		log.Fatal("failed to ensure dispatch stream", zap.Error(err))
	}

	// Redis enables multi-instance dedup and state; without it the engine
	// runs single-instance on in-process stores.
	var (
		deduper dedup.Deduplicator
		states  state.Store
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		deduper = dedup.NewRedis(rdb, cfg.DedupRetention, log)
		states = state.NewRedis(rdb)
		log.Info("using Redis-backed dedup and state", zap.String("addr", cfg.RedisAddr))
	} else {
		deduper = dedup.NewMemory(ctx, cfg.DedupRetention, log)
		states = state.NewMemory()
		log.Info("using in-process dedup and state")
	}

	var semantic intent.SemanticClassifier
	if cfg.ClassifierProvider != "" {
		apiKey := cfg.OpenAIAPIKey
		if intent.Provider(cfg.ClassifierProvider) == intent.ProviderAnthropic {
			apiKey = cfg.AnthropicAPIKey
		}
		semantic, err = intent.NewSemanticClassifier(intent.Provider(cfg.ClassifierProvider), apiKey, cfg.ClassifierModel)
		if err != nil {
			log.Warn("semantic classifier disabled", zap.Error(err))
		} else {
			log.Info("semantic classifier enabled", zap.String("provider", cfg.ClassifierProvider))
		}
	}

	lanes := lane.NewManager(cfg.LaneIdleTimeout, cfg.LaneQueueSize, log)

	eng := engine.New(engine.Options{
		Dedup:      deduper,
		Classifier: intent.NewClassifier(semantic, cfg.ClassifierTimeout, log),
		Scorer:     heat.NewScorer(0, cfg.AmbientDecay, cfg.ImagesPerMessage),
		Machine: engage.NewMachine(engage.Config{
			StickyTTL:       cfg.StickyTTL,
			MuteDuration:    cfg.MuteDuration,
			ActiveModeScale: cfg.ActiveModeScale,
		}),
		States:    states,
		History:   hist,
		Assembler: assemble.New(hist, assemble.Config{
			RecentMessages:   cfg.ContextMessages,
			SummaryMessages:  cfg.SummaryMessages,
			ImagesPerMessage: cfg.ImagesPerMessage,
			ImagesPerWindow:  cfg.ImagesPerWindow,
		}),
		Scheduler: summary.NewScheduler(summary.Config{
			WeeklyBoundaryDay:  cfg.WeeklyBoundaryDay,
			WeeklyBoundaryHour: cfg.WeeklyBoundaryHour,
			Location:           time.Local,
		}),
		Lanes:            lanes,
		Responder:        responder,
		Logger:           log,
		BotUserID:        cfg.BotUserID,
		DefaultThreshold: cfg.DefaultThreshold,
	})

	go runSummaryTicker(ctx, eng, cfg.SummaryTick, log)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, eng, nats, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if err := lanes.Close(shutdownCtx); err != nil {
		log.Error("lane drain failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func newRouter(cfg *config.Config, eng *engine.Engine, nats *natsclient.Client, log *logger.Logger) http.Handler {
	events := handler.NewEventHandler(eng)
	chats := handler.NewChatHandler(eng)
	health := handler.NewHealthHandler(nats)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Chat-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/events", events.Receive)
		r.Post("/events/member-joined", events.MemberJoined)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JWTAuth(cfg.JWTSecret, log))
		r.Get("/diagnostics", chats.Diagnostics)
		r.Route("/chats/{chatID}", func(r chi.Router) {
			r.Get("/state", chats.GetState)
			r.Put("/settings", chats.UpdateSettings)
			r.Post("/optout", chats.OptOut)
			r.Post("/reset", chats.Reset)
			r.Post("/summary", chats.Summarize)
		})
	})

	return r
}

func runSummaryTicker(ctx context.Context, eng *engine.Engine, tick time.Duration, log *logger.Logger) {
	if tick <= 0 {
		tick = 5 * time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := eng.EvaluateSummaries(ctx); err != nil {
				log.Warn("summary tick failed", zap.Error(err))
			}
		}
	}
}

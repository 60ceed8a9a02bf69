package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/platform/cache"
	"github.com/p-n-ai/pai-course/internal/platform/config"
	"github.com/p-n-ai/pai-course/internal/platform/database"
	"github.com/p-n-ai/pai-course/internal/platform/logging"
	"github.com/p-n-ai/pai-course/internal/server"
	"github.com/p-n-ai/pai-course/internal/session"
	"github.com/p-n-ai/pai-course/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	router, err := newAIRouter(cfg.AI)
	if err != nil {
		slog.Error("failed to configure AI providers", "error", err)
		os.Exit(1)
	}

	a, err := newApp(ctx, cfg, router)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     a.handler,
		ReadTimeout: 10 * time.Second,
		// No write timeout: generation can take minutes and event streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "providers", router.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newAIRouter registers a provider for every configured key, in fallback order.
func newAIRouter(cfg config.AIConfig) (*ai.Router, error) {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey)
		if err != nil {
			return nil, err
		}
		router.Register("anthropic", p)
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey))
	}
	if cfg.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(cfg.Google.APIKey))
	}
	if cfg.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL))
	}
	if !router.HasProvider() {
		return nil, ai.ErrNoProvider
	}
	return router, nil
}

type app struct {
	handler  http.Handler
	sessions *session.Manager
	closers  []func()
}

func (a *app) close() {
	a.sessions.Shutdown()
	a.closeAll()
}

// newApp connects the configured backends and builds the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config, router *ai.Router) (*app, error) {
	a := &app{}
	checks := map[string]server.HealthChecker{"ai": router}

	var (
		contentStore content.Store = store.NewMemoryStore()
		pgEvents     course.EventSink
	)
	if cfg.Store.Backend == config.BackendPostgres {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.closeAll()
			return nil, err
		}
		pg, err := store.NewPostgresStore(db.Pool)
		if err != nil {
			a.closeAll()
			return nil, err
		}
		contentStore = pg
		pgEvents = course.NewPostgresEventSink(db.Pool)
		checks["database"] = db
	}

	var contexts session.ContextStore = session.NewMemoryContextStore()
	if cfg.Store.SessionBackend == config.BackendRedis {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.closeAll()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		contexts = session.NewRedisContextStore(c, cfg.Course.SessionTTL)
		checks["cache"] = c
	}

	prompts, err := content.LoadPrompts(cfg.Course.PromptsPath)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	gen, err := content.NewGenerator(content.GeneratorConfig{
		AI:      router,
		Prompts: prompts,
		Budget:  ai.NewInMemoryBudget(cfg.Course.TokenBudget),
	})
	if err != nil {
		a.closeAll()
		return nil, err
	}

	hub := server.NewHub()
	sinks := course.MultiSink{hub}
	if pgEvents != nil {
		sinks = append(sinks, pgEvents)
	}

	a.sessions = session.NewManager(contexts, func(id string, c content.CourseContext) (*course.Player, error) {
		return course.NewPlayer(course.Config{
			SessionID:    id,
			Course:       c,
			Loader:       content.NewLoader(c, contentStore, gen),
			Events:       sinks,
			PreloadDelay: cfg.Course.PreloadDelay,
		})
	})
	a.handler = server.New(server.Config{Sessions: a.sessions, Hub: hub, Checks: checks})

	slog.Info("backends ready",
		"store", cfg.Store.Backend,
		"sessions", cfg.Store.SessionBackend,
		"token_budget", cfg.Course.TokenBudget,
	)
	return a, nil
}

func (a *app) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

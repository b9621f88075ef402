package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"studyhub-backend/internal/achievement"
	"studyhub-backend/internal/config"
	"studyhub-backend/internal/database"
	"studyhub-backend/internal/handlers"
	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/repository"
	"studyhub-backend/internal/router"
	"studyhub-backend/internal/session"
	"studyhub-backend/internal/websocket"
	"studyhub-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ logger initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("🚀 Starting StudyHub backend...", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("✗ PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal("✗ Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
		log.Fatal("✗ Database migration failed", "error", err)
	}
	log.Info("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewStudySessionRepo(pool)
	quizRepo := repository.NewQuizRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	achievementRepo := repository.NewAchievementRepo(pool)

	// ──── Step 5: Load Badge Catalog ────
	catalog, err := achievement.DefaultCatalog()
	if err != nil {
		log.Fatal("✗ Badge catalog invalid", "error", err)
	}
	if err := achievementRepo.SeedBadges(ctx, catalog.Badges()); err != nil {
		log.Fatal("✗ Badge seeding failed", "error", err)
	}
	log.Info("✓ Badge catalog loaded", "badges", catalog.Len())

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.WSTicketTTL)
	queue := worker.NewRedisQueue(redisClients.Queue)
	enqueuer := worker.NewEnqueuer(queue, log.With("component", "enqueuer"))

	machine := session.NewMachine(sessionRepo)
	registry := session.NewRegistry(machine, enqueuer, log.With("component", "sessions"))

	engine := achievement.NewEngine(
		catalog,
		repository.NewHistory(sessionRepo, quizRepo),
		userRepo,
		achievementRepo,
		achievement.WithLocation(cfg.StreakLocation()),
	)

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, log.With("component", "hub"))
	wsHandler := websocket.NewHandler(jwtAuth, registry, wsHub, log.With("component", "ws"))

	// ──── Initialize Handlers ────
	handlerLog := log.With("component", "http")
	r := router.New(ctx, router.Deps{
		JWTAuth:      jwtAuth,
		Sessions:     handlers.NewStudySessionHandler(sessionRepo, handlerLog),
		Badges:       handlers.NewBadgeHandler(catalog),
		Achievements: handlers.NewAchievementHandler(achievementRepo, catalog, enqueuer, handlerLog),
		QuizResults:  handlers.NewQuizResultHandler(quizRepo, enqueuer, handlerLog),
		Preferences:  handlers.NewPreferencesHandler(userRepo, enqueuer, handlerLog),
		Tickets:      handlers.NewTicketHandler(jwtAuth, handlerLog),
		WebSocket:    wsHandler.HandleWebSocket,
		Checks: map[string]router.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisClients.Ping,
		},
		FrontendURL: cfg.FrontendURL,
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	workerPool := worker.NewPool(
		queue,
		engine,
		worker.NewRedisPublisher(redisClients.Queue),
		log.With("component", "worker"),
		cfg.AchievementWorkers,
	)

	g, gctx := errgroup.WithContext(ctx)

	// ──── Step 7: Start Achievement Workers ────
	g.Go(func() error {
		return workerPool.Run(gctx)
	})

	// ──── Step 8: Start HTTP Server ────
	g.Go(func() error {
		log.Info("✓ StudyHub backend ready",
			"api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port),
			"ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Hijacked sockets are not tracked by Shutdown.
		n := wsHub.CloseAll()
		drainSessions(shutdownCtx, registry)
		log.Info("✓ WebSocket connections closed", "connections", n, "open_sessions", registry.Len())

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		log.Info("✓ HTTP server stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("✗ Server stopped with error", "error", err)
		os.Exit(1)
	}
}

// drainSessions waits for closed connections to finish completing their
// sessions.
func drainSessions(ctx context.Context, registry *session.Registry) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

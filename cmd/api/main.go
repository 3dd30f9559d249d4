package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	achieverepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/achievement/repo"
	activityrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/activity/repo"
	identityrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/identity/repo"
	ledgerrepo "github.com/ovaphlow/pitchfork/service-reputation-go/internal/ledger/repo"
	"github.com/ovaphlow/pitchfork/service-reputation-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-reputation-go/pkg/utilities"
)

// ensureSchema creates all tables and seeds the built-in achievement
// definitions. Every statement is idempotent; prefer migrations once
// the schema settles.
func ensureSchema(ctx context.Context, db *sqlx.DB) error {
	if err := identityrepo.NewUserRepo(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("users schema: %w", err)
	}
	if err := ledgerrepo.NewLedgerRepo(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ledger schema: %w", err)
	}
	if err := activityrepo.NewActivityRepo(db).EnsureSchema(ctx); err != nil {
		return fmt.Errorf("activity schema: %w", err)
	}
	ar := achieverepo.NewAchievementRepo(db)
	if err := ar.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("achievement schema: %w", err)
	}
	if err := ar.SeedDefaults(ctx); err != nil {
		return fmt.Errorf("achievement seed: %w", err)
	}
	return nil
}

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-reputation-go")

	// init db
	cfg := database.ConfigFromEnv()
	sqlDB, err := database.Connect(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	defer sqlxDB.Close()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ensureSchema(schemaCtx, sqlxDB); err != nil {
		cancelSchema()
		sugar.Fatalf("ensure schema: %v", err)
	}
	cancelSchema()

	// optional leaderboard cache
	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnf("redis unavailable, leaderboard cache disabled: %v", err)
			_ = rdb.Close()
			rdb = nil
		}
		cancelPing()
	}
	cacheTTL := 15 * time.Second
	if v := os.Getenv("LEADERBOARD_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cacheTTL = time.Duration(n) * time.Second
		}
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Info("service is running; press Ctrl+C to stop")

	// mount http server
	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8433"
	}
	handler := router.RegisterRoutes(sugar, sqlxDB, rdb, cacheTTL)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// run server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// ping db once more
	if err := sqlDB.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	// shutdown http server
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	if rdb != nil {
		_ = rdb.Close()
	}

	sugar.Info("goodbye")
}

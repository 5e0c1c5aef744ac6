package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarimov/payguard/internal/config"
	"github.com/akarimov/payguard/internal/httpapi"
	"github.com/akarimov/payguard/internal/ratelimit"
	"github.com/akarimov/payguard/internal/service"
	"github.com/akarimov/payguard/internal/store"
	"github.com/akarimov/payguard/internal/store/filestore"
	"github.com/akarimov/payguard/internal/store/memory"
	"github.com/akarimov/payguard/internal/store/redisstore"
	"github.com/akarimov/payguard/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	log.Printf("using %s storage backend", cfg.StoreBackend)

	authService, err := service.NewAuthService(st)
	if err != nil {
		st.Close()
		log.Fatalf("failed to initialize auth service: %v", err)
	}
	sessionService := service.NewSessionService(st)
	paymentService := service.NewPaymentService(st)

	rateLimiter := ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	handler := httpapi.NewHandler(authService, sessionService, paymentService)
	router := httpapi.NewRouter(handler, sessionService, rateLimiter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Background maintenance
	go rateLimiter.StartCleanupWorker(ctx, 1*time.Hour)
	go sweepExpiredSessions(ctx, st, cfg.SessionSweepInterval)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	if err := st.Close(); err != nil {
		log.Printf("store close error: %v", err)
	}

	log.Println("done")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendFile:
		return filestore.Open(cfg.FileStorePath)
	case config.BackendSQLite:
		return sqlite.Open(sqlite.Config{
			Path:          cfg.DBPath,
			EncryptionKey: cfg.DBEncryptionKey,
		})
	case config.BackendRedis:
		return redisstore.Open(context.Background(), redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StoreBackend)
	}
}

// sweepExpiredSessions garbage-collects expired session rows. Expiry is
// already enforced on every lookup; this only reclaims space.
func sweepExpiredSessions(ctx context.Context, st store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := st.DeleteExpiredSessions(ctx, time.Now().Unix())
			if err != nil {
				log.Printf("session sweep error: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("session sweep removed %d expired sessions", removed)
			}
		}
	}
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"idhub.org/internal/auth"
	"idhub.org/internal/config"
	"idhub.org/internal/httpapi"
	"idhub.org/internal/obs"
)

var version = "0.3.1"

// storeDirectory adapts the user store to the read-only lookup the gate needs.
type storeDirectory struct {
	store auth.Store
}

func (d storeDirectory) Find(ctx context.Context, id string) (*auth.User, error) {
	return d.store.Users(ctx).Find(ctx, id)
}

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	codec, err := auth.NewCodec([]byte(cfg.JWTSecret), cfg.Issuer)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	tokens, err := auth.NewTokenService(codec, auth.NewRedisRevocationStore(rdb),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	store := auth.NewPGStore(db)
	users, err := auth.NewUserService(store, tokens, cfg.DefaultRole)
	if err != nil {
		log.Fatalf("user service: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	gate, err := auth.NewGate(tokens, storeDirectory{store: store})
	if err != nil {
		log.Fatalf("gate: %v", err)
	}

	api := httpapi.New(users, rbac, gate,
		httpapi.ReadyProbe{DB: db, Redis: rdb},
		httpapi.Options{
			Version:       version,
			RatePerSecond: cfg.RateLimitPerSecond,
			RateBurst:     cfg.RateLimitBurst,
			MaxBodyBytes:  cfg.MaxBodyBytes,
		})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting idhub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = rdb.Close()
	_ = db.Close()
	log.Println("Stopped")
}

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

	"keygate.org/internal/auth"
	"keygate.org/internal/config"
	"keygate.org/internal/httpapi"
	"keygate.org/internal/obs"
	"keygate.org/internal/store/memory"
	"keygate.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		db    *sql.DB
		store auth.Store
	)
	if cfg.DB.DSN != "" {
		db, err = pg.Open(cfg.DB.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pg.New(db)
	} else {
		log.Print("KEYGATE_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	codec, err := auth.NewTokenCodec(cfg.Tokens.AccessSecret, cfg.Tokens.RefreshSecret,
		auth.WithAccessTTL(cfg.Tokens.AccessTTL),
		auth.WithRefreshTTL(cfg.Tokens.RefreshTTL),
		auth.WithIssuer(cfg.Tokens.Issuer),
	)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	blacklist := auth.NewBlacklist(codec, auth.WithSweepInterval(cfg.Tokens.SweepInterval))
	blacklist.Start()
	defer blacklist.Stop()

	hasher := auth.NewHasher(cfg.BcryptCost)

	sessions, err := auth.NewSessionManager(store, codec, blacklist, hasher)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}
	rbac, err := auth.NewRBACService(store, hasher, sessions)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	resolver := auth.NewPermissionResolver(store)

	// Make sure the builtin permission catalog exists before serving.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Permissions(startupCtx).Ensure(startupCtx, auth.BuiltinPermissions); err != nil {
		log.Fatalf("ensure permissions: %v", err)
	}
	cancelStartup()

	api := httpapi.New(sessions, rbac, resolver, httpapi.ReadyProbe{DB: db}, httpapi.Options{
		Version:       version,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		AuthPerSecond: cfg.Rate.AuthPerSecond,
		AuthBurst:     cfg.Rate.AuthBurst,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting keygate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

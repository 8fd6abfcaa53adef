package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"livesh/api/internal/app"
	"livesh/api/internal/authpw"
	"livesh/api/internal/blob"
	"livesh/api/internal/broker"
	"livesh/api/internal/config"
	"livesh/api/internal/filestore"
	"livesh/api/internal/registry"
	"livesh/api/internal/search"
	"livesh/api/internal/session"
	"livesh/api/internal/share"
	"livesh/api/internal/store"
	"livesh/api/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	owner, err := authpw.NewService(cfg.OwnerName, cfg.OwnerPassword)
	if err != nil {
		log.Fatalf("owner account setup failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	files := filestore.New(cfg.ReposDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var redisClient *redis.Client
	var sessions app.RefreshStore = dataStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		log.Printf(`{"level":"info","msg":"refresh sessions in redis"}`)
		sessions = session.NewRedisStoreWithClient(redisClient)
	} else {
		log.Printf(`{"level":"info","msg":"refresh sessions in postgres"}`)
	}

	shareService := share.New(dataStore, redisClient, cfg.ShareTTL)

	var blobService *blob.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobService, err = blob.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("blob storage setup failed: %v", err)
		}
	}

	reg := registry.New()
	hub := ws.NewHub(reg, cfg.CORSOrigin)
	defer hub.Close()

	changeBroker := broker.New(dataStore, files, shareService, hub)

	service := app.New(cfg, dataStore, sessions, files, changeBroker, shareService, searchService, blobService, owner)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf(`{"level":"warn","msg":"bootstrap failed, will retry on restart","error":%q}`, err.Error())
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/", httpServer.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("livesh API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

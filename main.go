package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/alimasry/go-review-tracker/config"
	"github.com/alimasry/go-review-tracker/server"
	"github.com/alimasry/go-review-tracker/store"
)

func main() {
	configPath := flag.String("config", "review.toml", "path to the TOML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides the config file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	hub := server.NewHub(st)
	go hub.Run()
	defer hub.Close()

	srv := &http.Server{Addr: cfg.Addr, Handler: server.NewHandler(hub, cfg.StaticDir)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting server on %s (store: %s)", cfg.Addr, cfg.Store.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Print(err)
	}
}

// openStore builds the configured backend. The returned func flushes and
// releases it.
func openStore(ctx context.Context, cfg config.Config) (store.DocumentStore, func(), error) {
	if cfg.Store.Backend == config.BackendMemory {
		return store.NewMemoryStore(), func() {}, nil
	}

	client, err := firestore.NewClient(ctx, cfg.Firestore.Project)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore client: %w", err)
	}
	fs := store.NewFirestoreStore(client, cfg.Firestore.Collection)
	if cfg.Store.Backend == config.BackendFirestore {
		return fs, func() { client.Close() }, nil
	}

	interval, err := cfg.Store.Interval()
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	cached := store.NewCachedStore(fs, interval)
	return cached, func() {
		cached.Close()
		client.Close()
	}, nil
}

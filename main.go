package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/access"
	"chatrelay/internal/api"
	"chatrelay/internal/chat"
	"chatrelay/internal/config"
	"chatrelay/internal/http"
	"chatrelay/internal/profiles"
	"chatrelay/internal/storage"
	"chatrelay/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chatrelay", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "Optional env file with configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	guard := access.NewGuard(bbStorage)
	directory := profiles.NewDirectory(bbStorage)
	hub := ws.NewHub(ctx, guard, bbStorage, cfg.BroadcastDedupTTL)

	chatService := chat.New(chat.Config{
		Store:     bbStorage,
		Guard:     guard,
		Directory: directory,
		Notifier:  hub,
	})

	apiServer := http.NewAPIServer(
		api.New(chatService, directory),
		ws.NewServer(hub, cfg.AllowedOrigins, cfg.ConnectionBuffer),
		cfg.APIAddr,
		cfg.AllowedOrigins,
	)

	adminServer := http.NewAdminServer(api.NewAdminHandler(hub), cfg.AdminAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		return adminServer.Start()
	})

	// Start API Server
	g.Go(func() error {
		return apiServer.Start()
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by http.Server.
		hub.Close()
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}

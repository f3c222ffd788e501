/*
Package main is the entry point for the ticket chat service.

It is responsible for loading configuration, initializing the global logging system,
opening the ticket store, starting the idle channel reaper, setting up the HTTP server,
and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ticketchat/internal/app/chat"
	"ticketchat/internal/app/db"
	"ticketchat/internal/app/db/memstore"
	"ticketchat/internal/configs"
	"ticketchat/internal/handler"
	"ticketchat/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("memory_store", cfg.UsesMemoryStore()).
		Dur("reap_interval", cfg.ReapInterval).
		Dur("idle_timeout", cfg.ChannelIdleTimeout).
		Bool("touch_on_activity", cfg.TouchOnActivity).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the ticket store
	var store chat.Store
	closeStore := func() {}

	if cfg.UsesMemoryStore() {
		logx.Warn("Using the in-memory ticket store. Tickets and messages are lost on restart.")
		store = memstore.New()
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to connect to database")
		}
		store = db.NewStore(pool)
		closeStore = pool.Close
	}

	// Initialize the chat service and its reaper
	registry := chat.NewRegistry()
	opts := chat.OptionsFromConfig(cfg)
	service := chat.NewService(store, registry, opts)
	reaper := chat.NewReaper(registry, opts)

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(reaperCtx)
	}()

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Chat:   service,
		Config: cfg,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Ticket chat server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	stopReaper()
	wg.Wait()

	// hijacked websocket connections are not covered by server.Shutdown
	service.Shutdown()
	closeStore()

	logx.Info("Server gracefully stopped.")
}

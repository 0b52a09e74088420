package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restyle/internal/config"
	"restyle/internal/proxy"
	"restyle/internal/telemetry"
	"restyle/internal/upstream"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[proxy] ", log.LstdFlags|log.Lmsgprefix)

	if !cfg.Upstream.CredentialConfigured() {
		logger.Println("warning: upstream credential missing or placeholder; transform requests will be rejected")
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Telemetry, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	upstreamClient, err := upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		Model:          cfg.Upstream.Model,
		StyleDirective: cfg.Upstream.StyleDirective,
		OutputSize:     cfg.Upstream.OutputSize,
		Quality:        cfg.Upstream.Quality,
	})
	if err != nil {
		logger.Fatalf("upstream client setup failed: %v", err)
	}

	app := proxy.NewServer(logger, upstreamClient, cfg.Upstream, cfg.Proxy)

	// The write timeout has to outlast the long route's upstream budget or
	// the server would cut off slow transformations mid-response.
	httpServer := &http.Server{
		Addr:         cfg.Proxy.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Proxy.LongUpstreamTimeout + 20*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Proxy.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kexi/pypi-cache-proxy/internal/config"
	"github.com/kexi/pypi-cache-proxy/internal/server"
)

func main() {
	configPath := flag.String("config", getEnvOrDefault("CONFIG_PATH", "./configs/config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded successfully from: %s", *configPath)

	httpServer, err := server.NewHTTPServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create HTTP server: %v", err)
	}

	errChan := make(chan error, 1)
	go func() {
		log.Println("Starting HTTP server...")
		if err := httpServer.Start(); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v, initiating graceful shutdown...", sig)
	case err := <-errChan:
		log.Printf("Server error: %v, initiating shutdown...", err)
	}

	shutdownTimeout := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdownTimeout = cfg.Server.ShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Application exited")
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

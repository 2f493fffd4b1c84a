package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"policyqa/loader/internal"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
}

func main() {
	cfg := loadConfig()
	loader := internal.NewDocumentLoader(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(fileChan)
		loader.WatchFiles(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		loader.ProcessFiles(ctx, fileChan)
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	log.Println("Received shutdown signal, shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped successfully")
	case <-time.After(5 * time.Second):
		log.Println("Timeout waiting for goroutines to stop, forcing shutdown...")
	}
}

func loadConfig() internal.Config {
	return internal.Config{
		MonitoringTime: envDuration("LOADER_MONITORING_SECS", 3),
		SourceDir:      envOr("LOADER_SOURCE_DIR", "documents/source"),
		ArchiveDir:     envOr("LOADER_ARCHIVE_DIR", "documents/archive"),
		BadDir:         envOr("LOADER_BAD_DIR", "documents/bad"),
		ChunkSize:      envInt("CHUNK_SIZE", 200),
		ChunkOverlap:   envInt("CHUNK_OVERLAP", 20),
		ConverterURL:   envOr("CONVERTER_URL", "http://localhost:5001/v1/convert/file"),
		CoreURL:        envOr("CORE_URL", "http://localhost:8080"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallbackSecs int) time.Duration {
	return time.Duration(envInt(key, fallbackSecs)) * time.Second
}

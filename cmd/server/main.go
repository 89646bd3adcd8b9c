package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/phuslu/log"

	"github.com/docuchat/rag-pdf-chat/internal/api"
	"github.com/docuchat/rag-pdf-chat/internal/chunker"
	"github.com/docuchat/rag-pdf-chat/internal/config"
	"github.com/docuchat/rag-pdf-chat/internal/core"
	"github.com/docuchat/rag-pdf-chat/internal/index"
	"github.com/docuchat/rag-pdf-chat/internal/pdf"
	"github.com/docuchat/rag-pdf-chat/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.DefaultLogger = log.Logger{
		Level:      parseLogLevel(config.AppConfig.LogLevel),
		TimeFormat: "15:04:05",
		Writer:     &log.ConsoleWriter{ColorOutput: false},
	}

	// Initialize the in-memory document and conversation store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer dbStore.Close()

	// Initialize the LLM capability. A missing API key starts the server
	// degraded: status reports not ready and chat/upload answer 503.
	var llm core.Capability
	geminiService, err := core.NewGeminiService()
	if err != nil {
		log.Warn().Err(err).Msg("Generation capability unavailable, starting degraded")
	} else {
		llm = geminiService
		defer geminiService.Close()
	}

	splitter, err := chunker.NewSplitter(config.AppConfig.ChunkSize, config.AppConfig.ChunkOverlap)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid chunker configuration")
	}

	vectorIndex := index.New(config.AppConfig.EmbeddingDim)
	ragService := core.NewRAGService(dbStore, vectorIndex, llm, config.AppConfig.TopK, config.AppConfig.HistoryWindow)

	controller, err := core.NewSystemController(dbStore, vectorIndex, ragService, llm,
		pdf.NewExtractor(), splitter, config.AppConfig.PDFsDir, config.AppConfig.MaxUploadBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize system controller")
	}

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(controller, config.AppConfig.MaxUploadBytes)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,  // PDF uploads can be large
		WriteTimeout: 120 * time.Second, // Ingestion embeds every chunk before responding
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting gracefully")
}

func parseLogLevel(level string) log.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return log.DebugLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/phuslu/log"
)

type Config struct {
	GeminiAPIKey string // empty key starts the server degraded: status reports not ready
	DatabaseURL  string `validate:"required"`
	HTTPPort     string `validate:"required,numeric"`
	LogLevel     string
	PDFsDir      string `validate:"required"`

	MaxUploadBytes int64 `validate:"gt=0"`

	ChunkSize     int `validate:"gt=0"`
	ChunkOverlap  int `validate:"gte=0,ltfield=ChunkSize"`
	TopK          int `validate:"gt=0"`
	HistoryWindow int `validate:"gt=0"`

	EmbeddingModel  string `validate:"required"`
	EmbeddingDim    int    `validate:"gt=0"`
	GenerationModel string `validate:"required"`

	EmbedTimeoutSecs    int `validate:"gt=0"`
	GenerateTimeoutSecs int `validate:"gt=0"`
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		// In-memory database: documents and conversation state never outlive the process.
		DatabaseURL:         getEnv("DATABASE_URL", "file:ragchat?mode=memory&cache=shared"),
		HTTPPort:            getEnv("HTTP_PORT", "8000"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		PDFsDir:             getEnv("PDFS_DIR", "pdfs"),
		MaxUploadBytes:      int64(getEnvAsInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024,
		ChunkSize:           getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 200),
		TopK:                getEnvAsInt("RETRIEVAL_TOP_K", 4),
		HistoryWindow:       getEnvAsInt("HISTORY_WINDOW", 10),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDim:        getEnvAsInt("EMBEDDING_DIM", 768),
		GenerationModel:     getEnv("GENERATION_MODEL", "gemini-2.5-flash"),
		EmbedTimeoutSecs:    getEnvAsInt("EMBED_TIMEOUT_SECS", 30),
		GenerateTimeoutSecs: getEnvAsInt("GENERATE_TIMEOUT_SECS", 60),
	}

	if err := validator.New().Struct(AppConfig); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Warn().Msg("GEMINI_API_KEY not set; starting without a generation capability")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

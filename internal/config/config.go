package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	ServerPort   int    `validate:"min=1,max=65535"`
	DatabasePath string `validate:"required"`
	AppURL       string `validate:"required,url"`
	AppEnv       string `validate:"oneof=development production test"`
	LogLevel     string `validate:"oneof=trace debug info warn error"`
	CORSOrigins  []string

	JWTSecret          string `validate:"required"`
	AuthWebhookSecret  string `validate:"required"`
	TokenEncryptionKey string `validate:"required,base64"`

	QuickBooks QuickBooksConfig
	OpenAI     OpenAIConfig
	Pinecone   PineconeConfig
	AI         AIConfig

	RedisURL            string
	SyncSchedule        string `validate:"required"`
	SyncLookbackDays    int    `validate:"min=1,max=365"`
	CategorizeBatchSize int    `validate:"min=1,max=1000"`
}

// QuickBooksConfig holds the Intuit app credentials.
type QuickBooksConfig struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	RedirectURI  string `validate:"required,url"`
	Environment  string `validate:"oneof=sandbox production"`
}

// OpenAIConfig holds the OpenAI credentials and model names.
type OpenAIConfig struct {
	APIKey         string `validate:"required"`
	BaseURL        string `validate:"omitempty,url"`
	Model          string `validate:"required"`
	EmbeddingModel string `validate:"required"`
}

// PineconeConfig points at a single Pinecone index.
type PineconeConfig struct {
	APIKey    string `validate:"required"`
	IndexHost string `validate:"required,url"`
	Namespace string
}

// AIConfig holds the confidence and similarity thresholds.
type AIConfig struct {
	HighConfidenceThreshold   float64 `validate:"gt=0,lte=1"`
	MediumConfidenceThreshold float64 `validate:"gt=0,lte=1,ltefield=HighConfidenceThreshold"`
	SimilarityThreshold       float64 `validate:"gt=0,lte=1"`
}

// IsProduction reports whether the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	lookback, err := strconv.Atoi(getEnv("SYNC_LOOKBACK_DAYS", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_LOOKBACK_DAYS: %w", err)
	}
	batch, err := strconv.Atoi(getEnv("CATEGORIZE_BATCH_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATEGORIZE_BATCH_SIZE: %w", err)
	}
	high, err := getFloat("AI_HIGH_CONFIDENCE", 0.9)
	if err != nil {
		return nil, err
	}
	medium, err := getFloat("AI_MEDIUM_CONFIDENCE", 0.75)
	if err != nil {
		return nil, err
	}
	similarity, err := getFloat("AI_SIMILARITY_THRESHOLD", 0.8)
	if err != nil {
		return nil, err
	}

	appURL := getEnv("APP_URL", "http://localhost:3000")
	cfg := &Config{
		ServerPort:         port,
		DatabasePath:       getEnv("DATABASE_PATH", "./qbcat.db"),
		AppURL:             appURL,
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", appURL)),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AuthWebhookSecret:  os.Getenv("AUTH_WEBHOOK_SECRET"),
		TokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),
		QuickBooks: QuickBooksConfig{
			ClientID:     os.Getenv("QB_CLIENT_ID"),
			ClientSecret: os.Getenv("QB_CLIENT_SECRET"),
			RedirectURI:  os.Getenv("QB_REDIRECT_URI"),
			Environment:  getEnv("QB_ENVIRONMENT", "sandbox"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        os.Getenv("OPENAI_BASE_URL"),
			Model:          getEnv("OPENAI_MODEL", "gpt-4-turbo-preview"),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Pinecone: PineconeConfig{
			APIKey:    os.Getenv("PINECONE_API_KEY"),
			IndexHost: os.Getenv("PINECONE_INDEX_HOST"),
			Namespace: os.Getenv("PINECONE_NAMESPACE"),
		},
		AI: AIConfig{
			HighConfidenceThreshold:   high,
			MediumConfidenceThreshold: medium,
			SimilarityThreshold:       similarity,
		},
		RedisURL:            os.Getenv("REDIS_URL"),
		SyncSchedule:        getEnv("SYNC_SCHEDULE", "0 3 * * *"),
		SyncLookbackDays:    lookback,
		CategorizeBatchSize: batch,
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

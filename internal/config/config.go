package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LLM providers.
const (
	ProviderOpenAI          = "openai"
	ProviderOpenAIResponses = "openai-responses"
	ProviderAnthropic       = "anthropic"
	ProviderOllama          = "ollama"
	ProviderBedrock         = "bedrock"
)

// Conversation store backends.
const (
	StoreSQLite    = "sqlite"
	StoreSurrealDB = "surrealdb"
	StoreMemory    = "memory"
)

// Config holds all configuration values.
type Config struct {
	// Corpus and index
	CorpusPath  string
	IndexDir    string
	WatchCorpus bool

	// Workflow
	RetrieveK      int
	SelectMax      int
	StreamBuffer   int
	GenerateTitles bool

	// Conversation store
	Store      string
	SQLitePath string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// LLM
	LLMProvider      string
	LLMModel         string
	LLMTemperature   float64
	TitleTemperature float64
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	OllamaHost       string
	AWSRegion        string

	// HTTP
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		CorpusPath:  getEnv("AIACT_CORPUS_PATH", "data/ai_act.yaml"),
		IndexDir:    getEnv("AIACT_INDEX_DIR", "data/tfidf_index"),
		WatchCorpus: getBool("AIACT_WATCH_CORPUS", false),

		RetrieveK:      getInt("AIACT_RETRIEVE_K", 10),
		SelectMax:      getInt("AIACT_SELECT_MAX", 3),
		StreamBuffer:   getInt("AIACT_STREAM_BUFFER", 16),
		GenerateTitles: getBool("AIACT_GENERATE_TITLES", true),

		Store:      strings.ToLower(getEnv("AIACT_STORE", StoreSQLite)),
		SQLitePath: getEnv("AIACT_SQLITE_PATH", "db/chatbot.sqlite"),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "aiact"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "chatbot"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:      strings.ToLower(getEnv("AIACT_LLM_PROVIDER", ProviderOpenAI)),
		LLMModel:         getEnv("AIACT_LLM_MODEL", "gpt-4o-mini"),
		LLMTemperature:   getFloat("AIACT_LLM_TEMPERATURE", 0),
		TitleTemperature: getFloat("AIACT_TITLE_TEMPERATURE", 0.4),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:        getEnv("AWS_REGION", "eu-central-1"),

		ServerAddr: getEnv("AIACT_SERVER_ADDR", ":8484"),

		LogFile:  getEnv("AIACT_LOG_FILE", "/tmp/aiact.log"),
		LogLevel: parseLogLevel(getEnv("AIACT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return b
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

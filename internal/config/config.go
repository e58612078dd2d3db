package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Admission AdmissionConfig
	Store     StoreConfig
	WebSocket WebSocketConfig
	Ai        AIConfig
	Places    PlacesConfig
	Pipeline  PipelineConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
	OtelEnabled        bool
	OtlpEndpoint       string
	ServiceName        string
}

// AdmissionConfig bounds concurrent search runs.
type AdmissionConfig struct {
	MaxConcurrent int
	MaxQueueWait  time.Duration
}

type StoreConfig struct {
	Backend         string // "memory" or "redis"
	TTL             time.Duration
	CleanupInterval time.Duration
	RedisPrefix     string
}

type WebSocketConfig struct {
	Path           string
	Heartbeat      time.Duration
	AllowedOrigins []string
	AuthRequired   bool
	SendBuffer     int
}

type AIConfig struct {
	LLMProvider string // "ollama" or "openai"
	LLMModel    string
	BaseURL     string
	APIKey      string

	GateTimeout        time.Duration
	IntentTimeout      time.Duration
	BaseFiltersTimeout time.Duration
	RouteMapperTimeout time.Duration
	AssistantTimeout   time.Duration
}

type PlacesConfig struct {
	GoogleAPIKey    string
	GoogleBaseURL   string
	GeoapifyAPIKey  string
	GeoapifyBaseURL string
	DefaultRadius   int
	MaxResults      int
	Region          string
	FetchTimeout    time.Duration
	GeocodeCacheTTL time.Duration
}

type PipelineConfig struct {
	Timeout time.Duration
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() *Config {
	cfg := &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log.csv"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtlpEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:        getEnv("OTEL_SERVICE_NAME", "food-search-be"),
		},
		Admission: AdmissionConfig{
			MaxConcurrent: getEnvAsInt("MAX_CONCURRENT_SEARCHES", 10),
			MaxQueueWait:  getEnvAsDuration("MAX_QUEUE_WAIT_MS", 5000, time.Millisecond),
		},
		Store: StoreConfig{
			Backend:         strings.ToLower(getEnv("STATE_BACKEND", StoreMemory)),
			TTL:             getEnvAsDuration("STATE_TTL_SECONDS", 600, time.Second),
			CleanupInterval: getEnvAsDuration("STATE_CLEANUP_INTERVAL_SECONDS", 60, time.Second),
			RedisPrefix:     getEnv("STATE_REDIS_PREFIX", "foodsearch:state:"),
		},
		WebSocket: WebSocketConfig{
			Path:           getEnv("WS_PATH", "/ws/search"),
			Heartbeat:      getEnvAsDuration("WS_HEARTBEAT_SECONDS", 30, time.Second),
			AllowedOrigins: getEnvAsList("WS_ALLOWED_ORIGINS", nil),
			AuthRequired:   getEnvAsBool("WS_AUTH_REQUIRED", false),
			SendBuffer:     getEnvAsInt("WS_SEND_BUFFER", 64),
		},
		Ai: AIConfig{
			LLMProvider:        getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:           getEnv("LLM_MODEL", "llama3"),
			BaseURL:            getEnv("LLM_BASE_URL", ""),
			APIKey:             getEnv("LLM_API_KEY", ""),
			GateTimeout:        getEnvAsDuration("LLM_GATE_TIMEOUT_MS", 4000, time.Millisecond),
			IntentTimeout:      getEnvAsDuration("LLM_INTENT_TIMEOUT_MS", 6000, time.Millisecond),
			BaseFiltersTimeout: getEnvAsDuration("LLM_BASE_FILTERS_TIMEOUT_MS", 6000, time.Millisecond),
			RouteMapperTimeout: getEnvAsDuration("LLM_ROUTE_MAPPER_TIMEOUT_MS", 6000, time.Millisecond),
			AssistantTimeout:   getEnvAsDuration("LLM_ASSISTANT_TIMEOUT_MS", 10000, time.Millisecond),
		},
		Places: PlacesConfig{
			GoogleAPIKey:    getEnv("GOOGLE_PLACES_API_KEY", ""),
			GoogleBaseURL:   getEnv("GOOGLE_PLACES_BASE_URL", ""),
			GeoapifyAPIKey:  getEnv("GEOAPIFY_API_KEY", ""),
			GeoapifyBaseURL: getEnv("GEOAPIFY_BASE_URL", ""),
			DefaultRadius:   getEnvAsInt("PLACES_DEFAULT_RADIUS_METERS", 1500),
			MaxResults:      getEnvAsInt("PLACES_MAX_RESULTS", 20),
			Region:          getEnv("PLACES_REGION", ""),
			FetchTimeout:    getEnvAsDuration("PLACES_FETCH_TIMEOUT_MS", 8000, time.Millisecond),
			GeocodeCacheTTL: getEnvAsDuration("GEOCODE_CACHE_TTL_SECONDS", 3600, time.Second),
		},
		Pipeline: PipelineConfig{
			Timeout: getEnvAsDuration("PIPELINE_TIMEOUT_MS", 45000, time.Millisecond),
		},
	}

	if cfg.Admission.MaxConcurrent < 1 {
		cfg.Admission.MaxConcurrent = 1
	}
	if cfg.Store.Backend != StoreRedis {
		cfg.Store.Backend = StoreMemory
	}
	return cfg
}

func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration reads an integer count of unit. Non-positive values use the fallback.
func getEnvAsDuration(key string, fallback int, unit time.Duration) time.Duration {
	n := getEnvAsInt(key, fallback)
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * unit
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strings.TrimSpace(strValue) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

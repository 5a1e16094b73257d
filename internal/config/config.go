package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	OpenRouter OpenRouterConfig
	ElevenLabs ElevenLabsConfig
	Store      StoreConfig
	Storage    StorageConfig
	R2         R2Config
	Zitadel    ZitadelConfig
	Gateway    GatewayConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	AdminSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	FairytalesPerHour int
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type ElevenLabsConfig struct {
	APIKey          string
	BaseURL         string
	VoiceID         string
	FallbackVoiceID string
	ModelID         string
	Timeout         int // seconds
}

// StoreConfig selects the job record backend
type StoreConfig struct {
	Driver     string // redis | sqlite
	SQLitePath string
	RecordTTL  time.Duration
}

// StorageConfig selects the audio artifact backend
type StorageConfig struct {
	Driver    string // filesystem | r2
	Dir       string
	PublicURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

// PipelineConfig tunes the generation pipeline
type PipelineConfig struct {
	Dispatcher                  string // asynq | inline
	Concurrency                 int
	TextMaxAttempts             int
	TextRetryBackoff            time.Duration
	WrongLanguageMatchThreshold int
	OpeningWindow               int
	MaxChunkChars               int
	MinAudioBytes               int64
	ReclaimTimeout              time.Duration
	ReclaimSchedule             string
}

func Load() (*Config, error) {
	// Local development convenience; a missing .env is fine
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("ADMIN_SECRET")
	readSecret("OPENROUTER_API_KEY")
	readSecret("ELEVEN_LABS_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.admin_secret", "ADMIN_SECRET")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("ratelimit.fairytales_per_hour", "RATELIMIT_FAIRYTALES_PER_HOUR")
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("openrouter.base_url", "OPENROUTER_BASE_URL")
	_ = v.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	_ = v.BindEnv("openrouter.timeout", "OPENROUTER_TIMEOUT")
	_ = v.BindEnv("elevenlabs.api_key", "ELEVEN_LABS_API_KEY")
	_ = v.BindEnv("elevenlabs.base_url", "ELEVEN_LABS_BASE_URL")
	_ = v.BindEnv("elevenlabs.voice_id", "ELEVEN_LABS_VOICE_ID")
	_ = v.BindEnv("elevenlabs.fallback_voice_id", "ELEVEN_LABS_FALLBACK_VOICE_ID")
	_ = v.BindEnv("elevenlabs.model_id", "ELEVEN_LABS_MODEL")
	_ = v.BindEnv("elevenlabs.timeout", "ELEVEN_LABS_TIMEOUT")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.sqlite_path", "STORE_SQLITE_PATH")
	_ = v.BindEnv("store.record_ttl", "STORE_RECORD_TTL")
	_ = v.BindEnv("storage.driver", "STORAGE_DRIVER")
	_ = v.BindEnv("storage.dir", "STORAGE_DIR")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = v.BindEnv("pipeline.dispatcher", "PIPELINE_DISPATCHER")
	_ = v.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")
	_ = v.BindEnv("pipeline.text_max_attempts", "PIPELINE_TEXT_MAX_ATTEMPTS")
	_ = v.BindEnv("pipeline.text_retry_backoff", "PIPELINE_TEXT_RETRY_BACKOFF")
	_ = v.BindEnv("pipeline.wrong_language_match_threshold", "PIPELINE_WRONG_LANGUAGE_MATCHES")
	_ = v.BindEnv("pipeline.opening_window", "PIPELINE_OPENING_WINDOW")
	_ = v.BindEnv("pipeline.max_chunk_chars", "PIPELINE_MAX_CHUNK_CHARS")
	_ = v.BindEnv("pipeline.min_audio_bytes", "PIPELINE_MIN_AUDIO_BYTES")
	_ = v.BindEnv("pipeline.reclaim_timeout", "PIPELINE_RECLAIM_TIMEOUT")
	_ = v.BindEnv("pipeline.reclaim_schedule", "PIPELINE_RECLAIM_SCHEDULE")

	setDefaults(v)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			AdminSecret: v.GetString("server.admin_secret"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			FairytalesPerHour: v.GetInt("ratelimit.fairytales_per_hour"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:  v.GetString("openrouter.api_key"),
			BaseURL: v.GetString("openrouter.base_url"),
			Model:   v.GetString("openrouter.model"),
			Timeout: v.GetInt("openrouter.timeout"),
		},
		ElevenLabs: ElevenLabsConfig{
			APIKey:          v.GetString("elevenlabs.api_key"),
			BaseURL:         v.GetString("elevenlabs.base_url"),
			VoiceID:         v.GetString("elevenlabs.voice_id"),
			FallbackVoiceID: v.GetString("elevenlabs.fallback_voice_id"),
			ModelID:         v.GetString("elevenlabs.model_id"),
			Timeout:         v.GetInt("elevenlabs.timeout"),
		},
		Store: StoreConfig{
			Driver:     v.GetString("store.driver"),
			SQLitePath: v.GetString("store.sqlite_path"),
			RecordTTL:  v.GetDuration("store.record_ttl"),
		},
		Storage: StorageConfig{
			Driver:    v.GetString("storage.driver"),
			Dir:       v.GetString("storage.dir"),
			PublicURL: v.GetString("storage.public_url"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
		Pipeline: PipelineConfig{
			Dispatcher:                  v.GetString("pipeline.dispatcher"),
			Concurrency:                 v.GetInt("pipeline.concurrency"),
			TextMaxAttempts:             v.GetInt("pipeline.text_max_attempts"),
			TextRetryBackoff:            v.GetDuration("pipeline.text_retry_backoff"),
			WrongLanguageMatchThreshold: v.GetInt("pipeline.wrong_language_match_threshold"),
			OpeningWindow:               v.GetInt("pipeline.opening_window"),
			MaxChunkChars:               v.GetInt("pipeline.max_chunk_chars"),
			MinAudioBytes:               v.GetInt64("pipeline.min_audio_bytes"),
			ReclaimTimeout:              v.GetDuration("pipeline.reclaim_timeout"),
			ReclaimSchedule:             v.GetString("pipeline.reclaim_schedule"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.fairytales_per_hour", 20)

	// OpenRouter defaults
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "rekaai/reka-flash-3")
	v.SetDefault("openrouter.timeout", 60)

	// ElevenLabs defaults
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io/v1")
	v.SetDefault("elevenlabs.model_id", "eleven_multilingual_v2")
	v.SetDefault("elevenlabs.timeout", 120)

	// Job records and artifacts
	v.SetDefault("store.driver", "redis")
	v.SetDefault("store.sqlite_path", "fairytales.db")
	v.SetDefault("store.record_ttl", "0s")
	v.SetDefault("storage.driver", "filesystem")
	v.SetDefault("storage.dir", "./public")
	v.SetDefault("storage.public_url", "")

	// Gateway defaults
	v.SetDefault("gateway.enabled", false)

	// Pipeline defaults
	v.SetDefault("pipeline.dispatcher", "asynq")
	v.SetDefault("pipeline.concurrency", 10)
	v.SetDefault("pipeline.text_max_attempts", 3)
	v.SetDefault("pipeline.text_retry_backoff", "1s")
	v.SetDefault("pipeline.wrong_language_match_threshold", 6)
	v.SetDefault("pipeline.opening_window", 100)
	v.SetDefault("pipeline.max_chunk_chars", 4800)
	v.SetDefault("pipeline.min_audio_bytes", 10000)
	v.SetDefault("pipeline.reclaim_timeout", "30m")
	v.SetDefault("pipeline.reclaim_schedule", "@every 5m")
}

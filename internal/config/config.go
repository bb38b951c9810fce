package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config contains all runtime settings for the daily quote service.
type Config struct {
	Env              string
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	PublicBaseURL    string
	Timezone         string
	Location         *time.Location

	LogLevel  string
	LogFormat string

	CronSecret string
	AdminToken string

	DatabaseURL      string
	RedisURL         string
	RateLimitBackend string

	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	LLMMaxTokens    int

	VoiceProvider               string
	ElevenLabsAPIKey            string
	ElevenLabsWSBaseURL         string
	ElevenLabsModelID           string
	VoicePrimary                string
	VoiceSecondary              string
	VoiceTertiary               string
	ElevenLabsRequestsPerSecond float64
	VoiceQuality                string

	ObjectStore     string
	NatsURL         string
	NatsBucket      string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	// S3PublicBaseURL replaces the bucket URL in published links, e.g. a CDN origin.
	S3PublicBaseURL string
	AudioPathPrefix string

	GenerationTimeout    time.Duration
	VoiceTimeout         time.Duration
	BalancerLookbackDays int
}

// IsProduction reports whether authorization checks are enforced.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load reads a .env file when present, then environment variables, and applies safe defaults.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

// LoadFiles is Load with explicit dotenv paths.
func LoadFiles(paths ...string) (Config, error) {
	if len(paths) > 0 {
		if err := godotenv.Load(paths...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}
	return fromEnv()
}

func fromEnv() (Config, error) {
	cfg := Config{
		Env:              strings.ToLower(envOrDefault("APP_ENV", EnvDevelopment)),
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "dailyquote"),
		PublicBaseURL:    strings.TrimRight(envOrDefault("APP_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		Timezone:         envOrDefault("APP_TIMEZONE", "UTC"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),
		CronSecret:       stringsTrimSpace("CRON_SECRET"),
		AdminToken:       stringsTrimSpace("ADMIN_TOKEN"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		RedisURL:         stringsTrimSpace("REDIS_URL"),
		RateLimitBackend: strings.ToLower(envOrDefault("RATE_LIMIT_BACKEND", "memory")),

		LLMProvider:     strings.ToLower(envOrDefault("LLM_PROVIDER", "auto")),
		OpenAIAPIKey:    stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:   stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:     stringsTrimSpace("OPENAI_MODEL"),
		AnthropicAPIKey: stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:  stringsTrimSpace("ANTHROPIC_MODEL"),
		LLMMaxTokens:    120,

		VoiceProvider:       strings.ToLower(envOrDefault("VOICE_PROVIDER", "auto")),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsModelID:   envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		// Premade voices; override per deployment.
		VoicePrimary:                envOrDefault("ELEVENLABS_VOICE_PRIMARY", "pNInz6obpgDQGcFmaJgB"),
		VoiceSecondary:              envOrDefault("ELEVENLABS_VOICE_SECONDARY", "ErXwobaYiN019PkySvjV"),
		VoiceTertiary:               envOrDefault("ELEVENLABS_VOICE_TERTIARY", "VR6AewLTigWG4xSOukaG"),
		ElevenLabsRequestsPerSecond: 2,
		VoiceQuality:                strings.ToLower(envOrDefault("VOICE_QUALITY", "high")),

		ObjectStore:     strings.ToLower(envOrDefault("OBJECT_STORE", "memory")),
		NatsURL:         envOrDefault("NATS_URL", "nats://127.0.0.1:4222"),
		NatsBucket:      envOrDefault("NATS_BUCKET", "daily-audio"),
		S3Bucket:        stringsTrimSpace("S3_BUCKET"),
		S3Region:        envOrDefault("S3_REGION", "us-east-1"),
		S3Endpoint:      stringsTrimSpace("S3_ENDPOINT"),
		S3PublicBaseURL: strings.TrimRight(stringsTrimSpace("S3_PUBLIC_BASE_URL"), "/"),
		AudioPathPrefix: envOrDefault("AUDIO_PATH_PREFIX", "daily-audio"),

		ShutdownTimeout:      15 * time.Second,
		GenerationTimeout:    5 * time.Minute,
		VoiceTimeout:         3 * time.Minute,
		BalancerLookbackDays: 30,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout, err = durationFromEnv("GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.VoiceTimeout, err = durationFromEnv("VOICE_TIMEOUT", cfg.VoiceTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.BalancerLookbackDays, err = intFromEnv("BALANCER_LOOKBACK_DAYS", cfg.BalancerLookbackDays)
	if err != nil {
		return Config{}, err
	}
	cfg.ElevenLabsRequestsPerSecond, err = floatFromEnv("ELEVENLABS_REQUESTS_PER_SECOND", cfg.ElevenLabsRequestsPerSecond)
	if err != nil {
		return Config{}, err
	}

	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("APP_TIMEZONE parse error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Env != EnvProduction && c.Env != EnvDevelopment {
		return fmt.Errorf("invalid APP_ENV: %q (expected production|development)", c.Env)
	}
	if err := oneOf("RATE_LIMIT_BACKEND", c.RateLimitBackend, "memory", "redis"); err != nil {
		return err
	}
	if c.RateLimitBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("RATE_LIMIT_BACKEND=redis requires REDIS_URL")
	}
	if err := oneOf("LLM_PROVIDER", c.LLMProvider, "auto", "openai", "anthropic", "mock"); err != nil {
		return err
	}
	if err := oneOf("VOICE_PROVIDER", c.VoiceProvider, "auto", "elevenlabs", "mock"); err != nil {
		return err
	}
	if err := oneOf("VOICE_QUALITY", c.VoiceQuality, "high", "standard", "compressed"); err != nil {
		return err
	}
	if err := oneOf("OBJECT_STORE", c.ObjectStore, "memory", "nats", "s3"); err != nil {
		return err
	}
	if c.ObjectStore == "s3" && c.S3Bucket == "" {
		return fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.BalancerLookbackDays <= 0 {
		return fmt.Errorf("BALANCER_LOOKBACK_DAYS must be positive")
	}
	if c.ElevenLabsRequestsPerSecond < 0 {
		return fmt.Errorf("ELEVENLABS_REQUESTS_PER_SECOND must be >= 0")
	}
	if c.GenerationTimeout < time.Second {
		return fmt.Errorf("GENERATION_TIMEOUT must be at least 1s")
	}
	if c.VoiceTimeout <= 0 || c.VoiceTimeout > c.GenerationTimeout {
		return fmt.Errorf("VOICE_TIMEOUT must be positive and no longer than GENERATION_TIMEOUT")
	}
	if c.IsProduction() && c.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required when APP_ENV=production")
	}
	return nil
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: %q (expected %s)", key, v, strings.Join(allowed, "|"))
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

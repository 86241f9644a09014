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
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	Storage   StorageConfig
	JobStore  JobStoreConfig
	Queue     QueueConfig
	Pipeline  PipelineConfig
	FFmpeg    FFmpegConfig
	Catalog   CatalogConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret  string
	Enabled bool
}

type RateLimitConfig struct {
	GeneratePerHour int
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ScriptModel string
	ImageModel  string
	SpeechModel string
	Voice       string
}

type StorageConfig struct {
	Backend string // memory, disk or s3
	Dir     string
	S3      S3Config
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

type JobStoreConfig struct {
	Backend  string // memory or redis
	TTLHours int
}

func (c JobStoreConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type QueueConfig struct {
	Backend     string // local or asynq
	Concurrency int
	Name        string
}

type PipelineConfig struct {
	MaxAttempts   int
	BackoffBaseMs int
	BackoffMaxMs  int
	MinDuration   int
	MaxDuration   int
	Timeouts      StageTimeouts
}

// StageTimeouts are per-stage execution limits, in seconds
type StageTimeouts struct {
	Script      int
	Image       int
	Narration   int
	Composition int
}

type FFmpegConfig struct {
	Path string
}

type CatalogConfig struct {
	Path string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("OPENAI_API_KEY")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.log_format", "LOG_FORMAT")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.enabled", "JWT_ENABLED")
	_ = viper.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.script_model", "OPENAI_SCRIPT_MODEL")
	_ = viper.BindEnv("openai.image_model", "OPENAI_IMAGE_MODEL")
	_ = viper.BindEnv("openai.speech_model", "OPENAI_SPEECH_MODEL")
	_ = viper.BindEnv("openai.voice", "OPENAI_VOICE")
	_ = viper.BindEnv("storage.backend", "STORAGE_BACKEND")
	_ = viper.BindEnv("storage.dir", "STORAGE_DIR")
	_ = viper.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	_ = viper.BindEnv("storage.s3.region", "S3_REGION")
	_ = viper.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.s3.bucket", "S3_BUCKET")
	_ = viper.BindEnv("storage.s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("jobstore.backend", "JOBSTORE_BACKEND")
	_ = viper.BindEnv("jobstore.ttl_hours", "JOBSTORE_TTL_HOURS")
	_ = viper.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = viper.BindEnv("queue.concurrency", "QUEUE_CONCURRENCY")
	_ = viper.BindEnv("queue.name", "QUEUE_NAME")
	_ = viper.BindEnv("pipeline.max_attempts", "PIPELINE_MAX_ATTEMPTS")
	_ = viper.BindEnv("ffmpeg.path", "FFMPEG_PATH")
	_ = viper.BindEnv("catalog.path", "CATALOG_PATH")

	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.log_format", "text")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.enabled", false)
	viper.SetDefault("ratelimit.generate_per_hour", 10)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.script_model", "gpt-4o-mini")
	viper.SetDefault("openai.image_model", "dall-e-3")
	viper.SetDefault("openai.speech_model", "tts-1")
	viper.SetDefault("openai.voice", "onyx")

	// Storage defaults
	viper.SetDefault("storage.backend", "disk")
	viper.SetDefault("storage.dir", "/tmp/storyreel")
	viper.SetDefault("storage.s3.region", "auto")

	viper.SetDefault("jobstore.backend", "memory")
	viper.SetDefault("jobstore.ttl_hours", 24)
	viper.SetDefault("queue.backend", "local")
	viper.SetDefault("queue.concurrency", 8)
	viper.SetDefault("queue.name", "video_generation")

	// Pipeline defaults
	viper.SetDefault("pipeline.max_attempts", 3)
	viper.SetDefault("pipeline.backoff_base_ms", 2000)
	viper.SetDefault("pipeline.backoff_max_ms", 30000)
	viper.SetDefault("pipeline.min_duration", 10)
	viper.SetDefault("pipeline.max_duration", 25)
	viper.SetDefault("pipeline.timeouts.script", 120)
	viper.SetDefault("pipeline.timeouts.image", 180)
	viper.SetDefault("pipeline.timeouts.narration", 120)
	viper.SetDefault("pipeline.timeouts.composition", 900)

	viper.SetDefault("ffmpeg.path", "ffmpeg")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			LogFormat: viper.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:  viper.GetString("jwt.secret"),
			Enabled: viper.GetBool("jwt.enabled"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
		},
		OpenAI: OpenAIConfig{
			APIKey:      viper.GetString("openai.api_key"),
			BaseURL:     viper.GetString("openai.base_url"),
			ScriptModel: viper.GetString("openai.script_model"),
			ImageModel:  viper.GetString("openai.image_model"),
			SpeechModel: viper.GetString("openai.speech_model"),
			Voice:       viper.GetString("openai.voice"),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(viper.GetString("storage.backend")),
			Dir:     viper.GetString("storage.dir"),
			S3: S3Config{
				Endpoint:        viper.GetString("storage.s3.endpoint"),
				Region:          viper.GetString("storage.s3.region"),
				AccessKeyID:     viper.GetString("storage.s3.access_key_id"),
				SecretAccessKey: viper.GetString("storage.s3.secret_access_key"),
				Bucket:          viper.GetString("storage.s3.bucket"),
				PublicURL:       viper.GetString("storage.s3.public_url"),
			},
		},
		JobStore: JobStoreConfig{
			Backend:  strings.ToLower(viper.GetString("jobstore.backend")),
			TTLHours: viper.GetInt("jobstore.ttl_hours"),
		},
		Queue: QueueConfig{
			Backend:     strings.ToLower(viper.GetString("queue.backend")),
			Concurrency: viper.GetInt("queue.concurrency"),
			Name:        viper.GetString("queue.name"),
		},
		Pipeline: PipelineConfig{
			MaxAttempts:   viper.GetInt("pipeline.max_attempts"),
			BackoffBaseMs: viper.GetInt("pipeline.backoff_base_ms"),
			BackoffMaxMs:  viper.GetInt("pipeline.backoff_max_ms"),
			MinDuration:   viper.GetInt("pipeline.min_duration"),
			MaxDuration:   viper.GetInt("pipeline.max_duration"),
			Timeouts: StageTimeouts{
				Script:      viper.GetInt("pipeline.timeouts.script"),
				Image:       viper.GetInt("pipeline.timeouts.image"),
				Narration:   viper.GetInt("pipeline.timeouts.narration"),
				Composition: viper.GetInt("pipeline.timeouts.composition"),
			},
		},
		FFmpeg: FFmpegConfig{
			Path: viper.GetString("ffmpeg.path"),
		},
		Catalog: CatalogConfig{
			Path: viper.GetString("catalog.path"),
		},
	}

	return cfg, nil
}

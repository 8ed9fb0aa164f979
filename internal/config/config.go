package config

import (
	"os"
	"strings"
	"time"

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
	Server      ServerConfig
	Storage     StorageConfig
	Media       MediaConfig
	Recognition RecognitionConfig
	Selector    SelectorConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Worker      WorkerConfig
	R2          R2Config
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	BodyLimitMB int
}

// StorageConfig locates the working directories and controls the retention sweep.
type StorageConfig struct {
	Root          string
	MaxAge        time.Duration
	SweepInterval time.Duration
}

type MediaConfig struct {
	FFmpeg  string
	FFprobe string
	Timeout time.Duration // per external call, 0 disables
}

type RecognitionConfig struct {
	Provider string // "gemini" or "openai"
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// SelectorConfig describes the external track selection process. The identity
// string is appended as the final argument.
type SelectorConfig struct {
	Command string
	Args    []string
	WorkDir string
	Timeout time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	ProcessPerHour int
}

type WorkerConfig struct {
	Enabled     bool
	Concurrency int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("RECOGNITION_API_KEY")
	readSecret("GOOGLE_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = v.BindEnv("storage.root", "STORAGE_ROOT")
	_ = v.BindEnv("storage.max_age", "STORAGE_MAX_AGE")
	_ = v.BindEnv("storage.sweep_interval", "STORAGE_SWEEP_INTERVAL")
	_ = v.BindEnv("media.ffmpeg", "FFMPEG_BIN")
	_ = v.BindEnv("media.ffprobe", "FFPROBE_BIN")
	_ = v.BindEnv("media.timeout", "MEDIA_TIMEOUT")
	_ = v.BindEnv("recognition.provider", "RECOGNITION_PROVIDER")
	_ = v.BindEnv("recognition.api_key", "RECOGNITION_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("recognition.model", "RECOGNITION_MODEL")
	_ = v.BindEnv("recognition.base_url", "RECOGNITION_BASE_URL")
	_ = v.BindEnv("recognition.timeout", "RECOGNITION_TIMEOUT")
	_ = v.BindEnv("selector.command", "PYTHON_BIN", "SELECTOR_COMMAND")
	_ = v.BindEnv("selector.args", "SELECTOR_ARGS")
	_ = v.BindEnv("selector.workdir", "SELECTOR_WORKDIR")
	_ = v.BindEnv("selector.timeout", "SELECTOR_TIMEOUT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.process_per_hour", "RATELIMIT_PROCESS_PER_HOUR")
	_ = v.BindEnv("worker.enabled", "WORKER_ENABLED")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")

	// Defaults
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "")
	v.SetDefault("server.body_limit_mb", 512)

	// Storage defaults
	v.SetDefault("storage.root", ".")
	v.SetDefault("storage.max_age", time.Hour)
	v.SetDefault("storage.sweep_interval", 10*time.Minute)

	// Media defaults
	v.SetDefault("media.ffmpeg", "ffmpeg")
	v.SetDefault("media.ffprobe", "ffprobe")
	v.SetDefault("media.timeout", time.Duration(0))

	// Recognition defaults
	v.SetDefault("recognition.provider", "gemini")
	v.SetDefault("recognition.model", "gemini-2.5-flash")
	v.SetDefault("recognition.base_url", "")
	v.SetDefault("recognition.timeout", 90*time.Second)

	// Selector defaults
	v.SetDefault("selector.command", "python3")
	v.SetDefault("selector.args", []string{"main.py"})
	v.SetDefault("selector.workdir", ".")
	v.SetDefault("selector.timeout", time.Duration(0))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.process_per_hour", 30)
	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.concurrency", 4)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("server.port"),
			Env:         v.GetString("server.env"),
			LogLevel:    v.GetString("server.log_level"),
			LogFormat:   v.GetString("server.log_format"),
			BodyLimitMB: v.GetInt("server.body_limit_mb"),
		},
		Storage: StorageConfig{
			Root:          v.GetString("storage.root"),
			MaxAge:        v.GetDuration("storage.max_age"),
			SweepInterval: v.GetDuration("storage.sweep_interval"),
		},
		Media: MediaConfig{
			FFmpeg:  v.GetString("media.ffmpeg"),
			FFprobe: v.GetString("media.ffprobe"),
			Timeout: v.GetDuration("media.timeout"),
		},
		Recognition: RecognitionConfig{
			Provider: strings.ToLower(strings.TrimSpace(v.GetString("recognition.provider"))),
			APIKey:   v.GetString("recognition.api_key"),
			Model:    v.GetString("recognition.model"),
			BaseURL:  v.GetString("recognition.base_url"),
			Timeout:  v.GetDuration("recognition.timeout"),
		},
		Selector: SelectorConfig{
			Command: v.GetString("selector.command"),
			Args:    v.GetStringSlice("selector.args"),
			WorkDir: v.GetString("selector.workdir"),
			Timeout: v.GetDuration("selector.timeout"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			ProcessPerHour: v.GetInt("ratelimit.process_per_hour"),
		},
		Worker: WorkerConfig{
			Enabled:     v.GetBool("worker.enabled"),
			Concurrency: v.GetInt("worker.concurrency"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
	}

	return cfg, nil
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Server.Env, "development")
}

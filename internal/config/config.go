package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the review API.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSSubject string
	JWTSecret   string

	AIProvider   string
	AIModel      string
	OpenAIAPIKey string
	GeminiAPIKey string

	EvaluationMaxRetry int
	EvaluationBackoff  time.Duration

	StorageProvider  string
	SignedURLExpiry  time.Duration
	StorageKeyPrefix string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string

	FFmpegPath         string
	FFprobePath        string
	MediaWorkDir       string
	MaxUploadBytes     int64
	MaxVideoDuration   time.Duration
	PipelineTimeout    time.Duration
	WorkerConcurrency  int
	SweepInterval      time.Duration
	SweepBatch         int
	SubmissionGuardTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA Review API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "gema.review.revisions")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("evaluation.max_retry", 3)
	v.SetDefault("evaluation.backoff", "1s")
	v.SetDefault("storage.provider", "minio")
	v.SetDefault("storage.signed_url_expiry", "24h")
	v.SetDefault("storage.key_prefix", "reviews")
	v.SetDefault("minio.bucket", "gema-reviews")
	v.SetDefault("cloudinary.folder", "gema/reviews")
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.work_dir", "/tmp/gema-review-media")
	v.SetDefault("media.max_upload_mb", 100)
	v.SetDefault("media.max_duration_seconds", 300)
	v.SetDefault("pipeline.timeout", "10m")
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("sweep.interval", "15m")
	v.SetDefault("sweep.batch", 50)
	v.SetDefault("guard.ttl", "15m")
}

func fromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	durations := map[string]time.Duration{}
	for _, key := range []string{"evaluation.backoff", "storage.signed_url_expiry", "pipeline.timeout", "sweep.interval", "guard.ttl"} {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		NATSSubject: v.GetString("nats.subject"),
		JWTSecret:   v.GetString("jwt.secret"),

		AIProvider:   strings.ToLower(strings.TrimSpace(v.GetString("ai.provider"))),
		AIModel:      v.GetString("ai.model"),
		OpenAIAPIKey: v.GetString("openai_api_key"),
		GeminiAPIKey: v.GetString("gemini_api_key"),

		EvaluationMaxRetry: v.GetInt("evaluation.max_retry"),
		EvaluationBackoff:  durations["evaluation.backoff"],

		StorageProvider:  strings.ToLower(strings.TrimSpace(v.GetString("storage.provider"))),
		SignedURLExpiry:  durations["storage.signed_url_expiry"],
		StorageKeyPrefix: v.GetString("storage.key_prefix"),

		MinioEndpoint:  v.GetString("minio.endpoint"),
		MinioAccessKey: v.GetString("minio.access_key"),
		MinioSecretKey: v.GetString("minio.secret_key"),
		MinioBucket:    v.GetString("minio.bucket"),
		MinioUseSSL:    v.GetBool("minio.use_ssl"),

		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),

		FFmpegPath:         v.GetString("media.ffmpeg_path"),
		FFprobePath:        v.GetString("media.ffprobe_path"),
		MediaWorkDir:       v.GetString("media.work_dir"),
		MaxUploadBytes:     v.GetInt64("media.max_upload_mb") << 20,
		MaxVideoDuration:   time.Duration(v.GetInt("media.max_duration_seconds")) * time.Second,
		PipelineTimeout:    durations["pipeline.timeout"],
		WorkerConcurrency:  v.GetInt("worker.concurrency"),
		SweepInterval:      durations["sweep.interval"],
		SweepBatch:         v.GetInt("sweep.batch"),
		SubmissionGuardTTL: durations["guard.ttl"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.AIProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("openai api key must be provided")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("gemini api key must be provided")
		}
	default:
		return Config{}, fmt.Errorf("unsupported ai provider %q", cfg.AIProvider)
	}

	switch cfg.StorageProvider {
	case "minio", "cloudinary":
	default:
		return Config{}, fmt.Errorf("unsupported storage provider %q", cfg.StorageProvider)
	}

	if cfg.EvaluationMaxRetry <= 0 {
		cfg.EvaluationMaxRetry = 3
	}
	if cfg.SignedURLExpiry <= 0 {
		cfg.SignedURLExpiry = 24 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	if cfg.MaxVideoDuration <= 0 {
		cfg.MaxVideoDuration = 5 * time.Minute
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 3
	}

	return cfg, nil
}

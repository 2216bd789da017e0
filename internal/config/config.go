package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/viper"
)

const (
	StorageBackendLocal = "local"
	StorageBackendMinIO = "minio"

	configFileEnv = "WEBPRESS_CONFIG"
)

type Config struct {
	API        APIConfig
	Storage    StorageConfig
	Upload     UploadConfig
	Conversion ConversionConfig
	Artifact   ArtifactConfig
	MinIO      MinIOConfig
	Redis      RedisConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Webhook    WebhookConfig
	RateLimit  RateLimitConfig
	Database   DatabaseConfig
	Log        LogConfig
	Tracing    TracingConfig
}

type APIConfig struct {
	Port          int
	PublicBaseURL string
	AllowedOrigin string
}

func (a APIConfig) Addr() string {
	return fmt.Sprintf(":%d", a.Port)
}

type StorageConfig struct {
	Backend    string
	Root       string
	StagingDir string
}

type UploadConfig struct {
	MaxBytes int64
}

type ConversionConfig struct {
	Width   int
	Quality int
}

// ArtifactConfig controls artifact lifecycle. A zero TTL keeps artifacts forever.
type ArtifactConfig struct {
	TTL time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) ClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     r.Addr,
		Password: r.Password,
		DB:       r.DB,
	}
}

type QueueConfig struct {
	Enabled bool
	Name    string
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveJobs int
	MetricsAddr   string
}

type WebhookConfig struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

type RateLimitConfig struct {
	Enabled  bool
	Capacity int
	Window   time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type LogConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// Load reads defaults, an optional config file named by WEBPRESS_CONFIG, and
// environment variables, in increasing order of precedence.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(configFileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	v.SetDefault("port", 3000)
	v.SetDefault("public_base_url", "http://localhost:3000")
	v.SetDefault("cors.allowed_origin", "https://compression1.vercel.app")

	v.SetDefault("storage.backend", StorageBackendLocal)
	v.SetDefault("storage.root", "./uploads")
	v.SetDefault("storage.staging_dir", "")

	v.SetDefault("upload.max_bytes", int64(25<<20))

	v.SetDefault("conversion.width", 800)
	v.SetDefault("conversion.quality", 100)

	v.SetDefault("artifact.ttl", time.Duration(0))

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "minioadmin")
	v.SetDefault("minio.secret_key", "minioadmin")
	v.SetDefault("minio.bucket", "webpress-artifacts")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.name", "default")

	v.SetDefault("worker.concurrency", max(2, runtime.NumCPU()))
	v.SetDefault("worker.max_active_jobs", defaultWorkerSlots)
	v.SetDefault("worker.metrics_addr", ":9091")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", 10*time.Second)
	v.SetDefault("webhook.max_attempts", 3)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.capacity", 30)
	v.SetDefault("rate_limit.window", time.Minute)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.otlp_insecure", false)
}

func fromViper(v *viper.Viper) Config {
	return Config{
		API: APIConfig{
			Port:          v.GetInt("port"),
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("public_base_url")), "/"),
			AllowedOrigin: strings.TrimSpace(v.GetString("cors.allowed_origin")),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(strings.TrimSpace(v.GetString("storage.backend"))),
			Root:       v.GetString("storage.root"),
			StagingDir: v.GetString("storage.staging_dir"),
		},
		Upload: UploadConfig{
			MaxBytes: v.GetInt64("upload.max_bytes"),
		},
		Conversion: ConversionConfig{
			Width:   v.GetInt("conversion.width"),
			Quality: v.GetInt("conversion.quality"),
		},
		Artifact: ArtifactConfig{
			TTL: v.GetDuration("artifact.ttl"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			Bucket:    v.GetString("minio.bucket"),
			UseSSL:    v.GetBool("minio.use_ssl"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Queue: QueueConfig{
			Enabled: v.GetBool("queue.enabled"),
			Name:    v.GetString("queue.name"),
		},
		Worker: WorkerConfig{
			Concurrency:   v.GetInt("worker.concurrency"),
			MaxActiveJobs: v.GetInt("worker.max_active_jobs"),
			MetricsAddr:   v.GetString("worker.metrics_addr"),
		},
		Webhook: WebhookConfig{
			URL:         strings.TrimSpace(v.GetString("webhook.url")),
			Secret:      v.GetString("webhook.secret"),
			Timeout:     v.GetDuration("webhook.timeout"),
			MaxAttempts: v.GetInt("webhook.max_attempts"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  v.GetBool("rate_limit.enabled"),
			Capacity: v.GetInt("rate_limit.capacity"),
			Window:   v.GetDuration("rate_limit.window"),
		},
		Database: DatabaseConfig{
			DSN: strings.TrimSpace(v.GetString("postgres.dsn")),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Tracing: TracingConfig{
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			OTLPInsecure: v.GetBool("tracing.otlp_insecure"),
		},
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535, got %d", c.API.Port))
	}
	if u, err := url.Parse(c.API.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("public_base_url must be an absolute URL, got %q", c.API.PublicBaseURL))
	}

	switch c.Storage.Backend {
	case StorageBackendLocal:
		if strings.TrimSpace(c.Storage.Root) == "" {
			errs = append(errs, errors.New("storage.root is required for the local backend"))
		}
	case StorageBackendMinIO:
		if strings.TrimSpace(c.MinIO.Bucket) == "" {
			errs = append(errs, errors.New("minio.bucket is required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.backend: %s", c.Storage.Backend))
	}

	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if c.Conversion.Width <= 0 {
		errs = append(errs, errors.New("conversion.width must be positive"))
	}
	if c.Conversion.Quality < 1 || c.Conversion.Quality > 100 {
		errs = append(errs, fmt.Errorf("conversion.quality must be between 1 and 100, got %d", c.Conversion.Quality))
	}
	if c.Artifact.TTL < 0 {
		errs = append(errs, errors.New("artifact.ttl must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate_limit.capacity and rate_limit.window must be positive when enabled"))
	}

	return errors.Join(errs...)
}

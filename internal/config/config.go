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
	Server       ServerConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	Meshy        MeshyConfig
	Groq         GroqConfig
	Orchestrator OrchestratorConfig
	Storage      StorageConfig
	Assets       AssetsConfig
	NATS         NATSConfig
	Zitadel      ZitadelConfig
	Gateway      GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
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
	ModelPerHour   int
	SessionPerHour int
}

// MeshyConfig selects the text-to-3D provider. Without an API key the
// service runs the simulated provider.
type MeshyConfig struct {
	APIKey       string
	BaseURL      string
	ArtStyle     string
	AIModel      string
	Timeout      int // seconds
	MockStepWait int // milliseconds between simulated progress steps
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OrchestratorConfig struct {
	PollInterval  time.Duration
	APIURL        string
	Retention     time.Duration
	DefaultLocale string
}

type StorageConfig struct {
	Driver string // "r2" or "minio"
	R2     R2Config
	Minio  MinioConfig
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	PublicURL       string
}

// AssetsConfig limits which hosts model downloads and archiving may fetch from.
// Subdomains of a listed host are allowed too.
type AssetsConfig struct {
	AllowedHosts []string
}

type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	SubjectPrefix string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Optional local env files; real environment variables win.
	_ = godotenv.Load(".env", ".env.local")

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("MESHY_API_KEY")
	readSecret("GROQ_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("MINIO_ACCESS_KEY_ID")
	readSecret("MINIO_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bind := map[string]string{
		"server.port":                     "SERVER_PORT",
		"server.env":                      "SERVER_ENV",
		"server.log_level":                "LOG_LEVEL",
		"server.api_domain":               "API_DOMAIN",
		"redis.addr":                      "REDIS_ADDR",
		"redis.password":                  "REDIS_PASSWORD",
		"redis.db":                        "REDIS_DB",
		"jwt.secret":                      "JWT_SECRET",
		"jwt.expiration":                  "JWT_EXPIRATION",
		"ratelimit.model_per_hour":        "RATELIMIT_MODEL_PER_HOUR",
		"ratelimit.session_per_hour":      "RATELIMIT_SESSION_PER_HOUR",
		"meshy.api_key":                   "MESHY_API_KEY",
		"meshy.base_url":                  "MESHY_BASE_URL",
		"meshy.art_style":                 "MESHY_ART_STYLE",
		"meshy.ai_model":                  "MESHY_AI_MODEL",
		"meshy.timeout":                   "MESHY_TIMEOUT",
		"meshy.mock_step_wait":            "MESHY_MOCK_STEP_WAIT",
		"groq.api_key":                    "GROQ_API_KEY",
		"groq.base_url":                   "GROQ_BASE_URL",
		"groq.model":                      "GROQ_MODEL",
		"orchestrator.poll_interval":      "ORCHESTRATOR_POLL_INTERVAL",
		"orchestrator.api_url":            "ORCHESTRATOR_API_URL",
		"orchestrator.retention":          "ORCHESTRATOR_RETENTION",
		"orchestrator.default_locale":     "ORCHESTRATOR_DEFAULT_LOCALE",
		"storage.driver":                  "STORAGE_DRIVER",
		"storage.r2.account_id":           "R2_ACCOUNT_ID",
		"storage.r2.access_key_id":        "R2_ACCESS_KEY_ID",
		"storage.r2.secret_access_key":    "R2_SECRET_ACCESS_KEY",
		"storage.r2.bucket_name":          "R2_BUCKET_NAME",
		"storage.r2.public_url":           "R2_PUBLIC_URL",
		"storage.minio.endpoint":          "MINIO_ENDPOINT",
		"storage.minio.access_key_id":     "MINIO_ACCESS_KEY_ID",
		"storage.minio.secret_access_key": "MINIO_SECRET_ACCESS_KEY",
		"storage.minio.use_ssl":           "MINIO_USE_SSL",
		"storage.minio.bucket":            "MINIO_BUCKET",
		"storage.minio.public_url":        "MINIO_PUBLIC_URL",
		"assets.allowed_hosts":            "ASSET_ALLOWED_HOSTS",
		"nats.url":                        "NATS_URL",
		"nats.name":                       "NATS_NAME",
		"nats.max_reconnects":             "NATS_MAX_RECONNECTS",
		"nats.subject_prefix":             "NATS_SUBJECT_PREFIX",
		"zitadel.domain":                  "ZITADEL_DOMAIN",
		"zitadel.client_id":               "ZITADEL_CLIENT_ID",
		"zitadel.issuer":                  "ZITADEL_ISSUER",
		"gateway.enabled":                 "GATEWAY_ENABLED",
	}
	for key, env := range bind {
		_ = v.BindEnv(key, env)
	}

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.model_per_hour", 20)
	v.SetDefault("ratelimit.session_per_hour", 10)

	// Meshy defaults
	v.SetDefault("meshy.base_url", "https://api.meshy.ai")
	v.SetDefault("meshy.art_style", "realistic")
	v.SetDefault("meshy.ai_model", "meshy-4")
	v.SetDefault("meshy.timeout", 60)
	v.SetDefault("meshy.mock_step_wait", 1500)

	// Groq defaults
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")

	// Orchestrator defaults
	v.SetDefault("orchestrator.poll_interval", "5s")
	v.SetDefault("orchestrator.retention", "30m")
	v.SetDefault("orchestrator.default_locale", "en")

	// Storage defaults
	v.SetDefault("storage.driver", "r2")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.bucket", "models")

	v.SetDefault("assets.allowed_hosts", "meshy.ai,modelviewer.dev")

	// NATS defaults
	v.SetDefault("nats.name", "modelgen")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.subject_prefix", "modelgen.sessions")

	v.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			ApiDomain: v.GetString("server.api_domain"),
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
			ModelPerHour:   v.GetInt("ratelimit.model_per_hour"),
			SessionPerHour: v.GetInt("ratelimit.session_per_hour"),
		},
		Meshy: MeshyConfig{
			APIKey:       v.GetString("meshy.api_key"),
			BaseURL:      v.GetString("meshy.base_url"),
			ArtStyle:     v.GetString("meshy.art_style"),
			AIModel:      v.GetString("meshy.ai_model"),
			Timeout:      v.GetInt("meshy.timeout"),
			MockStepWait: v.GetInt("meshy.mock_step_wait"),
		},
		Groq: GroqConfig{
			APIKey:  v.GetString("groq.api_key"),
			BaseURL: v.GetString("groq.base_url"),
			Model:   v.GetString("groq.model"),
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:  v.GetDuration("orchestrator.poll_interval"),
			APIURL:        v.GetString("orchestrator.api_url"),
			Retention:     v.GetDuration("orchestrator.retention"),
			DefaultLocale: v.GetString("orchestrator.default_locale"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("storage.driver")),
			R2: R2Config{
				AccountID:       v.GetString("storage.r2.account_id"),
				AccessKeyID:     v.GetString("storage.r2.access_key_id"),
				SecretAccessKey: v.GetString("storage.r2.secret_access_key"),
				BucketName:      v.GetString("storage.r2.bucket_name"),
				PublicURL:       v.GetString("storage.r2.public_url"),
			},
			Minio: MinioConfig{
				Endpoint:        v.GetString("storage.minio.endpoint"),
				AccessKeyID:     v.GetString("storage.minio.access_key_id"),
				SecretAccessKey: v.GetString("storage.minio.secret_access_key"),
				UseSSL:          v.GetBool("storage.minio.use_ssl"),
				Bucket:          v.GetString("storage.minio.bucket"),
				PublicURL:       v.GetString("storage.minio.public_url"),
			},
		},
		Assets: AssetsConfig{
			AllowedHosts: splitList(v.GetString("assets.allowed_hosts")),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			Name:          v.GetString("nats.name"),
			MaxReconnects: v.GetInt("nats.max_reconnects"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}

// StorageConfigured reports whether the selected archive driver has credentials.
func (c StorageConfig) StorageConfigured() bool {
	switch c.Driver {
	case "minio":
		return c.Minio.Endpoint != "" && c.Minio.AccessKeyID != "" && c.Minio.SecretAccessKey != ""
	case "r2":
		return c.R2.AccessKeyID != "" && c.R2.SecretAccessKey != ""
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

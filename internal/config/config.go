package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               string `yaml:"port"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	Name               string `yaml:"name"`
	SSLMode            string `yaml:"sslMode"`
	MaxOpenConns       int    `yaml:"maxOpenConns"`
	MaxIdleConns       int    `yaml:"maxIdleConns"`
	ConnMaxLifetimeSec int    `yaml:"connMaxLifetimeSec"`
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// RedisConfig holds the Redis connection used for sessions, workflow state and queues.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig configures the local identity provider.
type AuthConfig struct {
	JWTSecret    string        `yaml:"jwtSecret"`
	Issuer       string        `yaml:"issuer"`
	TokenTTL     time.Duration `yaml:"tokenTTL"`
	ResetCodeTTL time.Duration `yaml:"resetCodeTTL"`
	BcryptCost   int           `yaml:"bcryptCost"`
}

// AnalysisConfig points the application server at the remote analysis service.
type AnalysisConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	PollTimeout    time.Duration `yaml:"pollTimeout"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// UploadConfig holds the intake rules for uploaded documents.
type UploadConfig struct {
	MaxBytes     int64  `yaml:"maxBytes"`
	AcceptedMIME string `yaml:"acceptedMIME"`
}

// AnalyzerConfig configures the analysis service and its worker.
type AnalyzerConfig struct {
	Port              string   `yaml:"port"`
	GroqAPIKey        string   `yaml:"groqAPIKey"`
	GroqBaseURL       string   `yaml:"groqBaseURL"`
	GroqModel         string   `yaml:"groqModel"`
	TavilyAPIKey      string   `yaml:"tavilyAPIKey"`
	TavilyURL         string   `yaml:"tavilyURL"`
	IncludeDomains    []string `yaml:"includeDomains"`
	MaxTopics         int      `yaml:"maxTopics"`
	ResultsPerTopic   int      `yaml:"resultsPerTopic"`
	TopResources      int      `yaml:"topResources"`
	WorkerConcurrency int      `yaml:"workerConcurrency"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from an optional YAML file and then from environment variables.
type AppConfig struct {
	AppHost  string         `yaml:"appHost"`
	Port     string         `yaml:"port"`
	LogLevel string         `yaml:"logLevel"`
	BaseURL  string         `yaml:"baseURL"`
	Database DatabaseConfig `yaml:"database"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Upload   UploadConfig   `yaml:"upload"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// When APP_CONFIG_FILE names a YAML file it is applied first; real environment variables take precedence.
func Load() *AppConfig {
	cfg, err := LoadFile(os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: ignoring %s: %v\n", os.Getenv("APP_CONFIG_FILE"), err)
		cfg = &AppConfig{}
	}
	applyEnv(cfg)
	return cfg
}

// LoadFile parses a YAML overlay. An empty path yields an empty config.
func LoadFile(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func applyEnv(c *AppConfig) {
	c.AppHost = getEnv("APP_HOST", or(c.AppHost, "localhost:8080"))
	c.Port = getEnv("PORT", or(c.Port, "8080"))
	c.LogLevel = getEnv("LOG_LEVEL", or(c.LogLevel, "info"))
	c.BaseURL = getEnv("APP_BASE_URL", or(c.BaseURL, "http://localhost:3000"))

	c.Database = DatabaseConfig{
		Host:               getEnv("DB_HOST", c.Database.Host),
		Port:               getEnv("DB_PORT", or(c.Database.Port, "5432")),
		User:               getEnv("DB_USER", c.Database.User),
		Password:           getEnv("DB_PASSWORD", c.Database.Password),
		Name:               getEnv("DB_NAME", c.Database.Name),
		SSLMode:            getEnv("DB_SSLMODE", or(c.Database.SSLMode, "disable")),
		MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", orInt(c.Database.MaxOpenConns, 10)),
		MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", orInt(c.Database.MaxIdleConns, 5)),
		ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", orInt(c.Database.ConnMaxLifetimeSec, 300)),
	}
	c.MinIO = MinIOConfig{
		Endpoint:  getEnv("MINIO_ENDPOINT", c.MinIO.Endpoint),
		AccessKey: getEnv("MINIO_ACCESS_KEY", c.MinIO.AccessKey),
		SecretKey: getEnv("MINIO_SECRET_KEY", c.MinIO.SecretKey),
		Bucket:    getEnv("MINIO_BUCKET", c.MinIO.Bucket),
		UseSSL:    getEnvBool("MINIO_USE_SSL", c.MinIO.UseSSL),
	}
	c.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", or(c.Redis.Addr, "localhost:6379")),
		Password: getEnv("REDIS_PASSWORD", c.Redis.Password),
		DB:       getEnvInt("REDIS_DB", c.Redis.DB),
	}
	c.Auth = AuthConfig{
		JWTSecret:    getEnv("JWT_SECRET", c.Auth.JWTSecret),
		Issuer:       getEnv("JWT_ISSUER", or(c.Auth.Issuer, "pdflearn")),
		TokenTTL:     getEnvDuration("JWT_TTL", orDur(c.Auth.TokenTTL, 24*time.Hour)),
		ResetCodeTTL: getEnvDuration("RESET_CODE_TTL", orDur(c.Auth.ResetCodeTTL, time.Hour)),
		BcryptCost:   getEnvInt("BCRYPT_COST", orInt(c.Auth.BcryptCost, 12)),
	}
	c.Analysis = AnalysisConfig{
		BaseURL:        getEnv("ANALYSIS_BASE_URL", or(c.Analysis.BaseURL, "http://localhost:8000")),
		PollInterval:   getEnvDuration("ANALYSIS_POLL_INTERVAL", orDur(c.Analysis.PollInterval, 2*time.Second)),
		PollTimeout:    getEnvDuration("ANALYSIS_POLL_TIMEOUT", orDur(c.Analysis.PollTimeout, 10*time.Minute)),
		RequestTimeout: getEnvDuration("ANALYSIS_REQUEST_TIMEOUT", orDur(c.Analysis.RequestTimeout, 30*time.Second)),
	}
	c.Upload = UploadConfig{
		MaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", orInt(int(c.Upload.MaxBytes), 5*1024*1024))),
		AcceptedMIME: getEnv("UPLOAD_ACCEPTED_MIME", or(c.Upload.AcceptedMIME, "application/pdf")),
	}
	c.Analyzer = AnalyzerConfig{
		Port:         getEnv("ANALYZER_PORT", or(c.Analyzer.Port, "8000")),
		GroqAPIKey:   getEnv("GROQ_API_KEY", c.Analyzer.GroqAPIKey),
		GroqBaseURL:  getEnv("GROQ_BASE_URL", or(c.Analyzer.GroqBaseURL, "https://api.groq.com/openai/v1")),
		GroqModel:    getEnv("GROQ_MODEL", or(c.Analyzer.GroqModel, "llama-3.3-70b-versatile")),
		TavilyAPIKey: getEnv("TAVILY_API_KEY", c.Analyzer.TavilyAPIKey),
		TavilyURL:    getEnv("TAVILY_URL", or(c.Analyzer.TavilyURL, "https://api.tavily.com/search")),
		IncludeDomains: getEnvList("ANALYZER_INCLUDE_DOMAINS", orList(c.Analyzer.IncludeDomains, []string{
			"coursera.org", "udemy.com", "edx.org",
			"youtube.com", "github.com", "medium.com",
			"dev.to", "arxiv.org", "scholar.google.com",
		})),
		MaxTopics:         getEnvInt("ANALYZER_MAX_TOPICS", orInt(c.Analyzer.MaxTopics, 5)),
		ResultsPerTopic:   getEnvInt("ANALYZER_RESULTS_PER_TOPIC", orInt(c.Analyzer.ResultsPerTopic, 3)),
		TopResources:      getEnvInt("ANALYZER_TOP_RESOURCES", orInt(c.Analyzer.TopResources, 10)),
		WorkerConcurrency: getEnvInt("ANALYZER_WORKER_CONCURRENCY", orInt(c.Analyzer.WorkerConcurrency, 4)),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orDur(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

func orList(v, def []string) []string {
	if len(v) > 0 {
		return v
	}
	return def
}

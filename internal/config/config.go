// Package config provides configuration loading for the analyst service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Pipeline kinds accepted by PIPELINE.
const (
	PipelineLLM        = "llm"
	PipelineSubprocess = "subprocess"
)

// Config holds all configuration for the analyst service.
type Config struct {
	// Server configuration
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	// Deployment role and hosts
	Role             string
	OrchestratorHost string
	SpecialistHost   string

	// Models keep their provider prefix (e.g., "ollama/gemma3:27b")
	ManagerModel      string
	ManagerBaseURL    string
	SpecialistModel   string
	SpecialistBaseURL string

	// Artifact directories
	OutputDir string
	ChartsDir string

	// Execution
	MockMode        bool
	MockSpeed       float64
	Pipeline        string // "llm" or "subprocess"
	PipelineCommand []string
	MaxSteps        int
	Temperature     float64

	// Streaming
	StreamPollInterval time.Duration

	// Redis event publishing
	RedisURL           string
	RedisPassword      string
	RedisDB            int
	EventPublish       bool
	EventChannelPrefix string

	// Artifact mirroring
	ArtifactStore     string // "none", "memory", "s3" or "minio"
	S3Endpoint        string
	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UseSSL          bool

	// OIDC configuration
	OIDCIssuer        string
	OIDCClientID      string
	OIDCAudience      string
	OIDCRequiredRoles []string
	OIDCEnabled       bool

	// CORS configuration
	CORSOrigins []string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Tracing
	OTelEnabled    bool
	OTelEndpoint   string
	OTelSampleRate float64

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads a .env file if present, then configuration from environment
// variables with sensible defaults.
func Load() *Config {
	_ = godotenv.Load()

	orchestratorHost := getEnv("ORCHESTRATOR_HOST", "10.0.0.1")
	specialistHost := getEnv("SPECIALIST_HOST", "10.0.0.2")
	outputDir := getEnv("OUTPUT_DIR", "output")

	return &Config{
		// Server
		Port:          getEnv("PORT", "8000"),
		ReadTimeout:   getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getDuration("WRITE_TIMEOUT", 0), // streams are long-lived
		ShutdownGrace: getDuration("SHUTDOWN_GRACE", 10*time.Second),

		// Deployment
		Role:             getEnv("ROLE", "orchestrator"),
		OrchestratorHost: orchestratorHost,
		SpecialistHost:   specialistHost,

		// Models
		ManagerModel:      getEnv("MANAGER_MODEL", "ollama/gemma3:27b"),
		ManagerBaseURL:    getEnv("MANAGER_BASE_URL", fmt.Sprintf("http://%s:11434", orchestratorHost)),
		SpecialistModel:   getEnv("SPECIALIST_MODEL", "ollama/gemma3:12b"),
		SpecialistBaseURL: getEnv("SPECIALIST_BASE_URL", fmt.Sprintf("http://%s:11434", specialistHost)),

		// Artifacts
		OutputDir: outputDir,
		ChartsDir: getEnv("CHARTS_DIR", outputDir+"/charts"),

		// Execution
		MockMode:        getBool("MOCK_MODE", false),
		MockSpeed:       getFloat("MOCK_SPEED", 1.0),
		Pipeline:        getEnv("PIPELINE", PipelineLLM),
		PipelineCommand: strings.Fields(getEnv("PIPELINE_COMMAND", "")),
		MaxSteps:        getInt("CREW_MAX_STEPS", 6),
		Temperature:     getFloat("CREW_TEMPERATURE", 0.3),

		// Streaming
		StreamPollInterval: getDuration("STREAM_POLL_INTERVAL", time.Second),

		// Redis
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            getInt("REDIS_DB", 0),
		EventPublish:       getBool("EVENT_PUBLISH", false),
		EventChannelPrefix: getEnv("EVENT_CHANNEL_PREFIX", "crew:events"),

		// Artifact mirroring
		ArtifactStore:     getEnv("ARTIFACT_STORE", "none"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3UseSSL:          getBool("S3_USE_SSL", false),

		// OIDC
		OIDCIssuer:        getEnv("OIDC_ISSUER", ""),
		OIDCClientID:      getEnv("OIDC_CLIENT_ID", ""),
		OIDCAudience:      getEnv("OIDC_AUDIENCE", ""),
		OIDCRequiredRoles: getStringSlice("OIDC_REQUIRED_ROLES", nil),
		OIDCEnabled:       getBool("OIDC_ENABLED", false),

		// CORS
		CORSOrigins: getStringSlice("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),

		// Rate limiting
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 5.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 10),

		// Tracing
		OTelEnabled:    getBool("OTEL_ENABLED", false),
		OTelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRate: getFloat("OTEL_SAMPLE_RATE", 1.0),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Validate reports configuration that cannot start the service.
func (c *Config) Validate() error {
	switch c.Pipeline {
	case PipelineLLM:
	case PipelineSubprocess:
		if !c.MockMode && len(c.PipelineCommand) == 0 {
			return fmt.Errorf("PIPELINE_COMMAND is required for the subprocess pipeline")
		}
	default:
		return fmt.Errorf("unknown PIPELINE %q", c.Pipeline)
	}
	if c.MockSpeed <= 0 {
		return fmt.Errorf("MOCK_SPEED must be positive")
	}
	if c.StreamPollInterval <= 0 {
		return fmt.Errorf("STREAM_POLL_INTERVAL must be positive")
	}
	if c.OIDCEnabled && (c.OIDCIssuer == "" || c.OIDCClientID == "") {
		return fmt.Errorf("OIDC_ISSUER and OIDC_CLIENT_ID are required when OIDC_ENABLED is set")
	}
	return nil
}

// EnsureDirs creates the output and charts directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.OutputDir, c.ChartsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultVal
}

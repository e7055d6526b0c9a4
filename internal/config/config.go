package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	DatabaseURL    string
	UseMemoryStore bool

	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool
	ConversationStateTTL time.Duration
	TurnLockTTL          time.Duration
	SummaryMaxMessages   int

	AdminJWTSecret     string
	AdminTokenTTL      time.Duration
	AdminPasswordSalt  string
	CORSAllowedOrigins []string

	// Admin account created or reset on startup when both are set.
	BootstrapAdminUsername string
	BootstrapAdminPassword string

	LoginRateLimit float64
	LoginRateBurst int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Closed handoff requests are archived here when set.
	ArchiveS3Bucket string

	// Operator alert e-mail (new high-risk handoff requests)
	AlertEmailProvider string
	AlertEmailTo       []string
	AlertEmailFrom     string
	AlertEmailFromName string
	SendGridAPIKey     string

	// Alerts go through SQS when set; otherwise an in-process queue.
	AlertQueueURL    string
	AlertWorkerCount int
}

// Load reads configuration from environment variables. Values from an optional
// .env file (ENV_FILE, default ".env") are applied first without overriding
// variables that are already set.
func Load() *Config {
	loadDotEnv(getEnv("ENV_FILE", ".env"))

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),

		RedisAddr:            getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		ConversationStateTTL: getEnvAsDuration("CONVERSATION_STATE_TTL", 24*time.Hour),
		TurnLockTTL:          getEnvAsDuration("TURN_LOCK_TTL", 30*time.Second),
		SummaryMaxMessages:   getEnvAsInt("HANDOFF_SUMMARY_MAX_MESSAGES", 10),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		AdminTokenTTL:      getEnvAsDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		AdminPasswordSalt:  getEnv("ADMIN_PASSWORD_SALT", "crisis_salt"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		BootstrapAdminUsername: getEnv("BOOTSTRAP_ADMIN_USERNAME", ""),
		BootstrapAdminPassword: getEnv("BOOTSTRAP_ADMIN_PASSWORD", ""),

		LoginRateLimit: getEnvAsFloat("LOGIN_RATE_LIMIT", 0.2),
		LoginRateBurst: getEnvAsInt("LOGIN_RATE_BURST", 5),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ArchiveS3Bucket: strings.TrimSpace(getEnv("ARCHIVE_S3_BUCKET", "")),

		AlertEmailProvider: strings.ToLower(strings.TrimSpace(getEnv("ALERT_EMAIL_PROVIDER", "none"))),
		AlertEmailTo:       getEnvAsList("ALERT_EMAIL_TO", nil),
		AlertEmailFrom:     getEnv("ALERT_EMAIL_FROM", ""),
		AlertEmailFromName: getEnv("ALERT_EMAIL_FROM_NAME", "Crisos Alerts"),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),

		AlertQueueURL:    strings.TrimSpace(getEnv("ALERT_QUEUE_URL", "")),
		AlertWorkerCount: getEnvAsInt("ALERT_WORKER_COUNT", 1),
	}
}

func loadDotEnv(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		// A malformed .env must not stop the process; the environment still wins.
		_, _ = os.Stderr.WriteString("config: ignoring unreadable env file " + path + ": " + err.Error() + "\n")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session verifiers.
const (
	VerifierBetterAuth = "betterauth"
	VerifierJWT        = "jwt"
	VerifierFirebase   = "firebase"
)

// Organization providers.
const (
	OrgProviderBetterAuth = "betterauth"
	OrgProviderWorkOS     = "workos"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	AWS      AWSConfig
	OTel     OTelConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins []string // e.g. http://localhost:3000,http://localhost:3001
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/orgs?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// AutoMigrate applies embedded migrations on server start.
	AutoMigrate bool

	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// AuthConfig selects and configures the external identity provider.
type AuthConfig struct {
	SessionVerifier string
	OrgProvider     string

	BetterAuthURL    string
	BetterAuthSecret string

	JWTSecret     string
	SessionCookie string

	FirebaseCredentialsFile string

	WorkOSAPIKey string

	// SessionCacheTTL is how long a verified session is cached in Redis; zero disables caching.
	SessionCacheTTL time.Duration
	// OrgCreateSuperAdminOnly restricts POST /organizations to SUPER_ADMIN.
	OrgCreateSuperAdminOnly bool
}

// AWSConfig holds AWS credentials and the logo bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	LogosBucket     string
}

// OTelConfig holds OpenTelemetry exporter settings. An empty endpoint disables tracing.
type OTelConfig struct {
	Endpoint       string
	Headers        map[string]string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: splitTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"), ","),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "orgs"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
			MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(getEnvInt("DB_MIN_CONNS", 0)),
			MaxConnIdleTime: getEnvDuration("DB_MAX_CONN_IDLE", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
		},
		Auth: AuthConfig{
			SessionVerifier:         strings.ToLower(getEnv("AUTH_SESSION_VERIFIER", VerifierBetterAuth)),
			OrgProvider:             strings.ToLower(getEnv("AUTH_ORG_PROVIDER", OrgProviderBetterAuth)),
			BetterAuthURL:           strings.TrimRight(getEnv("BETTER_AUTH_URL", "http://localhost:3000"), "/"),
			BetterAuthSecret:        getEnv("BETTER_AUTH_SECRET", ""),
			JWTSecret:               getEnv("JWT_SECRET", "change-me-in-production"),
			SessionCookie:           getEnv("AUTH_SESSION_COOKIE", "better-auth.session_token"),
			FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
			WorkOSAPIKey:            getEnv("WORKOS_API_KEY", ""),
			SessionCacheTTL:         getEnvDuration("SESSION_CACHE_TTL", 30*time.Second),
			OrgCreateSuperAdminOnly: getEnvBool("ORG_CREATE_SUPER_ADMIN_ONLY", false),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			LogosBucket:     getEnv("AWS_S3_LOGOS_BUCKET", "org-logos-bucket"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        parseHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", "")),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "org-backend"),
			ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
			Environment:    getEnv("ENVIRONMENT", "development"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Auth.SessionVerifier {
	case VerifierBetterAuth, VerifierJWT, VerifierFirebase:
	default:
		return fmt.Errorf("AUTH_SESSION_VERIFIER: unknown verifier %q", c.Auth.SessionVerifier)
	}
	switch c.Auth.OrgProvider {
	case OrgProviderBetterAuth:
	case OrgProviderWorkOS:
		if c.Auth.WorkOSAPIKey == "" {
			return fmt.Errorf("WORKOS_API_KEY is required when AUTH_ORG_PROVIDER=%s", OrgProviderWorkOS)
		}
	default:
		return fmt.Errorf("AUTH_ORG_PROVIDER: unknown provider %q", c.Auth.OrgProvider)
	}
	if c.Auth.SessionVerifier == VerifierFirebase && c.Auth.FirebaseCredentialsFile == "" {
		return fmt.Errorf("FIREBASE_CREDENTIALS_FILE is required when AUTH_SESSION_VERIFIER=%s", VerifierFirebase)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseHeaders reads "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func parseHeaders(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitTrim(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

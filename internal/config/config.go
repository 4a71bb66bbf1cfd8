package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

const (
	BlobModeLocal = "local"
	BlobModeS3    = "s3"
	BlobModeAuto  = "auto"
)

const (
	AuthModeNone = "none"
	AuthModeDev  = "dev"
)

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) MissingRequired() []string {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(c.Endpoint) == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "S3_ACCESS_KEY_ID")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "S3_SECRET_ACCESS_KEY")
	}
	return missing
}

func (c S3Config) IsConfigured() bool {
	return len(c.MissingRequired()) == 0
}

func (c S3Config) Diagnostics() (level string, code string, msg string) {
	allEmpty := strings.TrimSpace(c.Endpoint) == "" &&
		strings.TrimSpace(c.Region) == "" &&
		strings.TrimSpace(c.Bucket) == "" &&
		strings.TrimSpace(c.AccessKeyID) == "" &&
		strings.TrimSpace(c.SecretAccessKey) == ""

	if allEmpty {
		return "INFO", "s3_not_configured", "not configured (all empty)"
	}

	missing := c.MissingRequired()
	if len(missing) > 0 {
		return "WARN", "s3_partial_config", fmt.Sprintf("partial config, missing=%v", missing)
	}

	return "INFO", "s3_ready", "ready"
}

// DiagnosticsSummary returns a summary for logging (no secrets)
func (c S3Config) DiagnosticsSummary() string {
	return fmt.Sprintf("endpoint=%s region=%s bucket=%s access_key_id=%s secret_access_key=%s",
		nonEmptyOrDash(c.Endpoint),
		nonEmptyOrDash(c.Region),
		nonEmptyOrDash(c.Bucket),
		setOrNot(c.AccessKeyID),
		setOrNot(c.SecretAccessKey),
	)
}

type BlobConfig struct {
	Mode string // local|s3|auto
	S3   S3Config
}

// IntakeConfig holds the tunables of the plan intake pipeline.
type IntakeConfig struct {
	CatalogWorkers         int
	CatalogTimeoutMs       int
	DefaultKcal            float64 // unresolved item without grams or calories
	KcalPer100g            float64 // unresolved item with grams only
	DefaultPortionG        float64
	ApplyWaitSeconds       int
	RollbackTimeoutSeconds int
	ClaimTTLSeconds        int // pending-claim без движения дольше TTL может быть перехвачен
	MaxBodyKB              int
}

// Config содержит конфигурацию приложения
type Config struct {
	Env      string // local | staging | production
	Port     int
	LogLevel string

	// Database
	DatabaseURL       string // runtime connection (resolved: pooled > url > direct)
	DatabaseURLRaw    string
	DatabaseURLPooled string
	DatabaseURLDirect string // for migrations / DDL (may be empty)

	// CORS
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// Rate Limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Authentication
	AuthMode      string // none | dev
	AuthRequired  bool
	JWTSecret     string
	JWTIssuer     string
	JWTTTLMinutes int

	// Plan intake
	Intake IntakeConfig

	// Catalog seed source
	Blob            BlobConfig
	CatalogSeedKey  string
	CatalogSeedFile string // local JSON, used when the blob store is not configured

	// Migrations
	RunMigrationsOnStartup bool
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env == "" {
		env = "local"
	}

	port := envInt("PORT", 8080)

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "debug"
	}

	// ---------- Database ----------
	// Priority: DATABASE_URL_POOLED > DATABASE_URL > DATABASE_URL_DIRECT
	dbPooled := strings.TrimSpace(os.Getenv("DATABASE_URL_POOLED"))
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	dbDirect := strings.TrimSpace(os.Getenv("DATABASE_URL_DIRECT"))

	runtimeDB := dbPooled
	if runtimeDB == "" {
		runtimeDB = dbURL
	}
	if runtimeDB == "" {
		runtimeDB = dbDirect
	}

	runMigrationsOnStartup := parseBoolEnv("RUN_MIGRATIONS_ON_STARTUP")

	// ---------- CORS ----------
	corsOrigins := parseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"), env)
	corsAllowCreds := os.Getenv("CORS_ALLOW_CREDENTIALS") == "1"

	// ---------- Rate Limiting ----------
	rateLimitRPS := envInt("RATE_LIMIT_RPS", 0)
	rateLimitBurst := envInt("RATE_LIMIT_BURST", 0)

	// ---------- Auth ----------
	authMode := strings.ToLower(strings.TrimSpace(os.Getenv("AUTH_MODE")))
	if authMode == "" {
		authMode = AuthModeNone
	}
	if authMode != AuthModeNone && authMode != AuthModeDev {
		log.Printf("WARNING: unknown AUTH_MODE=%q, fallback to none", authMode)
		authMode = AuthModeNone
	}
	authRequired := authMode != AuthModeNone && parseBoolEnv("AUTH_REQUIRED")

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change_me"
	}
	if jwtSecret == "change_me" && env != "local" {
		log.Println("WARNING: JWT_SECRET is set to 'change_me' in non-local environment!")
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "fitdiary"
	}

	// JWT_TTL_MINUTES (default: 10080 = 7 days)
	jwtTTLMinutes := envInt("JWT_TTL_MINUTES", 10080)
	if jwtTTLMinutes <= 0 {
		jwtTTLMinutes = 10080
	}

	// ---------- Plan intake ----------
	intake := IntakeConfig{
		CatalogWorkers:         positiveInt("CATALOG_WORKERS", 4),
		CatalogTimeoutMs:       positiveInt("CATALOG_TIMEOUT_MS", 800),
		DefaultKcal:            positiveFloat("INTAKE_DEFAULT_KCAL", 200),
		KcalPer100g:            positiveFloat("INTAKE_KCAL_PER_100G", 150),
		DefaultPortionG:        positiveFloat("INTAKE_DEFAULT_PORTION_G", 100),
		ApplyWaitSeconds:       positiveInt("APPLY_WAIT_SECONDS", 5),
		RollbackTimeoutSeconds: positiveInt("ROLLBACK_TIMEOUT_SECONDS", 10),
		ClaimTTLSeconds:        positiveInt("CLAIM_TTL_SECONDS", 60),
		MaxBodyKB:              positiveInt("MAX_BODY_KB", 256),
	}
	if intake.CatalogWorkers > 32 {
		log.Printf("WARNING: CATALOG_WORKERS=%d is too high, capped at 32", intake.CatalogWorkers)
		intake.CatalogWorkers = 32
	}
	if intake.ClaimTTLSeconds <= intake.RollbackTimeoutSeconds {
		log.Printf("WARNING: CLAIM_TTL_SECONDS=%d must exceed ROLLBACK_TIMEOUT_SECONDS=%d, raised", intake.ClaimTTLSeconds, intake.RollbackTimeoutSeconds)
		intake.ClaimTTLSeconds = intake.RollbackTimeoutSeconds * 2
	}

	// ---------- Blob / S3 (catalog seed) ----------
	blobCfg := BlobConfig{
		Mode: parseBlobMode("BLOB_MODE", BlobModeLocal),
		S3: S3Config{
			Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
			Region:          strings.TrimSpace(os.Getenv("S3_REGION")),
			Bucket:          strings.TrimSpace(os.Getenv("S3_BUCKET")),
			AccessKeyID:     strings.TrimSpace(os.Getenv("S3_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("S3_SECRET_ACCESS_KEY")),
		},
	}
	catalogSeedKey := strings.TrimSpace(os.Getenv("CATALOG_SEED_KEY"))
	if catalogSeedKey == "" {
		catalogSeedKey = "catalog/seed.json"
	}
	catalogSeedFile := strings.TrimSpace(os.Getenv("CATALOG_SEED_FILE"))

	return &Config{
		Env:               env,
		Port:              port,
		LogLevel:          logLevel,
		DatabaseURL:       runtimeDB,
		DatabaseURLRaw:    dbURL,
		DatabaseURLPooled: dbPooled,
		DatabaseURLDirect: dbDirect,

		CORSAllowedOrigins:   corsOrigins,
		CORSAllowCredentials: corsAllowCreds,

		RateLimitRPS:   rateLimitRPS,
		RateLimitBurst: rateLimitBurst,

		AuthMode:      authMode,
		AuthRequired:  authRequired,
		JWTSecret:     jwtSecret,
		JWTIssuer:     jwtIssuer,
		JWTTTLMinutes: jwtTTLMinutes,

		Intake: intake,

		Blob:            blobCfg,
		CatalogSeedKey:  catalogSeedKey,
		CatalogSeedFile: catalogSeedFile,

		RunMigrationsOnStartup: runMigrationsOnStartup,
	}
}

// DefaultIntake returns intake settings used when no environment is loaded (tests, tools).
func DefaultIntake() IntakeConfig {
	return IntakeConfig{
		CatalogWorkers:         4,
		CatalogTimeoutMs:       800,
		DefaultKcal:            200,
		KcalPer100g:            150,
		DefaultPortionG:        100,
		ApplyWaitSeconds:       5,
		RollbackTimeoutSeconds: 10,
		ClaimTTLSeconds:        60,
		MaxBodyKB:              256,
	}
}

// parseCORSOrigins parses CORS_ALLOWED_ORIGINS env var.
// In local mode, defaults to localhost origins if empty.
func parseCORSOrigins(raw, env string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if env == "local" {
			return []string{"http://localhost:3000", "http://localhost:8081"}
		}
		return nil // prod: deny by default
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

func parseBlobMode(key string, defaultVal string) string {
	mode := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if mode == "" {
		return defaultVal
	}
	switch mode {
	case BlobModeLocal, BlobModeS3, BlobModeAuto:
		return mode
	default:
		log.Printf("WARNING: unknown %s=%q, fallback to %s", key, mode, defaultVal)
		return defaultVal
	}
}

// envInt reads an int env var with a default value.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal
	}
	return v
}

func positiveInt(key string, defaultVal int) int {
	v := envInt(key, defaultVal)
	if v <= 0 {
		log.Printf("WARNING: %s=%d must be positive, fallback to %d", key, v, defaultVal)
		return defaultVal
	}
	return v
}

func positiveFloat(key string, defaultVal float64) float64 {
	v := envFloat(key, defaultVal)
	if v <= 0 {
		log.Printf("WARNING: %s=%v must be positive, fallback to %v", key, v, defaultVal)
		return defaultVal
	}
	return v
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func nonEmptyOrDash(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "-"
	}
	return v
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}

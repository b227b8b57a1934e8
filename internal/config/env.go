package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// RenderConfig controls rasterization resolutions and stamp sizing.
type RenderConfig struct {
	TemplateDPI       float64
	OverlayDPI        float64
	MinRegionPx       int
	StampDefaultWidth int
	StampMinWidth     int
	StampMaxWidth     int
}

// MergeConfig controls output placement and scratch file handling.
type MergeConfig struct {
	OutputPath      string
	ScratchDir      string
	CleanupAttempts int
	CleanupDelay    time.Duration
	ScratchMaxAge   time.Duration
	// MaxConcurrent bounds merges running at once across all sessions.
	MaxConcurrent int
}

// ServerConfig holds HTTP session API settings.
type ServerConfig struct {
	Port        string
	UploadDir   string
	OutputDir   string
	SessionTTL  time.Duration
	MaxUploadMB int
	// WebUsername and WebPassword protect the dashboard; it is disabled when either is empty.
	WebUsername string
	WebPassword string
}

// HistoryConfig selects where merge records are kept. Empty RedisURL means in-memory.
type HistoryConfig struct {
	RedisURL string
	Recent   int
}

// PublishConfig enables uploading merged documents to S3.
type PublishConfig struct {
	Bucket string
	Prefix string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Render  RenderConfig
	Merge   MergeConfig
	Server  ServerConfig
	History HistoryConfig
	Publish PublishConfig
	Variant Variant
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfstamp.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfstamp",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Render = RenderConfig{
		TemplateDPI:       parseFloat(getEnv("TEMPLATE_DPI", "150"), 150),
		OverlayDPI:        parseFloat(getEnv("OVERLAY_DPI", "300"), 300),
		MinRegionPx:       parseInt(getEnv("MIN_REGION_PX", "10"), 10),
		StampDefaultWidth: parseInt(getEnv("STAMP_DEFAULT_WIDTH", "150"), 150),
		StampMinWidth:     parseInt(getEnv("STAMP_MIN_WIDTH", "50"), 50),
		StampMaxWidth:     parseInt(getEnv("STAMP_MAX_WIDTH", "400"), 400),
	}
	if cfg.Render.StampMaxWidth < cfg.Render.StampMinWidth {
		cfg.Render.StampMaxWidth = cfg.Render.StampMinWidth
	}

	cfg.Merge = MergeConfig{
		OutputPath:      getEnv("OUTPUT_PATH", "output.pdf"),
		ScratchDir:      getEnv("SCRATCH_DIR", os.TempDir()),
		CleanupAttempts: parseInt(getEnv("CLEANUP_ATTEMPTS", "15"), 15),
		CleanupDelay:    parseDuration(getEnv("CLEANUP_DELAY", "500ms"), 500*time.Millisecond),
		ScratchMaxAge:   parseDuration(getEnv("SCRATCH_MAX_AGE", "1h"), time.Hour),
		MaxConcurrent:   parseInt(getEnv("MAX_CONCURRENT_MERGES", "2"), 2),
	}
	if cfg.Merge.CleanupAttempts <= 0 {
		cfg.Merge.CleanupAttempts = 1
	}

	cfg.Server = ServerConfig{
		Port:        getEnv("PORT", "8080"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:   getEnv("OUTPUT_DIR", "output"),
		SessionTTL:  parseDuration(getEnv("SESSION_TTL", "30m"), 30*time.Minute),
		MaxUploadMB: parseInt(getEnv("MAX_UPLOAD_MB", "25"), 25),
		WebUsername: getEnv("WEB_USERNAME", ""),
		WebPassword: getEnv("WEB_PASSWORD", ""),
	}

	cfg.History = HistoryConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		Recent:   parseInt(getEnv("HISTORY_RECENT", "100"), 100),
	}

	cfg.Publish = PublishConfig{
		Bucket: getEnv("AWS_S3_BUCKET", ""),
		Prefix: strings.Trim(getEnv("S3_PREFIX", "stamped"), "/"),
	}

	cfg.Variant = VariantByName(getEnv("STAMP_VARIANT", "insert"))

	return cfg
}

// SessionOutputPath places a session's merged file inside the server output dir,
// keeping the configured file name.
func (c Config) SessionOutputPath(sessionID string) string {
	return filepath.Join(c.Server.OutputDir, sessionID+"_"+filepath.Base(c.Merge.OutputPath))
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}

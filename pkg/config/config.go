package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	Timezone  string

	Database   DatabaseConfig
	Warehouse  WarehouseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	Sync       SyncConfig
	Digest     DigestConfig
	Mail       MailConfig
	Roster     RosterConfig
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	MigrateOnStart bool
}

// WarehouseConfig points at the read-only system-of-record database.
type WarehouseConfig struct {
	DatabaseConfig
	ClassTable      string
	EnrollmentTable string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// AttendanceConfig lists the external status codes that mean "absent".
type AttendanceConfig struct {
	AbsentCodes []int
}

// SyncConfig governs the scheduled reconciliation pass.
type SyncConfig struct {
	Enabled        bool
	Cron           string
	Timeout        time.Duration
	AllowEmptyFeed bool
	SemesterLabel  string
	Retries        int
}

// DigestConfig governs the daily roster email.
type DigestConfig struct {
	Enabled    bool
	Cron       string
	Recipients []string
	Subject    string
}

// MailConfig selects and configures the email delivery driver.
type MailConfig struct {
	Driver         string
	SendGridAPIKey string
	FromName       string
	FromAddress    string
}

// RosterConfig tunes roster caching.
type RosterConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.Timezone = v.GetString("ORG_TIMEZONE")
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("invalid ORG_TIMEZONE %q: %w", cfg.Timezone, err)
		}
	}

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetInt("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSL_MODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnectTimeout: parseDuration(v.GetString("DB_CONNECT_TIMEOUT"), 5*time.Second),
		MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
	}

	cfg.Warehouse = WarehouseConfig{
		DatabaseConfig: DatabaseConfig{
			Host:           v.GetString("WAREHOUSE_HOST"),
			Port:           v.GetInt("WAREHOUSE_PORT"),
			User:           v.GetString("WAREHOUSE_USER"),
			Password:       v.GetString("WAREHOUSE_PASSWORD"),
			Name:           v.GetString("WAREHOUSE_NAME"),
			SSLMode:        v.GetString("WAREHOUSE_SSL_MODE"),
			MaxOpenConns:   v.GetInt("WAREHOUSE_MAX_OPEN_CONNS"),
			MaxIdleConns:   v.GetInt("WAREHOUSE_MAX_IDLE_CONNS"),
			ConnectTimeout: parseDuration(v.GetString("WAREHOUSE_CONNECT_TIMEOUT"), 10*time.Second),
		},
		ClassTable:      v.GetString("WAREHOUSE_CLASS_TABLE"),
		EnrollmentTable: v.GetString("WAREHOUSE_ENROLLMENT_TABLE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
		File:   v.GetString("LOG_FILE"),
	}

	cfg.Attendance = AttendanceConfig{
		AbsentCodes: parseInts(v.GetString("ATTENDANCE_ABSENT_CODES")),
	}

	cfg.Sync = SyncConfig{
		Enabled:        v.GetBool("SYNC_ENABLED"),
		Cron:           v.GetString("SYNC_CRON"),
		Timeout:        parseDuration(v.GetString("SYNC_TIMEOUT"), 10*time.Minute),
		AllowEmptyFeed: v.GetBool("SYNC_ALLOW_EMPTY_FEED"),
		SemesterLabel:  v.GetString("SYNC_SEMESTER_LABEL"),
		Retries:        v.GetInt("SYNC_RETRIES"),
	}

	cfg.Digest = DigestConfig{
		Enabled:    v.GetBool("DIGEST_ENABLED"),
		Cron:       v.GetString("DIGEST_CRON"),
		Recipients: splitAndTrim(v.GetString("DIGEST_RECIPIENTS")),
		Subject:    v.GetString("DIGEST_SUBJECT"),
	}

	cfg.Mail = MailConfig{
		Driver:         v.GetString("MAIL_DRIVER"),
		SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
		FromName:       v.GetString("MAIL_FROM_NAME"),
		FromAddress:    v.GetString("MAIL_FROM_ADDRESS"),
	}

	cfg.Roster = RosterConfig{
		CacheEnabled: v.GetBool("ROSTER_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("ROSTER_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

// Location resolves the organisation time zone. Load rejects unknown zones, so the UTC
// fallback only applies to a Config built by hand.
func (c *Config) Location() *time.Location {
	if c == nil || c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("ORG_TIMEZONE", "America/Los_Angeles")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "afterschool_roster")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONNECT_TIMEOUT", "5s")
	v.SetDefault("MIGRATE_ON_START", true)

	v.SetDefault("WAREHOUSE_HOST", "localhost")
	v.SetDefault("WAREHOUSE_PORT", 5432)
	v.SetDefault("WAREHOUSE_USER", "readonly")
	v.SetDefault("WAREHOUSE_PASSWORD", "")
	v.SetDefault("WAREHOUSE_NAME", "sis_warehouse")
	v.SetDefault("WAREHOUSE_SSL_MODE", "require")
	v.SetDefault("WAREHOUSE_MAX_OPEN_CONNS", 2)
	v.SetDefault("WAREHOUSE_MAX_IDLE_CONNS", 1)
	v.SetDefault("WAREHOUSE_CONNECT_TIMEOUT", "10s")
	v.SetDefault("WAREHOUSE_CLASS_TABLE", "afterschool_classes")
	v.SetDefault("WAREHOUSE_ENROLLMENT_TABLE", "afterschool_enrollments")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("ATTENDANCE_ABSENT_CODES", "2,3,4")

	v.SetDefault("SYNC_ENABLED", false)
	v.SetDefault("SYNC_CRON", "0 5 * * *")
	v.SetDefault("SYNC_TIMEOUT", "10m")
	v.SetDefault("SYNC_ALLOW_EMPTY_FEED", false)
	v.SetDefault("SYNC_SEMESTER_LABEL", "")
	v.SetDefault("SYNC_RETRIES", 2)

	v.SetDefault("DIGEST_ENABLED", false)
	v.SetDefault("DIGEST_CRON", "0 12 * * 1-4")
	v.SetDefault("DIGEST_RECIPIENTS", "")
	v.SetDefault("DIGEST_SUBJECT", "Today's after-school rosters")

	v.SetDefault("MAIL_DRIVER", "log")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM_NAME", "After-School Program")
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.org")

	v.SetDefault("ROSTER_CACHE_ENABLED", false)
	v.SetDefault("ROSTER_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseInts(raw string) []int {
	parts := splitAndTrim(raw)
	result := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	return result
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

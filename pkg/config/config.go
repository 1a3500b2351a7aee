package config

import (
	"errors"
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

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Attendance    AttendanceConfig
	Payments      PaymentsConfig
	Products      ProductsConfig
	Notifications NotificationsConfig
	Reminders     RemindersConfig
	Dashboard     DashboardConfig
	Proofs        ProofsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig tunes QR sessions and anomaly detection.
type AttendanceConfig struct {
	QRValidMinutes   int
	AnomalyRunLength int
}

// PaymentsConfig carries ledger defaults.
type PaymentsConfig struct {
	DefaultAdmissionFee float64
}

// ProductsConfig tunes the store module.
type ProductsConfig struct {
	LowStockThreshold int
}

// NotificationsConfig selects the delivery backend.
type NotificationsConfig struct {
	Provider      string // "log" or "twilio"
	TwilioSID     string
	TwilioToken   string
	TwilioSMSFrom string
	TwilioWAFrom  string
	QueueWorkers  int
	QueueRetries  int
	QueueBuffer   int
}

// RemindersConfig drives the daily reminder sweeps.
type RemindersConfig struct {
	Enabled        bool
	PaymentCron    string
	AttendanceCron string
}

// DashboardConfig governs dashboard cache tuning.
type DashboardConfig struct {
	CacheTTL time.Duration
}

// ProofsConfig controls payment proof storage and signed URLs.
type ProofsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		QRValidMinutes:   v.GetInt("QR_VALID_MINUTES"),
		AnomalyRunLength: v.GetInt("ANOMALY_RUN_LENGTH"),
	}

	cfg.Payments = PaymentsConfig{
		DefaultAdmissionFee: v.GetFloat64("DEFAULT_ADMISSION_FEE"),
	}

	cfg.Products = ProductsConfig{
		LowStockThreshold: v.GetInt("LOW_STOCK_THRESHOLD"),
	}

	cfg.Notifications = NotificationsConfig{
		Provider:      v.GetString("NOTIFY_PROVIDER"),
		TwilioSID:     v.GetString("TWILIO_ACCOUNT_SID"),
		TwilioToken:   v.GetString("TWILIO_AUTH_TOKEN"),
		TwilioSMSFrom: v.GetString("TWILIO_SMS_FROM"),
		TwilioWAFrom:  v.GetString("TWILIO_WHATSAPP_FROM"),
		QueueWorkers:  v.GetInt("NOTIFY_QUEUE_WORKERS"),
		QueueRetries:  v.GetInt("NOTIFY_QUEUE_RETRIES"),
		QueueBuffer:   v.GetInt("NOTIFY_QUEUE_BUFFER"),
	}

	cfg.Reminders = RemindersConfig{
		Enabled:        v.GetBool("ENABLE_REMINDERS"),
		PaymentCron:    v.GetString("PAYMENT_REMINDER_CRON"),
		AttendanceCron: v.GetString("ATTENDANCE_REMINDER_CRON"),
	}

	cfg.Dashboard = DashboardConfig{
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Proofs = ProofsConfig{
		StorageDir:      v.GetString("PROOFS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("PROOFS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("PROOFS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academy")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QR_VALID_MINUTES", 30)
	v.SetDefault("ANOMALY_RUN_LENGTH", 3)

	v.SetDefault("DEFAULT_ADMISSION_FEE", 500)
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)

	v.SetDefault("NOTIFY_PROVIDER", "log")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_SMS_FROM", "")
	v.SetDefault("TWILIO_WHATSAPP_FROM", "")
	v.SetDefault("NOTIFY_QUEUE_WORKERS", 2)
	v.SetDefault("NOTIFY_QUEUE_RETRIES", 3)
	v.SetDefault("NOTIFY_QUEUE_BUFFER", 64)

	v.SetDefault("ENABLE_REMINDERS", false)
	v.SetDefault("PAYMENT_REMINDER_CRON", "0 9 * * *")
	v.SetDefault("ATTENDANCE_REMINDER_CRON", "0 18 * * *")

	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("PROOFS_STORAGE_DIR", "./proofs")
	v.SetDefault("PROOFS_SIGNED_URL_SECRET", "dev_proofs_secret")
	v.SetDefault("PROOFS_SIGNED_URL_TTL", "30m")
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

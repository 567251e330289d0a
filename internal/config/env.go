package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"transitpay/internal/domain"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr     string
	GinMode     string
	LogMode     string
	JWTSecret   string
	CORSOrigins []string

	DB        DBConfig
	Mpesa     MpesaConfig
	Reconcile ReconcileConfig
	Notify    NotifyConfig
	Kafka     KafkaConfig
}

type DBConfig struct {
	User     string
	Password string
	Addr     string
	Name     string

	// BootstrapSchema creates the service-owned tables on boot.
	BootstrapSchema bool
}

// MpesaConfig holds Daraja STK push credentials.
type MpesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	Passkey         string
	CallbackURL     string
	TransactionType string
	Timeout         time.Duration
}

type ReconcileConfig struct {
	PollInterval     time.Duration
	RateLimitBackoff time.Duration
	SweepInterval    time.Duration
	SweepMinAge      time.Duration
	SweepBatch       int
}

type NotifyConfig struct {
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// LoadEnv reads .env (when present) and the process environment.
func LoadEnv() Env {
	_ = godotenv.Load()

	return Env{
		AppAddr:     getEnv("APP_ADDR", ":8080"),
		GinMode:     getEnv("GIN_MODE", ""),
		LogMode:     getEnv("LOG_MODE", "production"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		DB: DBConfig{
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Addr:     getEnv("DB_ADDR", "127.0.0.1:3306"),
			Name:     getEnv("DB_NAME", "transit_fares"),

			BootstrapSchema: getEnvBool("DB_BOOTSTRAP_SCHEMA", false),
		},
		Mpesa: MpesaConfig{
			BaseURL:         getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:       getEnv("MPESA_SHORTCODE", ""),
			Passkey:         getEnv("MPESA_PASSKEY", ""),
			CallbackURL:     getEnv("MPESA_CALLBACK_URL", ""),
			TransactionType: getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			Timeout:         getEnvDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			PollInterval:     getEnvDuration("POLL_COOLDOWN", 5*time.Second),
			RateLimitBackoff: getEnvDuration("POLL_RATE_LIMIT_BACKOFF", 65*time.Second),
			SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
			SweepMinAge:      getEnvDuration("SWEEP_MIN_AGE", 2*time.Minute),
			SweepBatch:       getEnvInt("SWEEP_BATCH", 50),
		},
		Notify: NotifyConfig{
			GatewayURL: getEnv("NOTIFY_GATEWAY_URL", ""),
			APIKey:     getEnv("NOTIFY_API_KEY", ""),
			Timeout:    getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_PAYMENT_TOPIC", "fare_payment_events"),
		},
	}
}

// Validate lists the settings a push cannot be attempted without.
func (m MpesaConfig) Validate() error {
	missing := []string{}
	check := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	check("MPESA_BASE_URL", m.BaseURL)
	check("MPESA_CONSUMER_KEY", m.ConsumerKey)
	check("MPESA_CONSUMER_SECRET", m.ConsumerSecret)
	check("MPESA_SHORTCODE", m.ShortCode)
	check("MPESA_PASSKEY", m.Passkey)
	check("MPESA_CALLBACK_URL", m.CallbackURL)
	if len(missing) > 0 {
		return domain.ConfigurationError{Missing: missing}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return fallback
}

func splitList(raw string) []string {
	out := []string{}
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

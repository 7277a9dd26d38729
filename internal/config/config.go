package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Insecure default values that must never reach production
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"whsec_test":                           true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Panel          PanelConfig
	Billing        BillingConfig
	Notify         NotifyConfig
	InternalSecret string

	// SuspendOnFailedPayment suspends the service when an invoice is
	// marked uncollectible instead of leaving it active.
	SuspendOnFailedPayment bool
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	Schema   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

// PanelConfig points at the infrastructure control-plane. AppKey is
// the application-scope API key (nodes, servers, users); ClientKey is
// the client-scope key (power, commands, utilization).
type PanelConfig struct {
	URL       string
	AppKey    string
	ClientKey string
}

// BillingConfig points at the billing provider API and carries the
// webhook signing secret.
type BillingConfig struct {
	APIURL             string
	SecretKey          string
	WebhookSecret      string
	SignatureTolerance time.Duration
}

type NotifyConfig struct {
	WebhookURL string
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8010"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "kratos_user"),
			Password: getEnv("DB_PASSWORD", "kratos_pass"),
			DBName:   getEnv("DB_NAME", "kratos_db"),
			Schema:   getEnv("DB_SCHEMA", "provisioning"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Panel: PanelConfig{
			URL:       getEnv("PANEL_URL", "http://localhost:8080"),
			AppKey:    getEnv("PANEL_APP_KEY", ""),
			ClientKey: getEnv("PANEL_CLIENT_KEY", ""),
		},
		Billing: BillingConfig{
			APIURL:             getEnv("BILLING_API_URL", "https://api.stripe.com"),
			SecretKey:          getEnv("BILLING_SECRET_KEY", ""),
			WebhookSecret:      getEnv("BILLING_WEBHOOK_SECRET", ""),
			SignatureTolerance: time.Duration(getEnvInt("BILLING_SIGNATURE_TOLERANCE_SECONDS", 300)) * time.Second,
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		InternalSecret:         getEnv("INTERNAL_SECRET", ""),
		SuspendOnFailedPayment: getEnvBool("SUSPEND_ON_FAILED_PAYMENT", false),
	}

	// Startup log without secrets
	log.Printf("[config] Provisioning Service loaded: port=%s db=%s/%s.%s panel=%s",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Database.Schema, cfg.Panel.URL)

	return cfg
}

// Validate rejects insecure or missing secrets. Run it before serving
// in anything but local development.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}

	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value (current value is insecure or empty)")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}

	if insecureDefaults[c.Billing.WebhookSecret] {
		return fmt.Errorf("BILLING_WEBHOOK_SECRET must be set to a secure value")
	}
	if c.Panel.AppKey == "" {
		return fmt.Errorf("PANEL_APP_KEY must be set")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	domainerrors "fintrust/internal/errors"
)

// Config holds every setting the settlement service reads at startup.
type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`
	DBPort      string `mapstructure:"DB_PORT"`

	RedisEnabled  bool   `mapstructure:"REDIS_ENABLED"`
	RedisHost     string `mapstructure:"REDIS_HOST"`
	RedisPort     string `mapstructure:"REDIS_PORT"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	LedgerMode string  `mapstructure:"LEDGER_MODE"`
	LedgerURL  string  `mapstructure:"LEDGER_URL"`
	LedgerRPS  float64 `mapstructure:"LEDGER_RPS"`

	ScorerMode     string        `mapstructure:"SCORER_MODE"`
	ScorerURL      string        `mapstructure:"SCORER_URL"`
	RiskThreshold  float64       `mapstructure:"RISK_THRESHOLD"`
	VelocityWindow time.Duration `mapstructure:"VELOCITY_WINDOW"`

	ScoringTimeout time.Duration `mapstructure:"SCORING_TIMEOUT"`
	LedgerTimeout  time.Duration `mapstructure:"LEDGER_TIMEOUT"`
	BridgeTimeout  time.Duration `mapstructure:"BRIDGE_TIMEOUT"`
	AuditTimeout   time.Duration `mapstructure:"AUDIT_TIMEOUT"`
	LockTTL        time.Duration `mapstructure:"LOCK_TTL"`

	BridgeRates     string `mapstructure:"BRIDGE_RATES"`
	BridgeRatesFile string `mapstructure:"BRIDGE_RATES_FILE"`
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`

	JWKSURL         string `mapstructure:"JWKS_URL"`
	JWTAudience     string `mapstructure:"JWT_AUDIENCE"`
	JWTIssuer       string `mapstructure:"JWT_ISSUER"`
	JWKSRefreshCron string `mapstructure:"JWKS_REFRESH_CRON"`
	AuthDisabled    bool   `mapstructure:"AUTH_DISABLED"`
	AdminGroup      string `mapstructure:"ADMIN_GROUP"`

	ReportsDir  string `mapstructure:"REPORTS_DIR"`
	TxRateLimit int    `mapstructure:"TX_RATE_LIMIT"`
}

var defaults = map[string]interface{}{
	"PORT":              "3000",
	"ENV":               "development",
	"STORE_DRIVER":      "postgres",
	"DB_HOST":           "localhost",
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "fintrust",
	"DB_PORT":           "5432",
	"REDIS_ENABLED":     true,
	"REDIS_HOST":        "localhost",
	"REDIS_PORT":        "6379",
	"REDIS_PASSWORD":    "",
	"REDIS_DB":          0,
	"RABBITMQ_URL":      "",
	"LEDGER_MODE":       "memory",
	"LEDGER_URL":        "",
	"LEDGER_RPS":        20.0,
	"SCORER_MODE":       "local",
	"SCORER_URL":        "",
	"RISK_THRESHOLD":    0.8,
	"VELOCITY_WINDOW":   "1h",
	"SCORING_TIMEOUT":   "2s",
	"LEDGER_TIMEOUT":    "10s",
	"BRIDGE_TIMEOUT":    "1s",
	"AUDIT_TIMEOUT":     "3s",
	"LOCK_TTL":          "30s",
	"BRIDGE_RATES":      "GHS/NGN=70",
	"BRIDGE_RATES_FILE": "",
	"DEFAULT_CURRENCY":  "GHS",
	"JWKS_URL":          "",
	"JWT_AUDIENCE":      "",
	"JWT_ISSUER":        "",
	"JWKS_REFRESH_CRON": "@every 1h",
	"AUTH_DISABLED":     false,
	"ADMIN_GROUP":       "ledger-admins",
	"REPORTS_DIR":       "temp_reports",
	"TX_RATE_LIMIT":     30,
}

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// Load reads the configuration from the environment through viper.
// Call LoadEnv first when a .env file should be honored.
func Load() (*Config, error) {
	v := viper.GetViper()
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domainerrors.Fatal("config_decode", fmt.Errorf("decode config: %w", err))
	}
	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot serve traffic with.
func (c *Config) Validate() error {
	if c.RiskThreshold <= 0 || c.RiskThreshold > 1 {
		return domainerrors.Fatal("risk_threshold", fmt.Errorf("RISK_THRESHOLD must be in (0,1], got %v", c.RiskThreshold))
	}
	if c.JWKSURL == "" && !c.AuthDisabled {
		return domainerrors.Fatal("jwks_url", fmt.Errorf("JWKS_URL is required unless AUTH_DISABLED is set"))
	}
	if c.AuthDisabled && c.IsProduction() {
		return domainerrors.Fatal("auth_disabled", fmt.Errorf("AUTH_DISABLED is not allowed in production"))
	}
	if c.LedgerMode == "gateway" && c.LedgerURL == "" {
		return domainerrors.Fatal("ledger_url", fmt.Errorf("LEDGER_URL is required when LEDGER_MODE=gateway"))
	}
	if c.ScorerMode == "remote" && c.ScorerURL == "" {
		return domainerrors.Fatal("scorer_url", fmt.Errorf("SCORER_URL is required when SCORER_MODE=remote"))
	}
	if c.BridgeRates == "" && c.BridgeRatesFile == "" {
		return domainerrors.Fatal("bridge_rates", fmt.Errorf("no bridge rate table configured"))
	}
	return nil
}

// IsProduction checks if the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DSN builds the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

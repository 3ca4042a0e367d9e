package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Session   SessionConfig
	Trial     TrialConfig
	Webhook   WebhookConfig
	Payment   PaymentConfig
	Email     EmailConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Worker    WorkerConfig
	Products  []ProductConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
	AllowOrigins   []string      `mapstructure:"allowOrigins"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
	AutoMigrate     bool          `mapstructure:"autoMigrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SessionConfig struct {
	Secret       string        `mapstructure:"secret"`
	Issuer       string        `mapstructure:"issuer"`
	TTL          time.Duration `mapstructure:"ttl"`
	CookieName   string        `mapstructure:"cookieName"`
	CookieDomain string        `mapstructure:"cookieDomain"`
	CookieSecure bool          `mapstructure:"cookieSecure"`
}

type TrialConfig struct {
	DurationDays int           `mapstructure:"durationDays"`
	Retention    time.Duration `mapstructure:"retention"`
}

type WebhookConfig struct {
	Secret    string        `mapstructure:"secret"`
	Tolerance time.Duration `mapstructure:"tolerance"`
	ClaimTTL  time.Duration `mapstructure:"claimTTL"`
	Retention time.Duration `mapstructure:"retention"`
}

type PaymentConfig struct {
	BaseURL string        `mapstructure:"baseURL"`
	APIKey  string        `mapstructure:"apiKey"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EmailConfig struct {
	BaseURL           string        `mapstructure:"baseURL"`
	APIKey            string        `mapstructure:"apiKey"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requestsPerSecond"`
	PurchaseTemplate  string        `mapstructure:"purchaseTemplate"`
	MaxRetry          int           `mapstructure:"maxRetry"`
}

type IdentityConfig struct {
	FirebaseProjectID string `mapstructure:"firebaseProjectID"`
}

type RateLimitConfig struct {
	IPSalt   string                  `mapstructure:"ipSalt"`
	Policies map[string]PolicyConfig `mapstructure:"policies"`
}

type PolicyConfig struct {
	Limit      int           `mapstructure:"limit"`
	Window     time.Duration `mapstructure:"window"`
	FailClosed bool          `mapstructure:"failClosed"`
}

type CacheConfig struct {
	ValidationSize int           `mapstructure:"validationSize"`
	ValidationTTL  time.Duration `mapstructure:"validationTTL"`
}

type WorkerConfig struct {
	Concurrency       int    `mapstructure:"concurrency"`
	GraceSweepCron    string `mapstructure:"graceSweepCron"`
	TrialPurgeCron    string `mapstructure:"trialPurgeCron"`
	WebhookPurgeCron  string `mapstructure:"webhookPurgeCron"`
	DisableScheduling bool   `mapstructure:"disableScheduling"`
}

// ProductConfig maps a payment provider product id to the plan it grants. The
// catalog is a list rather than a map because viper lowercases map keys and
// provider ids are case-sensitive.
type ProductConfig struct {
	ID          string `mapstructure:"id"`
	LicenseType string `mapstructure:"licenseType"`
	MaxDevices  int    `mapstructure:"maxDevices"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)
	viper.SetDefault("server.allowOrigins", []string{"http://localhost:3000"})

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.maxOpenConns", 25)
	viper.SetDefault("database.maxIdleConns", 5)
	viper.SetDefault("database.connMaxLifetime", 5*time.Minute)
	viper.SetDefault("database.autoMigrate", true)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")

	viper.SetDefault("session.issuer", "entitlement-service")
	viper.SetDefault("session.ttl", 7*24*time.Hour)
	viper.SetDefault("session.cookieName", "ks_session")
	viper.SetDefault("session.cookieSecure", true)

	viper.SetDefault("trial.durationDays", 7)
	viper.SetDefault("trial.retention", 90*24*time.Hour)

	viper.SetDefault("webhook.tolerance", 5*time.Minute)
	viper.SetDefault("webhook.claimTTL", 5*time.Minute)
	viper.SetDefault("webhook.retention", 30*24*time.Hour)

	viper.SetDefault("payment.timeout", 10*time.Second)

	viper.SetDefault("email.baseURL", "https://app.loops.so")
	viper.SetDefault("email.timeout", 10*time.Second)
	viper.SetDefault("email.requestsPerSecond", 10)
	viper.SetDefault("email.maxRetry", 5)
	viper.SetDefault("email.purchaseTemplate", "license_purchase")

	viper.SetDefault("cache.validationSize", 10000)
	viper.SetDefault("cache.validationTTL", time.Minute)

	viper.SetDefault("worker.concurrency", 10)
	viper.SetDefault("worker.graceSweepCron", "@every 1h")
	viper.SetDefault("worker.trialPurgeCron", "@daily")
	viper.SetDefault("worker.webhookPurgeCron", "@daily")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Products) == 0 {
		cfg.Products = DefaultProducts()
	}

	return &cfg, nil
}

// DefaultProducts is the catalog used when none is configured; ids are placeholders
// for local development.
func DefaultProducts() []ProductConfig {
	return []ProductConfig{
		{ID: "prod_lifetime_basic", LicenseType: "lifetime_basic", MaxDevices: 1},
		{ID: "prod_lifetime", LicenseType: "lifetime", MaxDevices: 2},
		{ID: "prod_lifetime_team", LicenseType: "lifetime", MaxDevices: 10},
		{ID: "prod_monthly", LicenseType: "monthly", MaxDevices: 4},
		{ID: "prod_yearly", LicenseType: "yearly", MaxDevices: 4},
	}
}

/**
 * @description
 * This file handles the configuration management for the BudgetLink service.
 * It uses the Viper library to read settings from environment variables or a .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported user store backends.
const (
	StoreDriverDataAPI  = "dataapi"
	StoreDriverPostgres = "postgres"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	Port        string `mapstructure:"PORT"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`

	DataAPIBaseURL    string `mapstructure:"DATA_API_BASE_URL"`
	DataAPIPublicKey  string `mapstructure:"DATA_API_PUBLIC_KEY"`
	DataAPIPrivateKey string `mapstructure:"DATA_API_PRIVATE_KEY"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`

	TellerAPIBaseURL         string        `mapstructure:"TELLER_API_BASE_URL"`
	TellerCertPath           string        `mapstructure:"TELLER_CERT_PATH"`
	TellerKeyPath            string        `mapstructure:"TELLER_KEY_PATH"`
	TellerTimeout            time.Duration `mapstructure:"TELLER_TIMEOUT"`
	TellerInsecureSkipVerify bool          `mapstructure:"TELLER_INSECURE_SKIP_VERIFY"`
	AggregatorConcurrency    int           `mapstructure:"AGGREGATOR_CONCURRENCY"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	LoginRateLimitPerMinute int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from the given path's .env file and the environment.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_DRIVER", StoreDriverDataAPI)
	viper.SetDefault("TELLER_API_BASE_URL", "https://api.teller.io")
	viper.SetDefault("TELLER_CERT_PATH", "teller/certificate.pem")
	viper.SetDefault("TELLER_KEY_PATH", "teller/private_key.pem")
	viper.SetDefault("TELLER_TIMEOUT", 10*time.Second)
	viper.SetDefault("TELLER_INSECURE_SKIP_VERIFY", false)
	viper.SetDefault("AGGREGATOR_CONCURRENCY", 4)
	viper.SetDefault("JWT_TTL", 24*time.Hour)
	viper.SetDefault("EVENTS_EXCHANGE", "budgetlink_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "budgetlink:rate_limit")
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	// Bind envs explicitly so containers pick them up reliably
	for _, key := range []string{
		"SERVER_PORT", "PORT", "STORE_DRIVER",
		"DATA_API_BASE_URL", "DATA_API_PUBLIC_KEY", "DATA_API_PRIVATE_KEY", "DATABASE_URL",
		"TELLER_API_BASE_URL", "TELLER_CERT_PATH", "TELLER_KEY_PATH", "TELLER_TIMEOUT",
		"TELLER_INSECURE_SKIP_VERIFY", "AGGREGATOR_CONCURRENCY",
		"JWT_SECRET", "JWT_TTL",
		"RABBITMQ_URL", "EVENTS_EXCHANGE",
		"REDIS_URL", "REDIS_RATE_LIMIT_PREFIX", "LOGIN_RATE_LIMIT_PER_MINUTE",
		"CORS_ALLOWED_ORIGINS",
	} {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Error reading config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// A platform-provided PORT wins over SERVER_PORT.
	if p := strings.TrimSpace(config.Port); p != "" {
		config.ServerPort = p
	}
	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	config.CORSAllowedOrigins = splitOrigins(config.CORSAllowedOrigins)
	if config.AggregatorConcurrency < 1 {
		config.AggregatorConcurrency = 1
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.StoreDriver {
	case StoreDriverDataAPI:
		var missing []string
		if c.DataAPIBaseURL == "" {
			missing = append(missing, "DATA_API_BASE_URL")
		}
		if c.DataAPIPublicKey == "" {
			missing = append(missing, "DATA_API_PUBLIC_KEY")
		}
		if c.DataAPIPrivateKey == "" {
			missing = append(missing, "DATA_API_PRIVATE_KEY")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing data API settings: %s", strings.Join(missing, ", "))
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

// splitOrigins accepts both a list and a single comma-separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, origin := range strings.Split(item, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				out = append(out, origin)
			}
		}
	}
	return out
}

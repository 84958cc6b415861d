/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, with an optional
 * .env file in the working directory.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	AuthModeStatic = "static"
	AuthModeJWKS   = "jwks"
)

// Config holds all the configuration variables for the roundup-service.
type Config struct {
	ServerPort              string        `mapstructure:"SERVER_PORT"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	StoreTimeout            time.Duration `mapstructure:"STORE_TIMEOUT"`
	DefaultListLimit        int           `mapstructure:"DEFAULT_LIST_LIMIT"`
	MaxListLimit            int           `mapstructure:"MAX_LIST_LIMIT"`
	AuthMode                string        `mapstructure:"AUTH_MODE"`
	MockUserEmail           string        `mapstructure:"MOCK_USER_EMAIL"`
	JWKSURL                 string        `mapstructure:"JWKS_URL"`
	JWTAudience             string        `mapstructure:"JWT_AUDIENCE"`
	JWTIssuer               string        `mapstructure:"JWT_ISSUER"`
	FrontendURL             string        `mapstructure:"FRONTEND_URL"`
	RedisURL                string        `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string        `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	WriteRateLimitPerMinute int           `mapstructure:"WRITE_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL             string        `mapstructure:"RABBITMQ_URL"`
	EventsExchange          string        `mapstructure:"EVENTS_EXCHANGE"`
	AutoDonateSchedule      string        `mapstructure:"AUTO_DONATE_SCHEDULE"`
	AutoDonateBatchSize     int           `mapstructure:"AUTO_DONATE_BATCH_SIZE"`
	ApplySchema             bool          `mapstructure:"APPLY_SCHEMA"`
}

// LoadConfig reads configuration from environment variables and an optional .env
// file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// AUTO_DONATE_SCHEDULE="" must be able to switch the job off.
	viper.AllowEmptyEnv(true)

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_TIMEOUT", "5s")
	viper.SetDefault("DEFAULT_LIST_LIMIT", 10)
	viper.SetDefault("MAX_LIST_LIMIT", 100)
	viper.SetDefault("AUTH_MODE", AuthModeStatic)
	viper.SetDefault("MOCK_USER_EMAIL", "user@example.com")
	viper.SetDefault("FRONTEND_URL", "*")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "roundup:rate_limit")
	viper.SetDefault("WRITE_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("EVENTS_EXCHANGE", "roundup.events")
	viper.SetDefault("AUTO_DONATE_SCHEDULE", "@every 1h")
	viper.SetDefault("AUTO_DONATE_BATCH_SIZE", 50)
	viper.SetDefault("APPLY_SCHEMA", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("STORE_TIMEOUT")
	_ = viper.BindEnv("DEFAULT_LIST_LIMIT")
	_ = viper.BindEnv("MAX_LIST_LIMIT")
	_ = viper.BindEnv("AUTH_MODE")
	_ = viper.BindEnv("MOCK_USER_EMAIL")
	_ = viper.BindEnv("JWKS_URL", "JWKS_URL", "CLERK_JWKS_URL")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("FRONTEND_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("WRITE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("AUTO_DONATE_SCHEDULE")
	_ = viper.BindEnv("AUTO_DONATE_BATCH_SIZE")
	_ = viper.BindEnv("APPLY_SCHEMA")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.ServerPort) == "" {
		config.ServerPort = "8080"
	}

	config.AuthMode = strings.ToLower(strings.TrimSpace(config.AuthMode))
	if config.AuthMode != AuthModeJWKS {
		if config.AuthMode != AuthModeStatic {
			log.Printf("level=warn component=config msg=\"unknown AUTH_MODE; using static identity\" auth_mode=%q", config.AuthMode)
		}
		config.AuthMode = AuthModeStatic
	}
	config.MockUserEmail = strings.TrimSpace(config.MockUserEmail)
	if config.MockUserEmail == "" {
		config.MockUserEmail = "user@example.com"
	}

	if config.StoreTimeout <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive STORE_TIMEOUT; using 5s\" store_timeout=%s", config.StoreTimeout)
		config.StoreTimeout = 5 * time.Second
	}
	if config.DefaultListLimit <= 0 {
		config.DefaultListLimit = 10
	}
	if config.MaxListLimit <= 0 {
		config.MaxListLimit = 100
	}
	if config.MaxListLimit < config.DefaultListLimit {
		log.Printf("level=warn component=config msg=\"MAX_LIST_LIMIT below DEFAULT_LIST_LIMIT; raising cap\" max=%d default=%d", config.MaxListLimit, config.DefaultListLimit)
		config.MaxListLimit = config.DefaultListLimit
	}
	if config.WriteRateLimitPerMinute < 0 {
		config.WriteRateLimitPerMinute = 0
	}
	if config.AutoDonateBatchSize <= 0 {
		config.AutoDonateBatchSize = 50
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "roundup:rate_limit"
	}
	config.FrontendURL = strings.TrimSpace(config.FrontendURL)
	if config.FrontendURL == "" {
		config.FrontendURL = "*"
	}
	config.AutoDonateSchedule = strings.TrimSpace(config.AutoDonateSchedule)

	return
}

// AllowedOrigins splits FRONTEND_URL on commas for the CORS middleware.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.FrontendURL, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

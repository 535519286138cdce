/**
 * @description
 * Configuration management for the settlement service. Uses Viper to read
 * settings from environment variables, with an optional .env file, defaults,
 * and coercion of out-of-range values.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration library.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement service.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	JWKSURL              string `mapstructure:"JWKS_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	NotificationExchange string `mapstructure:"NOTIFICATION_EXCHANGE"`
	PlatformAccountID    string `mapstructure:"PLATFORM_ACCOUNT_ID"`

	EscrowReleaseWindowHours   int `mapstructure:"ESCROW_RELEASE_WINDOW_HOURS"`
	EscrowSweepIntervalMinutes int `mapstructure:"ESCROW_SWEEP_INTERVAL_MINUTES"`

	SellerSharePercent int `mapstructure:"SELLER_SHARE_PERCENT"`
	DriverSharePercent int `mapstructure:"DRIVER_SHARE_PERCENT"`
	PlatformFeePercent int `mapstructure:"PLATFORM_FEE_PERCENT"`

	ArrivalRadiusMeters           float64 `mapstructure:"ARRIVAL_RADIUS_METERS"`
	ArrivalPingRateLimitPerMinute int     `mapstructure:"ARRIVAL_PING_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "settlement:rate_limit")
	viper.SetDefault("NOTIFICATION_EXCHANGE", "settlement.events")
	viper.SetDefault("ESCROW_RELEASE_WINDOW_HOURS", 168) // 7 days
	viper.SetDefault("ESCROW_SWEEP_INTERVAL_MINUTES", 5)
	viper.SetDefault("SELLER_SHARE_PERCENT", 80)
	viper.SetDefault("DRIVER_SHARE_PERCENT", 15)
	viper.SetDefault("PLATFORM_FEE_PERCENT", 5)
	viper.SetDefault("ARRIVAL_RADIUS_METERS", 100)
	viper.SetDefault("ARRIVAL_PING_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "SETTLEMENT_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("PLATFORM_ACCOUNT_ID")
	_ = viper.BindEnv("ESCROW_RELEASE_WINDOW_HOURS")
	_ = viper.BindEnv("ESCROW_SWEEP_INTERVAL_MINUTES")
	_ = viper.BindEnv("SELLER_SHARE_PERCENT")
	_ = viper.BindEnv("DRIVER_SHARE_PERCENT")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("ARRIVAL_RADIUS_METERS")
	_ = viper.BindEnv("ARRIVAL_PING_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("SETTLEMENT_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "settlement:rate_limit"
	}

	if config.EscrowReleaseWindowHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive release window; using default\" hours=%d", config.EscrowReleaseWindowHours)
		config.EscrowReleaseWindowHours = 168
	}
	if config.EscrowSweepIntervalMinutes <= 0 {
		config.EscrowSweepIntervalMinutes = 5
	}

	// The split shares must cover the whole total. Fall back to the standard
	// 80/15/5 split rather than creating escrows that cannot balance.
	if config.SellerSharePercent < 0 || config.DriverSharePercent < 0 || config.PlatformFeePercent < 0 ||
		config.SellerSharePercent+config.DriverSharePercent+config.PlatformFeePercent != 100 {
		log.Printf("level=warn component=config msg=\"split shares do not sum to 100; using 80/15/5\" seller=%d driver=%d platform=%d",
			config.SellerSharePercent, config.DriverSharePercent, config.PlatformFeePercent)
		config.SellerSharePercent = 80
		config.DriverSharePercent = 15
		config.PlatformFeePercent = 5
	}

	if config.ArrivalRadiusMeters <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive arrival radius; using 100m\" radius=%f", config.ArrivalRadiusMeters)
		config.ArrivalRadiusMeters = 100
	}
	if config.ArrivalPingRateLimitPerMinute < 0 {
		config.ArrivalPingRateLimitPerMinute = 0
	}

	return
}

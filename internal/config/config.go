package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries everything outside the database DSN, which the database
// package reads from the environment itself.
type Config struct {
	Port      string
	RedisAddr string
	APIKey    string

	PesapalBaseURL        string
	PesapalConsumerKey    string
	PesapalConsumerSecret string
	PesapalCallbackURL    string
	PesapalNotificationID string
	Currency              string
	GatewayTimeout        time.Duration

	SweepCronSpec string
	StaleAfter    time.Duration
}

func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		RedisAddr: getEnv("REDIS_URL", "localhost:6379"),
		APIKey:    os.Getenv("API_KEY"),

		PesapalBaseURL:        getEnv("PESAPAL_BASE_URL", "https://cybqa.pesapal.com/pesapalv3/api"),
		PesapalConsumerKey:    os.Getenv("PESAPAL_CONSUMER_KEY"),
		PesapalConsumerSecret: os.Getenv("PESAPAL_CONSUMER_SECRET"),
		PesapalCallbackURL:    os.Getenv("PESAPAL_CALLBACK_URL"),
		PesapalNotificationID: os.Getenv("PESAPAL_NOTIFICATION_ID"),
		Currency:              getEnv("PESAPAL_CURRENCY", "KES"),
		GatewayTimeout:        getDuration("PESAPAL_TIMEOUT_SECONDS", 30) * time.Second,

		SweepCronSpec: getEnv("SWEEP_CRON", "*/5 * * * *"),
		StaleAfter:    getDuration("SWEEP_STALE_MINUTES", 15) * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(fallback)
}

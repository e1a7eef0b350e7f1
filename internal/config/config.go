package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                string
	AllowedOrigin       string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	AuthSecret          string
	AccessTokenTTLHours int
	AdminEmail          string
	DashboardTTLSeconds int
	LowStockThreshold   int
	ExpiryWindowDays    int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_HOURS", "24"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 24
	}
	dashTTL, err := strconv.Atoi(getEnv("DASHBOARD_TTL_SECONDS", "30"))
	if err != nil || dashTTL < 1 {
		dashTTL = 30
	}
	lowStock, err := strconv.Atoi(getEnv("LOW_STOCK_THRESHOLD", "5"))
	if err != nil || lowStock < 0 {
		lowStock = 5
	}
	expiryDays, err := strconv.Atoi(getEnv("EXPIRY_WINDOW_DAYS", "30"))
	if err != nil || expiryDays < 1 {
		expiryDays = 30
	}

	cfg := Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		AuthSecret:          strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLHours: tokenTTL,
		AdminEmail:          strings.TrimSpace(getEnv("ADMIN_EMAIL", "admin@rationshop.local")),
		DashboardTTLSeconds: dashTTL,
		LowStockThreshold:   lowStock,
		ExpiryWindowDays:    expiryDays,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

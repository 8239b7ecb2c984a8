package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database (비어 있으면 인메모리 스토어)
	DatabaseURL string

	// Redis (비어 있으면 단일 인스턴스 모드)
	RedisURL string

	// Kafka (비어 있으면 매치 이벤트 발행 생략)
	KafkaBrokers []string
	KafkaTopic   string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	TeamSize         int
	AllowDualRole    bool
	SelectionTimeout time.Duration
	SweepInterval    time.Duration
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		KafkaTopic:         getEnv("KAFKA_MATCH_TOPIC", "match-found"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:      parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		TeamSize:           parseInt(getEnv("TEAM_SIZE", "5"), 5),
		AllowDualRole:      parseBool(getEnv("ALLOW_DUAL_ROLE", "true"), true),
		SelectionTimeout:   parseDuration(getEnv("SELECTION_TIMEOUT", "25s"), 25*time.Second),
		SweepInterval:      parseDuration(getEnv("SWEEP_INTERVAL", "2s"), 2*time.Second),
		CORSAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.CORSAllowedOrigins = strings.Split(origins, ",")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

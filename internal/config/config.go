package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime options recognized by the service.
type Config struct {
	Port           string
	DatabaseDSN    string
	RedisAddr      string
	FaceServiceURL string
	JWTSecret      string
	JWTAudience    string

	// FaceMatchThreshold is the maximum embedding distance accepted as a
	// match. Lower is stricter.
	FaceMatchThreshold float64
	// LivenessThreshold is the minimum aggregate liveness score accepted as
	// live. Higher is stricter.
	LivenessThreshold float64
	// AllowedLocationRadius is the fallback geofence radius in meters for
	// authorized locations that omit their own.
	AllowedLocationRadius float64
	// AnalyzerTimeout bounds how long the liveness check waits for each
	// individual signal analyzer.
	AnalyzerTimeout time.Duration
	// JWTExpiration controls how long issued login tokens stay valid.
	JWTExpiration time.Duration
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnv("PORT", "8080"),
		DatabaseDSN:           getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=auracheck port=5432 sslmode=disable"),
		RedisAddr:             getEnv("REDIS_ADDR", "redis:6379"),
		FaceServiceURL:        getEnv("FACE_SERVICE_URL", "http://face-service:8501"),
		JWTSecret:             getEnv("JWT_SECRET", "dev-secret"),
		JWTAudience:           os.Getenv("JWT_AUDIENCE"),
		FaceMatchThreshold:    getFloat("FACE_MATCH_THRESHOLD", 0.2),
		LivenessThreshold:     getFloat("LIVENESS_THRESHOLD", 0.65),
		AllowedLocationRadius: getFloat("ALLOWED_LOCATION_RADIUS", 100),
		AnalyzerTimeout:       time.Duration(getInt("ANALYZER_TIMEOUT_MS", 3000)) * time.Millisecond,
		JWTExpiration:         time.Duration(getInt("JWT_EXPIRATION_SECONDS", 3600)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

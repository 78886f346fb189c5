package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host         string
	Port         int
	AllowOrigins []string
	LogLevel     string
	MaxUploadMB  int
	LogFile      string

	DatabaseURL   string
	LocalDBPath   string
	RedisAddr     string
	RedisPassword string

	CatalogCacheTTL time.Duration
	CatalogPageSize int
	LearningLimit   int
	ChunkSize       int
	Workers         int

	MatchThreshold   int
	SimilarThreshold int
}

// Load reads the environment, seeded from .env when one exists. Variables
// already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()

	origins := strings.Split(getenv("ALLOW_ORIGINS", "*"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return Config{
		Host:         getenv("HOST", "127.0.0.1"),
		Port:         getint("PORT", 8082),
		AllowOrigins: origins,
		LogLevel:     getenv("LOG_LEVEL", "info"),
		MaxUploadMB:  getint("MAX_UPLOAD_MB", 64),
		LogFile:      getenv("LOG_FILE", "logs/partidas-service.log"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		LocalDBPath:   getenv("LOCAL_DB_PATH", "data/partidas.db"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		CatalogCacheTTL: getduration("CATALOG_CACHE_TTL", 5*time.Minute),
		CatalogPageSize: getint("CATALOG_PAGE_SIZE", 1000),
		LearningLimit:   getint("LEARNING_LIMIT", 100),
		ChunkSize:       getint("CHUNK_SIZE", 200),
		Workers:         getint("MATCH_WORKERS", 0),

		MatchThreshold:   getint("MATCH_THRESHOLD", 85),
		SimilarThreshold: getint("SIMILAR_THRESHOLD", 60),
	}
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Validate rejects threshold pairs that would break classification.
func (c Config) Validate() error {
	if c.SimilarThreshold < 0 || c.MatchThreshold > 100 || c.SimilarThreshold > c.MatchThreshold {
		return fmt.Errorf("invalid thresholds: similar=%d match=%d", c.SimilarThreshold, c.MatchThreshold)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid CHUNK_SIZE %d", c.ChunkSize)
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	n, err := strconv.Atoi(getenv(k, ""))
	if err != nil {
		return def
	}
	return n
}

func getduration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getenv(k, ""))
	if err != nil {
		return def
	}
	return d
}

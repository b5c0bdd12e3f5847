package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr string
	RedisDB   int

	ServerPort  string
	JWTSecret   string
	CORSOrigins []string

	SandboxWorkDir         string
	SandboxMarginMs        int
	SandboxCompileBudgetMs int
	NumRankWorkers         int
	ScoringTimeout         time.Duration
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	numWorkers, _ := strconv.Atoi(getEnv("NUM_RANK_WORKERS", "2"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	scoringTimeoutSec, _ := strconv.Atoi(getEnv("SCORING_TIMEOUT_SECONDS", "5"))
	sandboxMarginMs, _ := strconv.Atoi(getEnv("SANDBOX_MARGIN_MS", "500"))
	compileBudgetMs, _ := strconv.Atoi(getEnv("SANDBOX_COMPILE_BUDGET_MS", "10000"))

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   redisDB,

		ServerPort:  getEnv("SERVER_PORT", "8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		SandboxWorkDir:         getEnv("SANDBOX_WORK_DIR", "/tmp/code-execution"),
		SandboxMarginMs:        sandboxMarginMs,
		SandboxCompileBudgetMs: compileBudgetMs,
		NumRankWorkers:         numWorkers,
		ScoringTimeout:         time.Duration(scoringTimeoutSec) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

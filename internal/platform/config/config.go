package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string
	JWTKey  []byte
	JWTExp  time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Root directory for per-submission storage (code + compressed results).
	StorageRoot string

	// Evaluation queue lanes share this prefix: "<prefix>:high" etc.
	EvaluationQueuePrefix string

	// Canonical base URL used in internal-error diagnostics.
	BaseURL   string
	JudgeHost string

	RunnerURL            string
	RunnerTimeoutSeconds int

	AggregateBatchSize int

	RollbarToken string
	Environment  string
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		JWTKey:                []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:                time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "5432"),
		DBUser:                getEnv("DB_USER", "user"),
		DBPassword:            getEnv("DB_PASSWORD", "password"),
		DBName:                getEnv("DB_NAME", "gradex_db"),
		DBSslMode:             getEnv("DB_SSLMODE", "disable"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvAsInt("REDIS_DB", 0),
		StorageRoot:           getEnv("STORAGE_ROOT", "./data/submissions"),
		EvaluationQueuePrefix: getEnv("EVALUATION_QUEUE_PREFIX", "evaluation_queue"),
		BaseURL:               getEnv("BASE_URL", "http://localhost:8080"),
		JudgeHost:             getEnv("JUDGE_HOST", "localhost"),
		RunnerURL:             getEnv("RUNNER_URL", "http://localhost:9000/evaluate"),
		RunnerTimeoutSeconds:  getEnvAsInt("RUNNER_TIMEOUT_SECONDS", 300),
		AggregateBatchSize:    getEnvAsInt("AGGREGATE_BATCH_SIZE", 1000),
		RollbarToken:          getEnv("ROLLBAR_TOKEN", ""),
		Environment:           getEnv("ENVIRONMENT", "development"),
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

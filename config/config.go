package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"predictive-node/core/models"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string

	// Placement heuristic
	AdaptiveInference bool
	ServingTier       models.Tier
	HistoryLength     int // m: bounded prediction history per device
	MaxQueueSize      int // psi_q: queue depth above which load sheds to cloud
	NormalThreshold   int // phi_g: below this many abnormal flags, sensor can self-serve
	AbnormalThreshold int // psi_g: at or above this many abnormal flags, escalate to cloud
	AbnormalLabels    []int
	PolicyFile        string

	// Workers
	WorkerCount int
	WorkerIndex int
	CallbackURL string

	// Redis (broker + decision state)
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisBrokerDB  int
	RedisHistoryDB int
	StoreTimeout   time.Duration

	// Postgres task records (optional; in-memory records when empty)
	DatabaseURL string

	// ClickHouse decision history (optional; disabled when addr empty)
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// MQTT tier commands to devices (optional; disabled when broker empty)
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// Downstream sink for annotated results (optional)
	SinkURL string
}

// Load loads configuration from environment variables, reading a .env
// file first when one is present.
func Load() *Config {
	_ = godotenv.Load()

	historyLength := getEnvInt("PREDICTION_HISTORY_LENGTH", 16)

	// The normal threshold is floored at 1 and the abnormal threshold is
	// capped at the history capacity; values outside that range describe
	// conditions the bounded history can never reach.
	normalThreshold := getEnvInt("NORMAL_PREDICTION_THRESHOLD", 2)
	if normalThreshold < 1 {
		normalThreshold = 1
	}
	abnormalThreshold := getEnvInt("ABNORMAL_PREDICTION_THRESHOLD", 8)
	if historyLength > 0 && abnormalThreshold > historyLength {
		abnormalThreshold = historyLength
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8005"),

		AdaptiveInference: getEnvBool("ADAPTIVE_INFERENCE", false),
		ServingTier:       models.Tier(getEnvInt("SERVING_LAYER", int(models.TierGateway))),
		HistoryLength:     historyLength,
		MaxQueueSize:      getEnvInt("MAX_INFERENCE_QUEUE_SIZE", 10),
		NormalThreshold:   normalThreshold,
		AbnormalThreshold: abnormalThreshold,
		AbnormalLabels:    getEnvIntSlice("ABNORMAL_LABELS", []int{2, 3}),
		PolicyFile:        getEnv("PLACEMENT_POLICY_FILE", ""),

		WorkerCount: getEnvInt("WORKER_COUNT", 1),
		WorkerIndex: getEnvInt("WORKER_INDEX", 1),
		CallbackURL: getEnv("CALLBACK_URL", "http://127.0.0.1:8005/api/v1/model/prediction/result"),

		RedisHost:      getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:      getEnvInt("REDIS_PORT", 6379),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisBrokerDB:  getEnvInt("REDIS_DB_BROKER", 0),
		RedisHistoryDB: getEnvInt("REDIS_DB_HISTORY", 2),
		StoreTimeout:   time.Duration(getEnvInt("STORE_TIMEOUT_MS", 3000)) * time.Millisecond,

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "placement"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "predictive-node"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		SinkURL: getEnv("SINK_URL", ""),
	}
}

// RedisAddr returns the host:port address of the Redis instance.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Validate checks the configuration for states that would leave decision
// branches unreachable. Callers must refuse to start on error.
func (c *Config) Validate() error {
	if c.HistoryLength < 0 {
		return fmt.Errorf("prediction history length must be >= 0, got %d", c.HistoryLength)
	}
	if c.MaxQueueSize < 0 {
		return fmt.Errorf("max inference queue size must be >= 0, got %d", c.MaxQueueSize)
	}
	if c.NormalThreshold < 0 || c.AbnormalThreshold < 0 {
		return fmt.Errorf("prediction thresholds must be >= 0, got normal=%d abnormal=%d",
			c.NormalThreshold, c.AbnormalThreshold)
	}
	if c.NormalThreshold > c.AbnormalThreshold {
		return fmt.Errorf("inverted prediction thresholds: normal=%d > abnormal=%d",
			c.NormalThreshold, c.AbnormalThreshold)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be >= 1, got %d", c.WorkerCount)
	}
	if c.WorkerIndex < 1 || c.WorkerIndex > c.WorkerCount {
		return fmt.Errorf("worker index %d out of range 1..%d", c.WorkerIndex, c.WorkerCount)
	}
	if !c.ServingTier.Valid() {
		return fmt.Errorf("invalid serving layer %d", int(c.ServingTier))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

func getEnvIntSlice(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			log.Printf("Warning: failed to parse %s as int list, using default: %v", key, err)
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}

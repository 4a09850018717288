package queue

import (
	"context"
	"fmt"
	"log"

	"gradex/internal/platform/config"

	"github.com/redis/go-redis/v9"
)

var RDB *redis.Client

func ConnectRedis() {
	RDB = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx := context.Background()
	if _, err := RDB.Ping(ctx).Result(); err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	fmt.Println("Successfully connected to Redis!")
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		fmt.Println("Redis connection closed.")
	}
}

// Lane is a named priority partition of the evaluation queue.
type Lane string

const (
	LaneHigh   Lane = "high"
	LaneNormal Lane = "normal"
	LaneLow    Lane = "low"
)

// LaneKey returns the Redis list key backing a lane.
func LaneKey(lane Lane) string {
	return config.AppConfig.EvaluationQueuePrefix + ":" + string(lane)
}

// LaneKeys returns all lane keys ordered from highest to lowest priority,
// suitable for a multi-key BLPop so high-priority work is served first.
func LaneKeys() []string {
	return []string{LaneKey(LaneHigh), LaneKey(LaneNormal), LaneKey(LaneLow)}
}

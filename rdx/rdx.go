package rdx

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

var Conn *redis.Client

// Initialize Redis connection from environment.
func InitRedis() *redis.Client {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "localhost:6379"
	}

	Conn = redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: os.Getenv("REDIS_PASSWORD"), // Empty if no password
		DB:       0,                           // Default DB
	})

	return Conn
}

// JoinCounter hands out per-room join order numbers. The number seeds
// the joining user's avatar, so losing it only changes appearance.
type JoinCounter struct {
	client *redis.Client
}

func NewJoinCounter(client *redis.Client) *JoinCounter {
	return &JoinCounter{client: client}
}

// Next increments and returns the room's join counter. The key expires
// after a day so abandoned rooms do not accumulate counters.
func (j *JoinCounter) Next(ctx context.Context, roomID string) (int64, error) {
	key := "room:" + roomID + ":joins"
	n, err := j.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if err := j.client.Expire(ctx, key, 24*time.Hour).Err(); err != nil {
		log.Println("join counter expire failed:", err)
	}
	return n, nil
}

package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"relaycrm/config"
	"relaycrm/models"
	"relaycrm/utils"
)

// ProcessRateLimiter throttles the sequence processing trigger per
// organization so a misbehaving scheduler cannot stack runs.
func ProcessRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AppConfig.RateLimitProcess,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			user := c.Locals("user").(*models.User)
			return utils.GenerateRateLimitKey(user.ID, fmt.Sprintf("org-%d", user.OrganizationID), c.Path())
		},
		LimitReached: rateLimitReached,
		Storage:      createRateLimitStorage(),
	})
}

// SenderRateLimiter provides rate limiting for sender test/verify endpoints
func SenderRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AppConfig.RateLimitTestSender,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			user := c.Locals("user").(*models.User)
			return utils.GenerateRateLimitKey(user.ID, c.Params("id"), c.Path())
		},
		LimitReached: rateLimitReached,
		Storage:      createRateLimitStorage(),
	})
}

func rateLimitReached(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	utils.LogEvent("rate_limit_hit", map[string]interface{}{
		"user_id":    user.ID,
		"endpoint":   c.Path(),
		"ip":         c.IP(),
		"user_agent": c.Get("User-Agent"),
	})

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "Too many requests. Please wait before retrying.",
		"retry_after": "1 minute",
	})
}

// createRateLimitStorage creates a persistent storage for rate limiting
func createRateLimitStorage() fiber.Storage {
	if config.AppConfig.Redis.Enabled {
		return NewRedisStorage(config.AppConfig.Redis)
	}
	return nil
}

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(config config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
		}),
	}
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	return r.client.Get(context.Background(), key).Bytes()
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

func (r *RedisStorage) Reset() error {
	return r.client.FlushDB(context.Background()).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

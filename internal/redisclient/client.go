package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"wonderstars/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/rate_limit.lua
var rateLimitScript string

type Client struct {
	rdb       *redis.Client
	rateLimit *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:       rdb,
		rateLimit: redis.NewScript(rateLimitScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheVoucher stores a voucher config under its code with a TTL
func (c *Client) CacheVoucher(ctx context.Context, voucher *models.Voucher, ttl time.Duration) error {
	data, err := json.Marshal(voucher)
	if err != nil {
		return fmt.Errorf("failed to marshal voucher: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf("voucher:%s", voucher.Code), data, ttl).Err()
}

// GetCachedVoucher retrieves a cached voucher config, nil on miss
func (c *Client) GetCachedVoucher(ctx context.Context, code string) (*models.Voucher, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("voucher:%s", code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var voucher models.Voucher
	if err := json.Unmarshal(data, &voucher); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached voucher: %w", err)
	}
	return &voucher, nil
}

// InvalidateVoucher drops a voucher from the cache
func (c *Client) InvalidateVoucher(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("voucher:%s", code)).Err()
}

// CheckRateLimit atomically increments the counter for key and reports
// whether the caller is still inside the quota, plus the seconds remaining
// in the current window.
func (c *Client) CheckRateLimit(ctx context.Context, key string, max int, window time.Duration) (allowed bool, remaining time.Duration, err error) {
	result, err := c.rateLimit.Run(ctx, c.rdb,
		[]string{fmt.Sprintf("ratelimit:%s", key)},
		max, int(window.Seconds()),
	).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected script result type")
	}

	allowedInt, _ := values[0].(int64)
	ttlSec, _ := values[1].(int64)
	return allowedInt == 1, time.Duration(ttlSec) * time.Second, nil
}

// SetOTPCode stores a verification code for a phone with a TTL
func (c *Client) SetOTPCode(ctx context.Context, phone, code string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("otp:%s", phone), code, ttl).Err()
}

// GetOTPCode retrieves the pending verification code for a phone
func (c *Client) GetOTPCode(ctx context.Context, phone string) (string, error) {
	code, err := c.rdb.Get(ctx, fmt.Sprintf("otp:%s", phone)).Result()
	if err == redis.Nil {
		return "", models.ErrOTPNotFound
	}
	return code, err
}

// DeleteOTPCode removes the verification code after a successful match
func (c *Client) DeleteOTPCode(ctx context.Context, phone string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("otp:%s", phone)).Err()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

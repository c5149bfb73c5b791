package security

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// Lua script for sliding window counting
// KEYS[1] = quota key
// ARGV[1] = max count allowed
// ARGV[2] = window size in milliseconds
// ARGV[3] = current timestamp in milliseconds
// ARGV[4] = unique member for this attempt
// Returns {allowed, oldest} where oldest is the score of the oldest entry
const uploadQuotaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    return {0, tonumber(oldest[2])}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`

// UploadQuota caps how many upload URLs one account may request within a
// sliding window. Counts live in Redis so the cap holds across instances.
type UploadQuota struct {
	client *goredis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewUploadQuota returns a quota of limit uploads per window.
// Defaults: 50 uploads per 24h.
func NewUploadQuota(client *goredis.Client, limit int, window time.Duration) *UploadQuota {
	if limit <= 0 {
		limit = 50
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &UploadQuota{client: client, limit: limit, window: window, now: time.Now}
}

// Allow records one upload for accountID. When the quota is spent it returns
// false and how long until the oldest upload leaves the window.
func (q *UploadQuota) Allow(ctx context.Context, accountID string) (bool, time.Duration, error) {
	if q.client == nil {
		return true, 0, fmt.Errorf("upload quota unavailable: redis not connected")
	}

	now := q.now().UnixMilli()
	key := "quota:upload:account:" + accountID
	result, err := q.client.Eval(ctx, uploadQuotaScript, []string{key},
		q.limit, q.window.Milliseconds(), now, uuid.NewString()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("upload quota check failed: %w", err)
	}

	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, fmt.Errorf("unexpected result type from upload quota script")
	}
	allowed, _ := arr[0].(int64)
	if allowed == 1 {
		return true, 0, nil
	}

	oldest, _ := arr[1].(int64)
	retryAfter := time.Duration(oldest+q.window.Milliseconds()-now) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

package checker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wtthornton/HomeIQ-sub015/e2e/internal/scenario"
)

// CheckRedisExpectation validates live Redis state: acceptance counter
// hashes, suggestion leaderboard cardinalities and cache key presence.
func CheckRedisExpectation(ctx context.Context, client *redis.Client, exp scenario.Expectation) (bool, string, interface{}) {
	var (
		value string
		err   error
	)

	switch exp.RedisCheck {
	case "hash_field":
		value, err = client.HGet(ctx, exp.RedisKey, exp.RedisField).Result()
		if err == redis.Nil {
			return false, fmt.Sprintf("key %q field %q not found in Redis", exp.RedisKey, exp.RedisField), nil
		}

	case "zset_count":
		var count int64
		count, err = client.ZCard(ctx, exp.RedisKey).Result()
		value = strconv.FormatInt(count, 10)

	case "exists":
		var n int64
		n, err = client.Exists(ctx, exp.RedisKey).Result()
		value = strconv.FormatInt(n, 10)

	default:
		return false, fmt.Sprintf("unknown redis_check %q", exp.RedisCheck), nil
	}

	if err != nil {
		return false, fmt.Sprintf("Redis error: %v", err), nil
	}

	// Comparison matchers need a numeric actual; plain expectations
	// compare against the string reply as-is.
	var actual interface{} = value
	if strings.HasPrefix(exp.Expected, ">") || strings.HasPrefix(exp.Expected, "<") {
		if f, convErr := strconv.ParseFloat(value, 64); convErr == nil {
			actual = f
		}
	}

	if matched, reason := Match(actual, exp.Expected); !matched {
		return false, reason, value
	}

	return true, "", value
}

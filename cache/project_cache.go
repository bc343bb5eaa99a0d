package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"melodizr/db"
	"melodizr/model"
)

// The project index is a per-user sorted set of ProjectSummary JSON scored by
// updated_at, so the list view is served without touching MySQL. It is a
// cache: a miss falls back to the repository and repopulates.

const projectIndexTTL = 24 * time.Hour

// ProjectIndexKey builds the Redis key for a user's project index.
func ProjectIndexKey(userID int64) string {
	return fmt.Sprintf("projects:index:%d", userID)
}

// PutProjectIndex replaces a user's cached project index.
func PutProjectIndex(ctx context.Context, userID int64, summaries []model.ProjectSummary) error {
	if db.RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := ProjectIndexKey(userID)
	pipe := db.RedisClient.TxPipeline()
	pipe.Del(ctx, key)
	for _, s := range summaries {
		itemJSON, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal project summary: %w", err)
		}
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(s.UpdatedAt.UnixMilli()),
			Member: itemJSON,
		})
	}
	pipe.Expire(ctx, key, projectIndexTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write project index: %w", err)
	}
	return nil
}

// GetProjectIndex returns the cached index newest-first, or (nil, nil) on a
// miss.
func GetProjectIndex(ctx context.Context, userID int64) ([]model.ProjectSummary, error) {
	if db.RedisClient == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	key := ProjectIndexKey(userID)
	result, err := db.RedisClient.ZRevRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read project index: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	summaries := make([]model.ProjectSummary, 0, len(result))
	for _, itemJSON := range result {
		var s model.ProjectSummary
		if err := json.Unmarshal([]byte(itemJSON), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// InvalidateProjectIndex drops a user's cached index. Called after any
// project mutation; the next list rebuilds it from MySQL.
func InvalidateProjectIndex(ctx context.Context, userID int64) error {
	if db.RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := db.RedisClient.Del(ctx, ProjectIndexKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate project index: %w", err)
	}
	return nil
}

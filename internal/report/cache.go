package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores computed summaries in Redis as a read hint. The store remains
// the source of truth; a miss or a stale entry just means recomputing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a summary cache with the given entry TTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func summaryKey(courseID, studentID string) string {
	return fmt.Sprintf("attendance:summary:%s:%s", courseID, studentID)
}

// Get returns the cached summary, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, courseID, studentID string) (Summary, bool, error) {
	if c == nil || c.client == nil {
		return Summary{}, false, nil
	}
	raw, err := c.client.Get(ctx, summaryKey(courseID, studentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Summary{}, false, nil
		}
		return Summary{}, false, fmt.Errorf("cache get: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return Summary{}, false, nil // treat a corrupt entry as a miss
	}
	return sum, true, nil
}

// Set stores the summary under its course/student key.
func (c *Cache) Set(ctx context.Context, sum Summary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, summaryKey(sum.CourseID, sum.StudentID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

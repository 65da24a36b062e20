package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
)

// counterTTL keeps dated counter keys around long enough to survive clock
// skew across instances, then lets Redis reclaim them.
const counterTTL = 48 * time.Hour

// RedisStore backs the counter with Redis INCR, which is atomic across
// instances. Deployments without a relational counter table use this.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Increment(ctx context.Context, tenantID id.TenantID, prefix string, day time.Time) (int64, error) {
	key := fmt.Sprintf("assurly:seq:%s:%s:%s", tenantID.String(), prefix, day.Format("20060102"))
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, sentinel.ErrUnavailable)
	}
	if seq == 1 {
		// Best effort: a missing TTL only delays reclamation.
		_ = s.client.Expire(ctx, key, counterTTL).Err()
	}
	return seq, nil
}

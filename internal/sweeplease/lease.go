package sweeplease

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/fidelio/internal/config"
)

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const sweepLeaseKey = "fidelio:sweep:lease"

// Lease guards a sweep pass so two sweeper replicas never evaluate the same
// pass concurrently. A nil *Lease is valid and grants everything: single
// instance deployments run without redis, where the row claiming discipline
// alone is enough.
type Lease struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func New(cfg config.Config) *Lease {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	return &Lease{
		client: client,
		script: redis.NewScript(leaseReleaseScript),
		ttl:    time.Duration(cfg.SweepLeaseTTLSeconds) * time.Second,
	}
}

// TryAcquire attempts to take the sweep lease. The returned token must be
// handed back to Release; ok reports whether this replica owns the pass.
func (l *Lease) TryAcquire(ctx context.Context) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", true, nil
	}
	if l.ttl <= 0 {
		return "", false, errors.New("lease ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, sweepLeaseKey, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release gives the lease back early. Only the holder's token deletes the
// key, so an expired-and-reacquired lease is never released by the old
// owner.
func (l *Lease) Release(ctx context.Context, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{sweepLeaseKey}, token).Err()
}

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "onboarding:scheduler:lock:"

// releaseScript releases a lease only when still held by the caller. A
// positive keep-alive leaves the key in place for the remaining minimum hold
// instead of deleting it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	local keep = tonumber(ARGV[2])
	if keep > 0 then
		return redis.call("PEXPIRE", KEYS[1], keep)
	end
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore implements Store on a shared redis instance, so leases hold
// across every running replica.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Acquire(ctx context.Context, name string, maxHold time.Duration) (*Lease, error) {
	holder := uuid.NewString()
	ok, err := s.client.SetNX(ctx, keyPrefix+name, holder, maxHold).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{Name: name, Holder: holder, AcquiredAt: s.now()}, nil
}

func (s *RedisStore) Release(ctx context.Context, lease *Lease, keepFor time.Duration) error {
	err := releaseScript.Run(ctx, s.client,
		[]string{keyPrefix + lease.Name},
		lease.Holder, keepFor.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", lease.Name, err)
	}
	return nil
}

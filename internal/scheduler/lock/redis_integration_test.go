//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"onboarding-gateway/pkg/testutil/containers"
)

type RedisLockSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockSuite))
}

func (s *RedisLockSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisLockSuite) TestAcquireExclusive() {
	first, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(first)

	second, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Nil(second)

	other, err := s.store.Acquire(s.ctx, "other-job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(other)
}

func (s *RedisLockSuite) TestAcquireAfterMaxHoldExpiry() {
	first, err := s.store.Acquire(s.ctx, "job", 100*time.Millisecond)
	s.Require().NoError(err)
	s.Require().NotNil(first)

	time.Sleep(200 * time.Millisecond)

	second, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(second)
}

func (s *RedisLockSuite) TestReleaseFreesLease() {
	lease, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(s.ctx, lease, 0))

	again, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(again)
}

func (s *RedisLockSuite) TestReleaseKeepsMinimumHold() {
	lease, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(s.ctx, lease, 300*time.Millisecond))

	blocked, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Nil(blocked)

	time.Sleep(400 * time.Millisecond)

	open, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(open)
}

func (s *RedisLockSuite) TestReleaseByStaleHolderIsIgnored() {
	stale, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(s.ctx, stale, 0))

	current, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(current)

	// The stale lease no longer owns the key, so releasing it must not break
	// the current holder.
	s.Require().NoError(s.store.Release(s.ctx, stale, 0))

	blocked, err := s.store.Acquire(s.ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Nil(blocked)
}

func (s *RedisLockSuite) TestGuardSkipsHeldLease() {
	lease, err := s.store.Acquire(s.ctx, "guarded-job", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(lease)

	ran := false
	job := Guard(s.store, "guarded-job", 0, time.Minute, zap.NewNop(), func(context.Context) error {
		ran = true
		return nil
	})

	s.Require().NoError(job(s.ctx))
	s.False(ran)
}

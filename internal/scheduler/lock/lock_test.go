package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type LockSuite struct {
	suite.Suite
	now   time.Time
	store *MemoryStore
}

func TestLockSuite(t *testing.T) {
	suite.Run(t, new(LockSuite))
}

func (s *LockSuite) SetupTest() {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.store = NewMemoryStore().WithClock(func() time.Time { return s.now })
}

func (s *LockSuite) TestAcquireExclusive() {
	ctx := context.Background()

	first, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(first)

	second, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Nil(second)

	// A different name is an independent lease.
	other, err := s.store.Acquire(ctx, "other-job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(other)
}

func (s *LockSuite) TestAcquireAfterExpiry() {
	ctx := context.Background()

	first, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(first)

	s.now = s.now.Add(2 * time.Minute)

	second, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(second)
}

func (s *LockSuite) TestReleaseFreesLease() {
	ctx := context.Background()

	lease, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(ctx, lease, 0))

	again, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(again)
}

func (s *LockSuite) TestReleaseKeepsMinimumHold() {
	ctx := context.Background()

	lease, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(ctx, lease, 10*time.Second))

	blocked, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Nil(blocked)

	s.now = s.now.Add(11 * time.Second)
	open, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.NotNil(open)
}

func (s *LockSuite) TestReleaseByStaleHolderIsIgnored() {
	ctx := context.Background()

	stale, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)

	s.now = s.now.Add(2 * time.Minute)
	current, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(current)

	s.Require().NoError(s.store.Release(ctx, stale, 0))

	held, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)
	s.Nil(held)
}

func (s *LockSuite) TestGuardRunsWhenLeaseFree() {
	runs := 0
	guarded := Guard(s.store, "job", 0, time.Minute, zap.NewNop(), func(context.Context) error {
		runs++
		return nil
	})

	s.Require().NoError(guarded(context.Background()))
	s.Equal(1, runs)

	// The lease was released, so the next tick runs again.
	s.Require().NoError(guarded(context.Background()))
	s.Equal(2, runs)
}

func (s *LockSuite) TestGuardSkipsWhenHeldElsewhere() {
	ctx := context.Background()
	_, err := s.store.Acquire(ctx, "job", time.Minute)
	s.Require().NoError(err)

	runs := 0
	guarded := Guard(s.store, "job", 0, time.Minute, zap.NewNop(), func(context.Context) error {
		runs++
		return nil
	})

	s.Require().NoError(guarded(ctx))
	s.Zero(runs)
}

//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authbroker/internal/store"
	"authbroker/pkg/platform/sentinel"
	"authbroker/pkg/testutil/containers"
)

type RedisIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.Redis
}

func TestRedisIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisIntegrationSuite))
}

func (s *RedisIntegrationSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = store.NewRedis(s.redis.Client, "itest", time.Minute)
}

func (s *RedisIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// TestTakeAtMostOnce verifies that GETDEL hands the record to exactly one of
// many concurrent takers, which is the property the poll protocol depends on
// when multiple replicas share the store.
func (s *RedisIntegrationSuite) TestTakeAtMostOnce() {
	ctx := context.Background()
	s.Require().NoError(s.store.Add(ctx, "contested", []byte("prize")))

	const goroutines = 50
	var won atomic.Int32
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.store.Take(ctx, "contested"); err == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), won.Load())
}

func (s *RedisIntegrationSuite) TestExpiryIsSilent() {
	ctx := context.Background()
	short := store.NewRedis(s.redis.Client, "exp", time.Second)

	s.Require().NoError(short.Add(ctx, "key", []byte("v")))

	_, err := short.Get(ctx, "key")
	s.Require().NoError(err)

	time.Sleep(2 * time.Second)
	_, err = short.Get(ctx, "key")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

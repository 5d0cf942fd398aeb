package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "authbroker/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Memory
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory(time.Minute)
}

func (s *MemoryStoreSuite) TearDownTest() {
	s.store.Close()
}

func (s *MemoryStoreSuite) TestAddGetTake() {
	ctx := context.Background()

	err := s.store.Add(ctx, "req-1", []byte(`{"userId":"joe"}`))
	s.Require().NoError(err)

	value, err := s.store.Get(ctx, "req-1")
	s.Require().NoError(err)
	s.Equal([]byte(`{"userId":"joe"}`), value)

	// Get is non-destructive.
	value, err = s.store.Get(ctx, "req-1")
	s.Require().NoError(err)
	s.NotNil(value)

	value, err = s.store.Take(ctx, "req-1")
	s.Require().NoError(err)
	s.Equal([]byte(`{"userId":"joe"}`), value)

	_, err = s.store.Take(ctx, "req-1")
	s.Require().ErrorIs(err, ErrNotFound)
	_, err = s.store.Get(ctx, "req-1")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestOverwrite() {
	ctx := context.Background()

	s.Require().NoError(s.store.Add(ctx, "key", []byte("first")))
	s.Require().NoError(s.store.Add(ctx, "key", []byte("second")))

	value, err := s.store.Get(ctx, "key")
	s.Require().NoError(err)
	s.Equal([]byte("second"), value)
}

func (s *MemoryStoreSuite) TestEmptyKeyIsInvariantViolation() {
	ctx := context.Background()

	err := s.store.Add(ctx, "", []byte("x"))
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.store.Get(ctx, "")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.store.Take(ctx, "")
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *MemoryStoreSuite) TestTTLEviction() {
	ctx := context.Background()
	short := NewMemory(100 * time.Millisecond)
	defer short.Close()

	s.Require().NoError(short.Add(ctx, "key", []byte("v")))

	// Retrievable at half the TTL.
	time.Sleep(50 * time.Millisecond)
	_, err := short.Get(ctx, "key")
	s.Require().NoError(err)

	// Gone at twice the TTL.
	time.Sleep(150 * time.Millisecond)
	_, err = short.Get(ctx, "key")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestTakeAtMostOnce() {
	ctx := context.Background()
	s.Require().NoError(s.store.Add(ctx, "contested", []byte("prize")))

	const goroutines = 32
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

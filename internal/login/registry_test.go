package login

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"authbroker/internal/store"
)

type RegistrySuite struct {
	suite.Suite
	kv *store.Memory
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.kv = store.NewMemory(time.Minute)
}

func (s *RegistrySuite) TearDownTest() {
	s.kv.Close()
}

func (s *RegistrySuite) TestRequestRegistry() {
	ctx := context.Background()
	registry := NewRequestRegistry(s.kv)

	s.Run("round trip preserves fields", func() {
		err := registry.Add(ctx, Request{ID: "req-1", UserID: "joe", ForceAuthn: true})
		s.Require().NoError(err)

		found, err := registry.Find(ctx, "req-1")
		s.Require().NoError(err)
		s.Require().NotNil(found)
		s.Equal("joe", found.UserID)
		s.True(found.ForceAuthn)
	})

	s.Run("find is non-destructive", func() {
		for range 3 {
			found, err := registry.Find(ctx, "req-1")
			s.Require().NoError(err)
			s.NotNil(found)
		}
	})

	s.Run("unknown id yields nil", func() {
		found, err := registry.Find(ctx, "missing")
		s.Require().NoError(err)
		s.Nil(found)
	})
}

func (s *RegistrySuite) TestProfileRegistry() {
	ctx := context.Background()
	registry := NewProfileRegistry(s.kv)

	s.Run("take removes the record", func() {
		err := registry.Add(ctx, Profile{ID: "req-2", Claims: map[string]any{"email": "joe@example.com"}})
		s.Require().NoError(err)

		taken, err := registry.Take(ctx, "req-2")
		s.Require().NoError(err)
		s.Require().NotNil(taken)
		s.Equal("joe@example.com", taken.Claims["email"])

		again, err := registry.Take(ctx, "req-2")
		s.Require().NoError(err)
		s.Nil(again)
	})

	s.Run("take of absent profile yields nil", func() {
		taken, err := registry.Take(ctx, "never-delivered")
		s.Require().NoError(err)
		s.Nil(taken)
	})
}

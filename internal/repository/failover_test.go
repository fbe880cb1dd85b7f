package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"busline/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func redisConfig(addr string) config.RedisConfig {
	return config.RedisConfig{Address: addr, PoolSize: 2}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) TryLock(ctx context.Context, tripID int64, seatCode, holderID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, tripID, seatCode, holderID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Unlock(ctx context.Context, tripID int64, seatCode, holderID string) error {
	args := m.Called(ctx, tripID, seatCode, holderID)
	return args.Error(0)
}

func (m *mockStore) List(ctx context.Context, tripID int64) (map[string]string, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func TestFailoverSeatLockStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSeatLockStore(primary, fallback, &logger)
	ctx := context.Background()
	ttl := time.Minute

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("TryLock", ctx, int64(1), "A1", "alice", ttl).Return(true, nil).Once()

		ok, err := repo.TryLock(ctx, 1, "A1", "alice", ttl)
		assert.NoError(t, err)
		assert.True(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("TryLock", ctx, int64(2), "A1", "alice", ttl).Return(false, errors.New("fail")).Once()
		fallback.On("TryLock", ctx, int64(2), "A1", "alice", ttl).Return(true, nil).Once()

		ok, err := repo.TryLock(ctx, 2, "A1", "alice", ttl)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDownSkipsPrimary", func(t *testing.T) {
		fallback.On("TryLock", ctx, int64(3), "A1", "bob", ttl).Return(false, nil).Once()

		ok, err := repo.TryLock(ctx, 3, "A1", "bob", ttl)
		assert.NoError(t, err)
		assert.False(t, ok)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("TryLock", ctx, int64(4), "A1", "alice", ttl).Return(true, nil).Once()

		ok, err := repo.TryLock(ctx, 4, "A1", "alice", ttl)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("TryLock", ctx, int64(5), "A1", "alice", ttl).Return(false, errors.New("still fail")).Once()
		fallback.On("TryLock", ctx, int64(5), "A1", "alice", ttl).Return(true, nil).Once()

		_, err := repo.TryLock(ctx, 5, "A1", "alice", ttl)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("UnlockBothSides", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("Unlock", ctx, int64(6), "A1", "alice").Return(nil).Once()
		primary.On("Unlock", ctx, int64(6), "A1", "alice").Return(nil).Once()

		assert.NoError(t, repo.Unlock(ctx, 6, "A1", "alice"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("ListMergesSides", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("List", ctx, int64(7)).Return(map[string]string{"A1": "alice"}, nil).Once()
		primary.On("List", ctx, int64(7)).Return(map[string]string{"B1": "bob"}, nil).Once()

		locks, err := repo.List(ctx, 7)
		assert.NoError(t, err)
		assert.Equal(t, map[string]string{"A1": "alice", "B1": "bob"}, locks)
	})

	t.Run("ListPrimaryFails", func(t *testing.T) {
		repo.isDown.Store(false)
		fallback.On("List", ctx, int64(8)).Return(map[string]string{"A1": "alice"}, nil).Once()
		primary.On("List", ctx, int64(8)).Return(nil, errors.New("fail")).Once()

		locks, err := repo.List(ctx, 8)
		assert.NoError(t, err)
		assert.Equal(t, map[string]string{"A1": "alice"}, locks)
		assert.True(t, repo.isDown.Load())
	})
}

func TestFailoverSeatLockStore_Purge(t *testing.T) {
	fallback := NewMemorySeatLockStore()
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSeatLockStore(new(mockStore), fallback, &logger)

	_, _ = fallback.TryLock(context.Background(), 1, "A1", "alice", time.Millisecond)
	assert.Equal(t, 1, repo.Purge(time.Now().Add(time.Second)))
}

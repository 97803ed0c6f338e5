package runlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedis struct {
	mock.Mock
}

func (m *MockRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return redis.NewBoolResult(args.Bool(0), args.Error(1))
}

func (m *MockRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	called := m.Called(ctx, script, keys, args)
	return redis.NewCmdResult(called.Get(0), called.Error(1))
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.Acquire(ctx, "reconcile")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "reconcile")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := l.Acquire(ctx, "other")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.Acquire(ctx, "reconcile")
	require.NoError(t, err)
	again()
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		client := new(MockRedis)
		var token interface{}
		client.On("SetNX", ctx, "labtool:runlock:reconcile", mock.AnythingOfType("string"), 15*time.Minute).
			Run(func(args mock.Arguments) { token = args.Get(2) }).
			Return(true, nil)
		client.On("Eval", mock.Anything, releaseScript, []string{"labtool:runlock:reconcile"}, mock.Anything).
			Return(int64(1), nil)

		release, err := NewRedis(client, 15*time.Minute).Acquire(ctx, "reconcile")
		require.NoError(t, err)
		release()
		release()

		client.AssertNumberOfCalls(t, "Eval", 1)
		evalArgs := client.Calls[1].Arguments.Get(3).([]interface{})
		assert.Equal(t, token, evalArgs[0])
	})

	t.Run("Held", func(t *testing.T) {
		client := new(MockRedis)
		client.On("SetNX", ctx, mock.Anything, mock.Anything, mock.Anything).Return(false, nil)

		_, err := NewRedis(client, time.Minute).Acquire(ctx, "reconcile")
		assert.ErrorIs(t, err, ErrHeld)
	})

	t.Run("RedisDown", func(t *testing.T) {
		client := new(MockRedis)
		client.On("SetNX", ctx, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("dial tcp: connection refused"))

		_, err := NewRedis(client, time.Minute).Acquire(ctx, "reconcile")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrHeld)
	})
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTickLock_Acquire(t *testing.T) {
	db, mock := redismock.NewClientMock()
	lock := NewRedisTickLock(db, 50*time.Second)
	lock.owner = "replica-a"

	mock.ExpectSetNX(sweepLockKey, "replica-a", 50*time.Second).SetVal(true)
	mock.ExpectSetNX(sweepLockKey, "replica-a", 50*time.Second).SetVal(false)
	mock.ExpectSetNX(sweepLockKey, "replica-a", 50*time.Second).SetErr(errors.New("connection reset"))

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = lock.Acquire(context.Background())
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}

package vectorstore

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionPool_AcquireReusesConnection(t *testing.T) {
	var makeCount int32
	p := NewConnectionPool(time.Minute, func(any) error { return nil }, nil, nil)
	defer p.Stop()

	key := PoolKey{Address: "localhost:6379"}
	makeFn := func() (any, error) {
		atomic.AddInt32(&makeCount, 1)
		return "conn", nil
	}

	c1, err := p.Acquire(key, makeFn)
	require.NoError(t, err)
	c2, err := p.Acquire(key, makeFn)
	require.NoError(t, err)

	require.Equal(t, c1, c2)
	require.Equal(t, int32(1), atomic.LoadInt32(&makeCount))
}

func TestConnectionPool_DifferentKeysGetDifferentConnections(t *testing.T) {
	p := NewConnectionPool(time.Minute, func(any) error { return nil }, nil, nil)
	defer p.Stop()

	a, err := p.Acquire(PoolKey{Address: "a:1"}, func() (any, error) { return "conn-a", nil })
	require.NoError(t, err)
	b, err := p.Acquire(PoolKey{Address: "b:1"}, func() (any, error) { return "conn-b", nil })
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestConnectionPool_ReleaseDecrementsRefcount(t *testing.T) {
	p := NewConnectionPool(time.Minute, func(any) error { return nil }, nil, nil)
	defer p.Stop()

	key := PoolKey{Address: "localhost:6379"}
	_, err := p.Acquire(key, func() (any, error) { return "conn", nil })
	require.NoError(t, err)
	_, err = p.Acquire(key, func() (any, error) { return "conn", nil })
	require.NoError(t, err)

	counts := p.Counts()
	require.Equal(t, 2, counts[key])

	p.Release(key)
	counts = p.Counts()
	require.Equal(t, 1, counts[key])
}

func TestConnectionPool_AcquirePropagatesMakeError(t *testing.T) {
	p := NewConnectionPool(time.Minute, func(any) error { return nil }, nil, nil)
	defer p.Stop()

	_, err := p.Acquire(PoolKey{Address: "x"}, func() (any, error) { return nil, errors.New("dial failed") })
	require.Error(t, err)
}

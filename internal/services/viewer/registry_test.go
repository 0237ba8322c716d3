package viewer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	reg := NewRegistry(0, 0)
	defer reg.Shutdown()

	v := newViewer(t, Host{})
	require.NoError(t, reg.Add(v))
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get(v.ID)
	require.NoError(t, err)
	assert.Same(t, v, got)

	require.NoError(t, reg.Remove(v.ID))
	assert.Equal(t, StatusClosed, v.State().Status)

	_, err = reg.Get(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, reg.Remove(v.ID), ErrNotFound)
}

func TestRegistry_Capacity(t *testing.T) {
	reg := NewRegistry(1, 0)
	defer reg.Shutdown()

	require.NoError(t, reg.Add(newViewer(t, Host{})))
	assert.ErrorIs(t, reg.Add(newViewer(t, Host{})), ErrCapacity)
}

func TestRegistry_SweepClosesIdleViewers(t *testing.T) {
	reg := NewRegistry(0, time.Hour)
	defer reg.Shutdown()

	idle := newViewer(t, Host{})
	busy := newViewer(t, Host{})
	require.NoError(t, reg.Add(idle))
	require.NoError(t, reg.Add(busy))

	idle.lastUsed.Store(time.Now().Add(-2 * time.Hour).UnixNano())

	assert.Equal(t, 1, reg.Sweep(time.Now()))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, StatusClosed, idle.State().Status)
	assert.Equal(t, StatusReady, busy.State().Status)
}

func TestRegistry_ShutdownClosesAll(t *testing.T) {
	reg := NewRegistry(0, time.Minute)

	closed := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Add(newViewer(t, Host{OnClose: func() { closed++ }})))
	}

	reg.Shutdown()
	reg.Shutdown()
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 3, closed)
}

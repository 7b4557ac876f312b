package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryGrowAndWriteAt(t *testing.T) {
	m, err := NewMemory(1, 2, true)
	require.NoError(t, err)
	defer m.Close()

	require.Equal(t, uint32(1), m.Size())
	min, max, hasMax := m.Limits()
	require.Equal(t, uint32(1), min)
	require.Equal(t, uint32(2), max)
	require.True(t, hasMax)

	prev, err := m.Grow(1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), prev)
	require.Equal(t, uint32(2), m.Size())

	require.NoError(t, m.WriteAt(0, []byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, m.Bytes()[:3])
}

func TestMemoryGrowPastMaximumFails(t *testing.T) {
	m, err := NewMemory(1, 1, true)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Grow(1)
	require.Error(t, err)
	require.Equal(t, uint32(1), m.Size(), "a failed grow must not change the committed size")
}

func TestMemoryWriteAtOutOfBoundsFails(t *testing.T) {
	m, err := NewMemory(1, 0, false)
	require.NoError(t, err)
	defer m.Close()

	err = m.WriteAt(PageSize-2, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestMemoryUnboundedGrowth(t *testing.T) {
	m, err := NewMemory(0, 0, false)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Grow(4)
	require.NoError(t, err)
	require.Equal(t, uint32(4), m.Size())
}

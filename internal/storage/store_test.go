package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUsage(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	writeChain(t, s, "a", "hello", "world!")

	u, err := s.Usage()
	require.NoError(t, err)
	assert.Equal(t, 2, u.BlockCount)
	assert.Equal(t, int64(11), u.BlocksBytes)
	assert.Equal(t, 1, u.ChainCount)
	assert.Positive(t, u.MetadataBytes)
	assert.Equal(t, u.BlocksBytes+u.MetadataBytes, u.TotalBytes())
}

func TestStoreReset(t *testing.T) {
	t.Parallel()
	s := testStore(t)
	writeChain(t, s, "a", "1", "2")
	writeChain(t, s, "b", "3")

	res, err := s.Reset()
	require.NoError(t, err)
	assert.Equal(t, 3, res.Blocks)
	assert.Equal(t, 2, res.Chains)

	u, err := s.Usage()
	require.NoError(t, err)
	assert.Zero(t, u.BlockCount)
	assert.Zero(t, u.ChainCount)
}

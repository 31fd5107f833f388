package engine

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cowfs/internal/storage"
)

func testBlocks(t *testing.T, contents ...string) (*storage.BlockStore, []storage.BlockID) {
	t.Helper()
	bs, err := storage.NewBlockStore(memfs.New(), nil, false)
	require.NoError(t, err)
	var ids []storage.BlockID
	for _, c := range contents {
		id, err := bs.WriteBlock([]byte(c))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return bs, ids
}

func TestAssembleWindow(t *testing.T) {
	t.Parallel()
	bs, ids := testBlocks(t, "abcd", "efgh", "ijkl")

	full := storage.Version{Blocks: ids, Start: 0, End: 12, Size: 12}
	got, err := assemble(bs, full, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijkl", string(got))

	got, err = assemble(bs, full, 3, 6)
	require.NoError(t, err)
	assert.Equal(t, "defghi", string(got))

	// a window that starts inside the first block
	windowed := storage.Version{Blocks: ids, Start: 2, End: 10, Size: 8}
	assert.Equal(t, int64(8), contentLength(windowed))
	got, err = assemble(bs, windowed, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, "cdefghij", string(got))

	got, err = assemble(bs, windowed, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, "hij", string(got))
}

func TestRebuildAppend(t *testing.T) {
	t.Parallel()
	bs, ids := testBlocks(t, "abcd", "ef")
	v := storage.Version{Blocks: ids, End: 6, Size: 6}

	out, err := rebuild(bs, v, 6, []byte("XYZ"))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, ids, out[:2], "append shares every existing block")

	got, err := assemble(bs, storage.Version{Blocks: out, End: 9, Size: 9}, 0, 9)
	require.NoError(t, err)
	assert.Equal(t, "abcdefXYZ", string(got))
}

func TestRebuildOverwrite(t *testing.T) {
	t.Parallel()
	bs, ids := testBlocks(t, "abcd", "efgh", "ijkl")
	v := storage.Version{Blocks: ids, End: 12, Size: 12}

	tests := []struct {
		name   string
		pos    int64
		data   string
		want   string
		shared []int // indexes of ids expected to survive by id
	}{
		{"replace whole middle block", 4, "EFGH", "abcdEFGHijkl", []int{0, 2}},
		{"straddle two blocks", 3, "XY", "abcXYfghijkl", []int{2}},
		{"prefix", 0, "A", "Abcdefghijkl", []int{1, 2}},
		{"extend past end", 10, "KLMN", "abcdefghijKLMN", []int{0, 1}},
		{"cover everything", 0, "0123456789abcdef", "0123456789abcdef", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := rebuild(bs, v, tt.pos, []byte(tt.data))
			require.NoError(t, err)

			size := int64(len(tt.want))
			got, err := assemble(bs, storage.Version{Blocks: out, End: size, Size: size}, 0, size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))

			for _, i := range tt.shared {
				assert.Contains(t, out, ids[i])
			}

			// the source blocks are unchanged
			orig, err := assemble(bs, v, 0, 12)
			require.NoError(t, err)
			assert.Equal(t, "abcdefghijkl", string(orig))
		})
	}
}

func TestRebuildClippedWindow(t *testing.T) {
	t.Parallel()
	bs, ids := testBlocks(t, "abcd", "efgh", "ijkl")
	v := storage.Version{Blocks: ids, Start: 2, End: 10, Size: 8}

	out, err := rebuild(bs, v, 8, []byte("XY"))
	require.NoError(t, err)
	assert.Equal(t, ids[1], out[1], "fully visible block is shared")
	assert.NotContains(t, out, ids[0])
	assert.NotContains(t, out, ids[2])

	got, err := assemble(bs, storage.Version{Blocks: out, End: 10, Size: 10}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "cdefghijXY", string(got))
}

func TestRebuildEmptyVersion(t *testing.T) {
	t.Parallel()
	bs, _ := testBlocks(t)

	data := make([]byte, 2*storage.BlockSize+1)
	out, err := rebuild(bs, storage.Version{}, 0, data)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, want := range []int64{storage.BlockSize, storage.BlockSize, 1} {
		size, err := bs.Size(out[i])
		require.NoError(t, err)
		assert.Equal(t, want, size)
	}
}

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cowfs/internal/common"
)

func hostContent(t *testing.T, env *testEnv, p string) string {
	t.Helper()
	data, err := util.ReadFile(env.host, p)
	require.NoError(t, err)
	return string(data)
}

func TestOpenExternal(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, util.WriteFile(env.host, "/work/notes.txt", []byte("abc"), 0o644))

	s, err := env.e.OpenExternal("notes", "/work/notes.txt")
	require.NoError(t, err)

	p, ok := s.ExternalPath()
	assert.True(t, ok)
	assert.Equal(t, "/work/notes.txt", p)
	assert.Equal(t, int64(3), s.Cursor(), "cursor starts at end of content")
	require.Len(t, s.Versions(), 1)
	assert.Equal(t, 0, s.CurrentVersion())

	// appends are mirrored by appending
	_, err = s.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", hostContent(t, env, "/work/notes.txt"))

	// mid-file writes rewrite the host file
	require.NoError(t, s.Seek(1))
	_, err = s.Write([]byte("X"))
	require.NoError(t, err)
	assert.Equal(t, "aXcdef", hostContent(t, env, "/work/notes.txt"))

	// undo rewrites rather than appends
	require.NoError(t, s.Undo())
	assert.Equal(t, "abcdef", hostContent(t, env, "/work/notes.txt"))
	require.NoError(t, s.Undo())
	assert.Equal(t, "abc", hostContent(t, env, "/work/notes.txt"))
	assert.ErrorIs(t, s.Undo(), common.ErrNoHistory)
	assert.Equal(t, "abc", hostContent(t, env, "/work/notes.txt"))

	require.NoError(t, s.Close())

	// the chain outlives the session
	versions, err := env.e.ListVersions("notes")
	require.NoError(t, err)
	assert.Len(t, versions, 3)
}

func TestOpenExternalReplacesHistory(t *testing.T) {
	env := newTestEnv(t)
	s := env.createOpen("f")
	_, err := s.Write([]byte("old"))
	require.NoError(t, err)
	_, err = s.Write([]byte("er"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, util.WriteFile(env.host, "/seed", []byte("fresh"), 0o644))
	s, err = env.e.OpenExternal("f", "/seed")
	require.NoError(t, err)

	versions := s.Versions()
	require.Len(t, versions, 1)
	assert.Equal(t, int64(5), versions[0].Size)

	got, err := env.e.ReadCurrent("f")
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(got))
}

func TestOpenExternalLargeAndEmpty(t *testing.T) {
	env := newTestEnv(t)

	big := make([]byte, 9000)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, util.WriteFile(env.host, "/big.bin", big, 0o644))
	s, err := env.e.OpenExternal("big", "/big.bin")
	require.NoError(t, err)
	assert.Len(t, s.Versions()[0].Blocks, 3)
	require.NoError(t, s.Seek(0))
	got, err := s.Read(-1)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	require.NoError(t, util.WriteFile(env.host, "/empty", nil, 0o644))
	s, err = env.e.OpenExternal("empty", "/empty")
	require.NoError(t, err)
	v := s.Versions()
	require.Len(t, v, 1)
	assert.Empty(t, v[0].Blocks)
	assert.Zero(t, s.Size())
}

func TestOpenExternalErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.e.OpenExternal("f", "/nope")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, util.WriteFile(env.host, "/x", []byte("x"), 0o644))
	_, err = env.e.OpenExternal("..", "/x")
	assert.ErrorIs(t, err, common.ErrInvalidName)

	_, err = env.e.OpenExternal("f", "/x")
	require.NoError(t, err)
	_, err = env.e.OpenExternal("f", "/x")
	assert.ErrorIs(t, err, common.ErrAlreadyOpen)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	s := env.createOpen("f")
	_, err := s.Write([]byte{0, 1, 2, 255})
	require.NoError(t, err)

	n, err := env.e.Export("f", "/out/f.bin", false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	data, err := util.ReadFile(env.host, "/out/f.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, data)

	_, err = s.Write([]byte{7})
	require.NoError(t, err)
	_, err = env.e.Export("f", "/out/f.bin", false)
	assert.ErrorIs(t, err, common.ErrExists)
	data, err = util.ReadFile(env.host, "/out/f.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 255}, data, "refused export leaves the target alone")

	n, err = env.e.Export("f", "/out/f.bin", true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = env.e.Export("missing", "/out/m", false)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestExternalRewriteKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	hostPath := filepath.Join(dir, "secret.txt")
	require.NoError(t, os.WriteFile(hostPath, []byte("hello"), 0o600))
	require.NoError(t, os.Chmod(hostPath, 0o600))

	e, err := New(memfs.New(), Options{Host: osfs.New("/")})
	require.NoError(t, err)
	s, err := e.OpenExternal("secret", hostPath)
	require.NoError(t, err)

	require.NoError(t, s.Seek(0))
	_, err = s.Write([]byte("J"))
	require.NoError(t, err)

	data, err := os.ReadFile(hostPath)
	require.NoError(t, err)
	assert.Equal(t, "Jello", string(data))
	fi, err := os.Stat(hostPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, s.Undo())
	fi, err = os.Stat(hostPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	data, err = os.ReadFile(hostPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

package engine

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cowfs/internal/common"
)

func importedNames(files []ImportedFile) []string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestImportDirectory(t *testing.T) {
	env := newTestEnv(t)
	files := map[string]string{
		"/proj/.gitignore":        "*.log\nbuild/\n",
		"/proj/main.go":           "package main",
		"/proj/debug.log":         "noise",
		"/proj/build/out.bin":     "binary",
		"/proj/docs/readme.md":    "# docs",
		"/proj/docs/.gitignore":   "draft.md\n",
		"/proj/docs/draft.md":     "wip",
		"/proj/.git/HEAD":         "ref",
		"/proj/vendor/dep/dep.go": "package dep",
	}
	for p, content := range files {
		require.NoError(t, util.WriteFile(env.host, p, []byte(content), 0o644))
	}

	imported, err := env.e.Import("/proj", ImportOptions{Gitignore: true, Excludes: []string{"vendor"}})
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "docs/.gitignore", "docs/readme.md", "main.go"}, importedNames(imported))

	got, err := env.e.ReadCurrent("docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "# docs", string(got))
	assert.Zero(t, env.e.Sessions().Len(), "import leaves no sessions open")
}

func TestImportDirectoryWithoutGitignore(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, util.WriteFile(env.host, "/d/.gitignore", []byte("*.log\n"), 0o644))
	require.NoError(t, util.WriteFile(env.host, "/d/a.log", []byte("a"), 0o644))

	imported, err := env.e.Import("/d", ImportOptions{Name: "pfx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pfx/.gitignore", "pfx/a.log"}, importedNames(imported))
}

func TestImportSingleFile(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, util.WriteFile(env.host, "/tmp/report.txt", []byte("quarterly"), 0o644))

	imported, err := env.e.Import("/tmp/report.txt", ImportOptions{})
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.Equal(t, ImportedFile{Name: "report.txt", Path: "/tmp/report.txt", Size: 9}, imported[0])

	imported, err = env.e.Import("/tmp/report.txt", ImportOptions{Name: "q3"})
	require.NoError(t, err)
	assert.Equal(t, "q3", imported[0].Name)

	_, err = env.e.Import("/tmp/missing", ImportOptions{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestImportSkipsStorageRoot(t *testing.T) {
	host := memfs.New()
	e, err := New(memfs.New(), Options{Host: host, RootPath: "/work/cow_filesystem"})
	require.NoError(t, err)

	for p, content := range map[string]string{
		"/work/notes.txt":                         "keep",
		"/work/cow_filesystem/data/b1.block":      "raw",
		"/work/cow_filesystem/metadata/seed.json": "{}",
		"/work/cow_filesystem/settings.yaml":      "fsync: false",
		"/work/cow_filesystem_backup/old.txt":     "sibling with a shared prefix",
	} {
		require.NoError(t, util.WriteFile(host, p, []byte(content), 0o644))
	}

	imported, err := e.Import("/work", ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"cow_filesystem_backup/old.txt", "notes.txt"}, importedNames(imported))

	_, err = e.Import("/work/cow_filesystem/data", ImportOptions{})
	assert.ErrorIs(t, err, common.ErrInvalidName)
	_, err = e.Import("/work/cow_filesystem/data/b1.block", ImportOptions{})
	assert.ErrorIs(t, err, common.ErrInvalidName)
}

func TestImportParentOfRootOnDisk(t *testing.T) {
	dir := t.TempDir()
	e, err := OpenRoot(filepath.Join(dir, "cow_filesystem"), Options{})
	require.NoError(t, err)

	_, err = e.Create("seed", false)
	require.NoError(t, err)
	s, err := e.Open("seed")
	require.NoError(t, err)
	_, err = s.Write([]byte("seed content"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("notes"), 0o644))

	imported, err := e.Import(dir, ImportOptions{Gitignore: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.txt"}, importedNames(imported))

	files, err := e.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "notes.txt", files[0].Name)
	assert.Equal(t, "seed", files[1].Name)
}

func TestImportNormalizesPrefix(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, util.WriteFile(env.host, "/d/a.txt", []byte("a"), 0o644))

	imported, err := env.e.Import("/d", ImportOptions{Name: "/pfx//sub/", Excludes: []string{"/"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"pfx/sub/a.txt"}, importedNames(imported))
}

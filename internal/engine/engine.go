// Copyright 2024 The cowfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine implements versioned copy-on-write files on top of the
// block and metadata stores.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	log "github.com/sirupsen/logrus"

	"cowfs/internal/common"
	"cowfs/internal/storage"
)

// Options configures an Engine.
type Options struct {
	// Host resolves external paths (OpenExternal, Export, Import).
	// Defaults to the local filesystem rooted at "/".
	Host billy.Filesystem
	// CacheEntries bounds the block cache; 0 disables it.
	CacheEntries int
	// Fsync flushes blocks and metadata records before they become visible.
	Fsync bool
	// RootPath is where the storage root lives on Host. Import never
	// descends into it. Empty when the root is not on Host.
	RootPath string
}

// Engine is the public API over one storage root.
// It is not safe for concurrent use.
type Engine struct {
	store    *storage.Store
	host     billy.Filesystem
	rootPath string
	sessions *SessionTable
}

// New creates an engine storing its data on fs.
func New(fs billy.Filesystem, opts Options) (*Engine, error) {
	store, err := storage.Open(fs, storage.Options{CacheEntries: opts.CacheEntries, Fsync: opts.Fsync})
	if err != nil {
		return nil, err
	}
	host := opts.Host
	if host == nil {
		host = osfs.New("/")
	}
	return &Engine{store: store, host: host, rootPath: opts.RootPath, sessions: NewSessionTable()}, nil
}

// OpenRoot creates an engine over a directory on the local filesystem.
// Unless opts.Host is set, RootPath defaults to the absolute root.
func OpenRoot(root string, opts Options) (*Engine, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create root %s: %v", common.ErrIO, root, err)
	}
	if opts.Host == nil && opts.RootPath == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve root %s: %v", common.ErrIO, root, err)
		}
		opts.RootPath = abs
	}
	return New(osfs.New(root), opts)
}

// Sessions returns the table of open sessions.
func (e *Engine) Sessions() *SessionTable {
	return e.sessions
}

// Create makes an empty file. An existing file is left alone unless
// overwrite is set, in which case its history is discarded and its blocks
// become garbage. created reports whether a new chain was written.
func (e *Engine) Create(name string, overwrite bool) (created bool, err error) {
	if overwrite && e.sessions.IsOpen(name) {
		return false, fmt.Errorf("%w: cannot overwrite %s while it is open", common.ErrAlreadyOpen, name)
	}
	created, err = e.store.Meta.Create(name, overwrite)
	if err != nil {
		return false, err
	}
	log.WithFields(log.Fields{"file": name, "overwrite": overwrite, "created": created}).Info("create")
	return created, nil
}

// Open opens an existing file with the cursor at the end of its content.
func (e *Engine) Open(name string) (*Session, error) {
	if e.sessions.IsOpen(name) {
		return nil, fmt.Errorf("%w: %s", common.ErrAlreadyOpen, name)
	}
	chain, err := e.store.Meta.Load(name)
	if err != nil {
		return nil, err
	}
	s := e.newSession(name, chain, internalBacking{})
	if err := e.sessions.Allocate(s); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"file": name, "cursor": s.cursor}).Info("open")
	return s, nil
}

// OpenExternal seeds name from the host file at hostPath and opens it with
// that file as backing. The file's content becomes version 0 of a fresh
// chain, replacing any existing history. Later writes and undos are mirrored
// into the host file.
func (e *Engine) OpenExternal(name, hostPath string) (*Session, error) {
	if e.sessions.IsOpen(name) {
		return nil, fmt.Errorf("%w: %s", common.ErrAlreadyOpen, name)
	}
	if _, err := common.SanitizeName(name); err != nil {
		return nil, err
	}

	content, err := util.ReadFile(e.host, hostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, hostPath)
		}
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrIO, hostPath, err)
	}
	ids, err := chunk(e.store.Blocks, content)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", hostPath, err)
	}

	size := int64(len(content))
	chain := storage.NewVersionChain(name)
	chain.AppendVersion(ids, storage.ByteRange{Start: 0, End: size}, size)
	if err := e.store.Meta.Save(chain); err != nil {
		return nil, err
	}

	s := e.newSession(name, chain, externalBacking{fs: e.host, path: hostPath})
	if err := e.sessions.Allocate(s); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"file": name, "path": hostPath, "size": size, "blocks": len(ids)}).Info("open external")
	return s, nil
}

func (e *Engine) newSession(name string, chain *storage.VersionChain, b backing) *Session {
	s := &Session{
		name:    name,
		chain:   chain,
		backing: b,
		blocks:  e.store.Blocks,
		meta:    e.store.Meta,
	}
	s.cursor = s.Size()
	return s
}

func (e *Engine) session(name string) (*Session, error) {
	s, ok := e.sessions.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotOpen, name)
	}
	return s, nil
}

// Close closes the open session for name.
func (e *Engine) Close(name string) error {
	s, err := e.session(name)
	if err != nil {
		return err
	}
	return s.Close()
}

// CloseAll closes every open session.
func (e *Engine) CloseAll() {
	for _, name := range e.sessions.Names() {
		if s, ok := e.sessions.Get(name); ok {
			_ = s.Close()
		}
	}
}

// Read reads up to size bytes from the cursor of name's session.
// A negative size reads to the end.
func (e *Engine) Read(name string, size int64) ([]byte, error) {
	s, err := e.session(name)
	if err != nil {
		return nil, err
	}
	return s.Read(size)
}

// Write writes data at the cursor of name's session.
func (e *Engine) Write(name string, data []byte) (int, error) {
	s, err := e.session(name)
	if err != nil {
		return 0, err
	}
	return s.Write(data)
}

// Undo makes the previous version of name current.
func (e *Engine) Undo(name string) error {
	s, err := e.session(name)
	if err != nil {
		return err
	}
	return s.Undo()
}

// Seek moves the cursor of name's session.
func (e *Engine) Seek(name string, off int64) error {
	s, err := e.session(name)
	if err != nil {
		return err
	}
	return s.Seek(off)
}

// chain returns the live chain of an open session or loads the persisted one.
func (e *Engine) chain(name string) (*storage.VersionChain, error) {
	if s, ok := e.sessions.Get(name); ok {
		return s.chain, nil
	}
	return e.store.Meta.Load(name)
}

// ListVersions returns the full history of name. The file need not be open.
func (e *Engine) ListVersions(name string) ([]storage.Version, error) {
	chain, err := e.chain(name)
	if err != nil {
		return nil, err
	}
	return chain.ListVersions(), nil
}

// ReadVersion returns the content of version n of name. The file need not
// be open.
func (e *Engine) ReadVersion(name string, n int) ([]byte, error) {
	chain, err := e.chain(name)
	if err != nil {
		return nil, err
	}
	return readVersion(e.store.Blocks, chain, n)
}

// ReadCurrent returns the whole current content of name.
func (e *Engine) ReadCurrent(name string) ([]byte, error) {
	chain, err := e.chain(name)
	if err != nil {
		return nil, err
	}
	if chain.CurrentVersion < 0 {
		return []byte{}, nil
	}
	return readVersion(e.store.Blocks, chain, chain.CurrentVersion)
}

// Export writes the current content of name to hostPath. An existing
// hostPath is replaced only when overwrite is set.
func (e *Engine) Export(name, hostPath string, overwrite bool) (int, error) {
	content, err := e.ReadCurrent(name)
	if err != nil {
		return 0, err
	}
	if !overwrite {
		if _, err := e.host.Stat(hostPath); err == nil {
			return 0, fmt.Errorf("%w: %s", common.ErrExists, hostPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: stat %s: %v", common.ErrIO, hostPath, err)
		}
	}
	if err := storage.WriteFileAtomic(e.host, hostPath, content, 0o644, false); err != nil {
		return 0, fmt.Errorf("%w: export %s to %s: %v", common.ErrIO, name, hostPath, err)
	}
	log.WithFields(log.Fields{"file": name, "path": hostPath, "bytes": len(content)}).Info("export")
	return len(content), nil
}

// Delete removes the history of name. Its blocks are left for the garbage
// collector.
func (e *Engine) Delete(name string) error {
	if e.sessions.IsOpen(name) {
		return fmt.Errorf("%w: cannot delete %s while it is open", common.ErrAlreadyOpen, name)
	}
	if err := e.store.Meta.Delete(name); err != nil {
		return err
	}
	log.WithField("file", name).Info("delete")
	return nil
}

// FileInfo summarizes one stored file.
type FileInfo struct {
	Name           string
	Versions       int
	CurrentVersion int
	Size           int64
	Open           bool
}

func (e *Engine) fileInfo(c *storage.VersionChain) FileInfo {
	return FileInfo{
		Name:           c.Filename,
		Versions:       len(c.Versions),
		CurrentVersion: c.CurrentVersion,
		Size:           c.Size,
		Open:           e.sessions.IsOpen(c.Filename),
	}
}

// Stat summarizes one file.
func (e *Engine) Stat(name string) (FileInfo, error) {
	chain, err := e.chain(name)
	if err != nil {
		return FileInfo{}, err
	}
	return e.fileInfo(chain), nil
}

// ListFiles returns every stored file, sorted by name.
func (e *Engine) ListFiles() ([]FileInfo, error) {
	chains, err := e.store.Meta.List()
	if err != nil {
		return nil, err
	}
	files := make([]FileInfo, 0, len(chains))
	for _, c := range chains {
		files = append(files, e.fileInfo(c))
	}
	return files, nil
}

// ListBlocks returns every stored block.
func (e *Engine) ListBlocks() ([]storage.BlockInfo, error) {
	return e.store.Blocks.ListBlocks()
}

// CollectGarbage deletes blocks no version of any file references.
func (e *Engine) CollectGarbage() (*storage.GarbageCollectResult, error) {
	return e.store.GarbageCollect()
}

// GarbageStats reports what CollectGarbage would remove.
func (e *Engine) GarbageStats() (*storage.StorageStats, error) {
	return e.store.GetStorageStats()
}

// MemoryUsage returns the on-disk size of blocks and metadata.
func (e *Engine) MemoryUsage() (*storage.Usage, error) {
	return e.store.Usage()
}

// Reset deletes every file and block. It refuses while sessions are open.
func (e *Engine) Reset() (*storage.ResetResult, error) {
	if n := e.sessions.Len(); n > 0 {
		return nil, fmt.Errorf("%w: %d session(s) still open", common.ErrAlreadyOpen, n)
	}
	res, err := e.store.Reset()
	if err != nil {
		return res, err
	}
	log.WithFields(log.Fields{"blocks": res.Blocks, "files": res.Chains}).Info("reset")
	return res, nil
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Name is the file name for a single file, or a prefix for a directory.
	Name string
	// Gitignore skips paths matched by .gitignore files in the tree.
	Gitignore bool
	// Excludes are relative paths skipped with everything below them.
	Excludes []string
}

// ImportedFile describes one file created by Import.
type ImportedFile struct {
	Name string
	Path string
	Size int64
}

// Import seeds files from hostPath. A regular file becomes one file named
// opts.Name or its base name. A directory is walked and every regular file
// that passes the filter becomes a file named by its relative path.
// Each imported file starts with a single version holding its content.
// The storage root is never imported.
func (e *Engine) Import(hostPath string, opts ImportOptions) ([]ImportedFile, error) {
	excludes := opts.Excludes
	if e.rootPath != "" {
		if _, inside := subpath(e.rootPath, hostPath); inside {
			return nil, fmt.Errorf("%w: %s is inside the storage root", common.ErrInvalidName, hostPath)
		}
		if rel, ok := subpath(hostPath, e.rootPath); ok {
			excludes = append(slices.Clone(excludes), rel)
		}
	}
	prefix := common.NormalizePath(opts.Name)

	info, err := e.host.Stat(hostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, hostPath)
		}
		return nil, fmt.Errorf("%w: stat %s: %v", common.ErrIO, hostPath, err)
	}

	if !info.IsDir() {
		name := prefix
		if name == "" {
			name = path.Base(toSlash(hostPath))
		}
		f, err := e.importFile(name, hostPath)
		if err != nil {
			return nil, err
		}
		return []ImportedFile{f}, nil
	}

	filter := BuildFileFilter(e.host, hostPath, opts.Gitignore, excludes)
	var imported []ImportedFile
	err = util.Walk(e.host, hostPath, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := relativePath(hostPath, p)
		if rel == "" {
			return nil
		}
		if !filter(rel, fi.IsDir()) {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		name := rel
		if prefix != "" {
			name = path.Join(prefix, rel)
		}
		f, err := e.importFile(name, p)
		if err != nil {
			return err
		}
		imported = append(imported, f)
		return nil
	})
	if err != nil {
		return imported, err
	}
	return imported, nil
}

func (e *Engine) importFile(name, hostPath string) (ImportedFile, error) {
	s, err := e.OpenExternal(name, hostPath)
	if err != nil {
		return ImportedFile{}, err
	}
	f := ImportedFile{Name: name, Path: hostPath, Size: s.Size()}
	return f, s.Close()
}

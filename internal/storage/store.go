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

package storage

import (
	billy "github.com/go-git/go-billy/v5"

	"cowfs/internal/cache"
)

// Options configures a Store.
type Options struct {
	// CacheEntries bounds the block content cache; 0 disables it.
	CacheEntries int
	// Fsync flushes block and metadata files before they become visible.
	Fsync bool
}

// Store is a storage root: a BlockStore and a MetaStore sharing one filesystem.
//
// Layout, relative to the root of fs:
//
//	data/<block-id>.block
//	metadata/<sanitized-filename>.json
//
// A Store assumes it is the only writer of its root.
type Store struct {
	fs     billy.Filesystem
	Blocks *BlockStore
	Meta   *MetaStore
}

// Open prepares the storage layout on fs.
func Open(fs billy.Filesystem, opts Options) (*Store, error) {
	blocks, err := NewBlockStore(fs, cache.NewBlockCache(opts.CacheEntries), opts.Fsync)
	if err != nil {
		return nil, err
	}
	meta, err := NewMetaStore(fs, opts.Fsync)
	if err != nil {
		return nil, err
	}
	return &Store{fs: fs, Blocks: blocks, Meta: meta}, nil
}

// Filesystem returns the filesystem backing the store.
func (s *Store) Filesystem() billy.Filesystem {
	return s.fs
}

// Usage is the on-disk footprint of a store.
type Usage struct {
	BlockCount    int
	BlocksBytes   int64
	ChainCount    int
	MetadataBytes int64
}

// TotalBytes returns blocks plus metadata.
func (u Usage) TotalBytes() int64 {
	return u.BlocksBytes + u.MetadataBytes
}

// Usage sums the sizes of all block and metadata files.
func (s *Store) Usage() (*Usage, error) {
	blocks, err := s.Blocks.ListBlocks()
	if err != nil {
		return nil, err
	}
	u := &Usage{BlockCount: len(blocks)}
	for _, b := range blocks {
		u.BlocksBytes += b.Size
	}
	u.ChainCount, u.MetadataBytes, err = s.Meta.TotalSize()
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ResetResult reports what Reset removed.
type ResetResult struct {
	Blocks int
	Chains int
}

// Reset deletes all metadata and then all blocks.
// Metadata goes first so an interrupted reset never leaves a record pointing
// at deleted blocks.
func (s *Store) Reset() (*ResetResult, error) {
	chains, err := s.Meta.Reset()
	if err != nil {
		return &ResetResult{Chains: chains}, err
	}
	blocks, err := s.Blocks.Reset()
	return &ResetResult{Blocks: blocks, Chains: chains}, err
}

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
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"cowfs/internal/cache"
	"cowfs/internal/common"
)

// BlockSize is the maximum number of bytes stored in a single block.
const BlockSize = 4096

const (
	// DataDir holds one file per block, relative to the storage root.
	DataDir = "data"
	// BlockExt is the file extension of block files.
	BlockExt = ".block"
)

// BlockID identifies an immutable block. It is opaque to callers.
type BlockID string

// BlockInfo describes a stored block.
type BlockInfo struct {
	ID   BlockID
	Size int64
}

// BlockStore stores immutable blocks as individual files under DataDir.
// A block is written exactly once; there is no operation that rewrites one.
type BlockStore struct {
	fs    billy.Filesystem
	cache *cache.BlockCache
	fsync bool
}

// NewBlockStore creates the data directory on fs if needed.
// c may be nil to disable read caching.
func NewBlockStore(fs billy.Filesystem, c *cache.BlockCache, fsync bool) (*BlockStore, error) {
	if err := fs.MkdirAll(DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", common.ErrIO, DataDir, err)
	}
	return &BlockStore{fs: fs, cache: c, fsync: fsync}, nil
}

func (s *BlockStore) blockPath(id BlockID) (string, error) {
	if id == "" || strings.ContainsAny(string(id), `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: invalid block id %q", common.ErrBlockMissing, id)
	}
	return s.fs.Join(DataDir, string(id)+BlockExt), nil
}

// WriteBlock persists data as a new block and returns its id.
func (s *BlockStore) WriteBlock(data []byte) (BlockID, error) {
	if len(data) > BlockSize {
		return "", fmt.Errorf("%w: %d > %d", common.ErrBlockTooLarge, len(data), BlockSize)
	}

	id := BlockID(uuid.NewString())
	p, err := s.blockPath(id)
	if err != nil {
		return "", err
	}

	// O_EXCL: a fresh id must never land on an existing block
	f, err := s.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create block %s: %v", common.ErrIO, id, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = s.fs.Remove(p)
		return "", fmt.Errorf("%w: write block %s: %v", common.ErrIO, id, err)
	}
	if s.fsync {
		if err := syncFile(f); err != nil {
			f.Close()
			_ = s.fs.Remove(p)
			return "", fmt.Errorf("%w: sync block %s: %v", common.ErrIO, id, err)
		}
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(p)
		return "", fmt.Errorf("%w: close block %s: %v", common.ErrIO, id, err)
	}

	s.cache.Add(string(id), append([]byte(nil), data...))
	log.Tracef("[BlockStore] WriteBlock: id=%s len=%d", id, len(data))
	return id, nil
}

// ReadBlock returns the content of a block.
// Returns ErrBlockMissing if the block has no backing file.
func (s *BlockStore) ReadBlock(id BlockID) ([]byte, error) {
	if data, ok := s.cache.Get(string(id)); ok {
		return data, nil
	}

	p, err := s.blockPath(id)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrBlockMissing, id)
		}
		return nil, fmt.Errorf("%w: open block %s: %v", common.ErrIO, id, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read block %s: %v", common.ErrIO, id, err)
	}
	s.cache.Add(string(id), data)
	return data, nil
}

// Size returns the stored length of a block.
func (s *BlockStore) Size(id BlockID) (int64, error) {
	if data, ok := s.cache.Get(string(id)); ok {
		return int64(len(data)), nil
	}

	p, err := s.blockPath(id)
	if err != nil {
		return 0, err
	}
	fi, err := s.fs.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", common.ErrBlockMissing, id)
		}
		return 0, fmt.Errorf("%w: stat block %s: %v", common.ErrIO, id, err)
	}
	return fi.Size(), nil
}

// DeleteBlock removes a block. The caller guarantees no version references it.
func (s *BlockStore) DeleteBlock(id BlockID) error {
	p, err := s.blockPath(id)
	if err != nil {
		return err
	}
	s.cache.Remove(string(id))
	if err := s.fs.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrBlockMissing, id)
		}
		return fmt.Errorf("%w: delete block %s: %v", common.ErrIO, id, err)
	}
	log.Tracef("[BlockStore] DeleteBlock: id=%s", id)
	return nil
}

// ListBlocks returns every block physically present, sorted by id.
func (s *BlockStore) ListBlocks() ([]BlockInfo, error) {
	entries, err := s.fs.ReadDir(DataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrIO, DataDir, err)
	}

	blocks := make([]BlockInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), BlockExt) {
			continue
		}
		blocks = append(blocks, BlockInfo{
			ID:   BlockID(strings.TrimSuffix(e.Name(), BlockExt)),
			Size: e.Size(),
		})
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })
	return blocks, nil
}

// Reset deletes every block and returns how many were removed.
func (s *BlockStore) Reset() (int, error) {
	blocks, err := s.ListBlocks()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, b := range blocks {
		if err := s.DeleteBlock(b.ID); err != nil {
			return removed, err
		}
		removed++
	}
	s.cache.Invalidate()
	return removed, nil
}

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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"

	"cowfs/internal/common"
)

const (
	// MetadataDir holds one JSON record per logical file.
	MetadataDir = "metadata"
	// MetadataExt is the file extension of metadata records.
	MetadataExt = ".json"
)

// MetaStore persists VersionChain records as JSON files under MetadataDir.
// Every save replaces the whole record atomically.
type MetaStore struct {
	fs    billy.Filesystem
	fsync bool
}

// NewMetaStore creates the metadata directory on fs if needed.
func NewMetaStore(fs billy.Filesystem, fsync bool) (*MetaStore, error) {
	if err := fs.MkdirAll(MetadataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", common.ErrIO, MetadataDir, err)
	}
	return &MetaStore{fs: fs, fsync: fsync}, nil
}

func (m *MetaStore) recordPath(filename string) (string, error) {
	stem, err := common.SanitizeName(filename)
	if err != nil {
		return "", err
	}
	return m.fs.Join(MetadataDir, stem+MetadataExt), nil
}

// Exists reports whether a record exists for filename.
func (m *MetaStore) Exists(filename string) (bool, error) {
	p, err := m.recordPath(filename)
	if err != nil {
		return false, err
	}
	if _, err := m.fs.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: stat %s: %v", common.ErrIO, p, err)
	}
	return true, nil
}

// Create persists an empty chain for filename.
//
// If a record already exists and overwrite is false, Create leaves it alone
// and returns created=false with a nil error. With overwrite the existing
// record is replaced by an empty chain; blocks it referenced become garbage.
func (m *MetaStore) Create(filename string, overwrite bool) (created bool, err error) {
	exists, err := m.Exists(filename)
	if err != nil {
		return false, err
	}
	if exists && !overwrite {
		log.Debugf("[MetaStore] Create: %q already exists", filename)
		return false, nil
	}
	if err := m.Save(NewVersionChain(filename)); err != nil {
		return false, err
	}
	log.Debugf("[MetaStore] Create: %q (overwrite=%v, replaced=%v)", filename, overwrite, exists)
	return true, nil
}

// Load reads the chain for filename.
// Returns ErrNotFound if no record exists and ErrCorruptMetadata if the
// record cannot be parsed or violates chain invariants.
func (m *MetaStore) Load(filename string) (*VersionChain, error) {
	p, err := m.recordPath(filename)
	if err != nil {
		return nil, err
	}
	chain, err := m.loadPath(p)
	if err != nil {
		return nil, err
	}
	if chain.Filename != filename {
		return nil, fmt.Errorf("%w: %s holds %q, expected %q", common.ErrCorruptMetadata, p, chain.Filename, filename)
	}
	return chain, nil
}

func (m *MetaStore) loadPath(p string) (*VersionChain, error) {
	f, err := m.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, p)
		}
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrIO, p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrIO, p, err)
	}

	var chain VersionChain
	if err := json.Unmarshal(data, &chain); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrCorruptMetadata, p, err)
	}
	if err := chain.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrCorruptMetadata, p, err)
	}
	return &chain, nil
}

// Save replaces the record for chain.Filename.
func (m *MetaStore) Save(chain *VersionChain) error {
	p, err := m.recordPath(chain.Filename)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", chain.Filename, err)
	}
	if err := WriteFileAtomic(m.fs, p, data, 0o644, m.fsync); err != nil {
		return fmt.Errorf("%w: save %s: %v", common.ErrIO, p, err)
	}
	return nil
}

// Delete removes the record for filename. Blocks it referenced are left for GC.
func (m *MetaStore) Delete(filename string) error {
	p, err := m.recordPath(filename)
	if err != nil {
		return err
	}
	if err := m.fs.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, filename)
		}
		return fmt.Errorf("%w: delete %s: %v", common.ErrIO, p, err)
	}
	return nil
}

// recordInfo describes a metadata file on disk.
type recordInfo struct {
	path string
	stem string
	size int64
}

func (m *MetaStore) records() ([]recordInfo, error) {
	entries, err := m.fs.ReadDir(MetadataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrIO, MetadataDir, err)
	}
	var out []recordInfo
	for _, e := range entries {
		name := e.Name()
		// skip directories and leftovers from interrupted saves
		if e.IsDir() || strings.HasPrefix(name, ".tmp-") || !strings.HasSuffix(name, MetadataExt) {
			continue
		}
		out = append(out, recordInfo{
			path: m.fs.Join(MetadataDir, name),
			stem: strings.TrimSuffix(name, MetadataExt),
			size: e.Size(),
		})
	}
	return out, nil
}

// List loads every chain, sorted by filename.
// Any unreadable record fails the whole listing, as does a record whose
// filename does not match the name it is stored under.
func (m *MetaStore) List() ([]*VersionChain, error) {
	recs, err := m.records()
	if err != nil {
		return nil, err
	}
	chains := make([]*VersionChain, 0, len(recs))
	for _, r := range recs {
		name, err := common.UnsanitizeName(r.stem)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", common.ErrCorruptMetadata, r.path, err)
		}
		chain, err := m.loadPath(r.path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		if chain.Filename != name {
			return nil, fmt.Errorf("%w: %s holds %q, expected %q", common.ErrCorruptMetadata, r.path, chain.Filename, name)
		}
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Filename < chains[j].Filename })
	return chains, nil
}

// TotalSize returns the number of records and their combined size in bytes.
func (m *MetaStore) TotalSize() (count int, bytes int64, err error) {
	recs, err := m.records()
	if err != nil {
		return 0, 0, err
	}
	for _, r := range recs {
		bytes += r.size
	}
	return len(recs), bytes, nil
}

// Reset deletes every record and returns how many were removed.
func (m *MetaStore) Reset() (int, error) {
	recs, err := m.records()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range recs {
		if err := m.fs.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("%w: delete %s: %v", common.ErrIO, r.path, err)
		}
		removed++
	}
	return removed, nil
}

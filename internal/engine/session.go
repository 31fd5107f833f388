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

package engine

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"cowfs/internal/common"
	"cowfs/internal/storage"
)

// Session is an open file: a version chain, a cursor and a backing.
//
// The chain is persisted after every change; closing a session only drops
// the in-process state.
type Session struct {
	name    string
	chain   *storage.VersionChain
	cursor  int64
	backing backing
	blocks  *storage.BlockStore
	meta    *storage.MetaStore
	closed  bool
	release func()
}

// Name returns the logical file name.
func (s *Session) Name() string { return s.name }

// Cursor returns the current read/write position.
func (s *Session) Cursor() int64 { return s.cursor }

// Size returns the length of the current version.
func (s *Session) Size() int64 {
	cur, ok := s.chain.Current()
	if !ok {
		return 0
	}
	return contentLength(cur)
}

// ExternalPath returns the host path mirrored by this session, if any.
func (s *Session) ExternalPath() (string, bool) { return s.backing.external() }

// Versions returns a copy of the chain's history.
func (s *Session) Versions() []storage.Version { return s.chain.ListVersions() }

// CurrentVersion returns the index of the current version, -1 when empty.
func (s *Session) CurrentVersion() int { return s.chain.CurrentVersion }

func (s *Session) checkOpen() error {
	if s.closed {
		return fmt.Errorf("%w: %s", common.ErrNotOpen, s.name)
	}
	return nil
}

// Write stores data at the cursor as a new version and advances the cursor
// past it. Blocks of the previous version are shared, never modified.
// Writing nothing creates no version.
func (s *Session) Write(data []byte) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}

	cur, _ := s.chain.Current()
	size := contentLength(cur)
	pos := s.cursor
	end := pos + int64(len(data))
	newSize := max(end, size)

	blocks, err := rebuild(s.blocks, cur, pos, data)
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", s.name, err)
	}

	prev := s.chain.Clone()
	n := s.chain.AppendVersion(blocks, storage.ByteRange{Start: 0, End: newSize}, newSize)
	if err := s.meta.Save(s.chain); err != nil {
		*s.chain = *prev
		return 0, fmt.Errorf("write %s: %w", s.name, err)
	}
	s.cursor = end

	log.WithFields(log.Fields{
		"file":    s.name,
		"version": n,
		"offset":  pos,
		"bytes":   len(data),
		"blocks":  len(blocks),
	}).Debug("write")

	if pos == size {
		err = s.backing.appended(data)
	} else {
		err = s.mirrorCurrent()
	}
	if err != nil {
		return len(data), fmt.Errorf("write %s: %w", s.name, err)
	}
	return len(data), nil
}

// Read returns up to limit bytes from the cursor and advances it.
// A negative limit reads to the end. At or past the end Read returns no bytes
// and no error.
func (s *Session) Read(limit int64) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	cur, ok := s.chain.Current()
	if !ok {
		return []byte{}, nil
	}
	total := contentLength(cur)
	if s.cursor >= total {
		return []byte{}, nil
	}
	n := total - s.cursor
	if limit >= 0 && limit < n {
		n = limit
	}

	data, err := assemble(s.blocks, cur, s.cursor, n)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.name, err)
	}
	s.cursor += int64(len(data))
	return data, nil
}

// ReadVersion returns the full content of version n without moving the
// current pointer or the cursor.
func (s *Session) ReadVersion(n int) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return readVersion(s.blocks, s.chain, n)
}

func readVersion(bs *storage.BlockStore, chain *storage.VersionChain, n int) ([]byte, error) {
	v, err := chain.Version(n)
	if err != nil {
		return nil, err
	}
	data, err := assemble(bs, v, 0, contentLength(v))
	if err != nil {
		return nil, fmt.Errorf("read %s version %d: %w", chain.Filename, n, err)
	}
	return data, nil
}

// Undo makes the previous version current. History is kept, so the undone
// version's blocks stay reachable. The cursor moves to the end of content.
func (s *Session) Undo() error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	prev := s.chain.Clone()
	v, err := s.chain.Rewind()
	if err != nil {
		return err
	}
	if err := s.meta.Save(s.chain); err != nil {
		*s.chain = *prev
		return fmt.Errorf("undo %s: %w", s.name, err)
	}
	s.cursor = contentLength(v)

	log.WithFields(log.Fields{
		"file":    s.name,
		"version": v.Number,
		"size":    s.cursor,
	}).Debug("undo")

	if err := s.mirrorCurrent(); err != nil {
		return fmt.Errorf("undo %s: %w", s.name, err)
	}
	return nil
}

// Seek moves the cursor to off, which must lie within [0, Size()].
func (s *Session) Seek(off int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if size := s.Size(); off < 0 || off > size {
		return fmt.Errorf("%w: %d not in [0, %d] for %s", common.ErrInvalidOffset, off, size, s.name)
	}
	s.cursor = off
	return nil
}

// Close releases the session. The persisted chain is untouched.
func (s *Session) Close() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.closed = true
	if s.release != nil {
		s.release()
	}
	log.Debugf("[Session] Close: %s", s.name)
	return nil
}

// mirrorCurrent rewrites the backing with the whole current version.
func (s *Session) mirrorCurrent() error {
	if _, ok := s.backing.external(); !ok {
		return nil
	}
	cur, ok := s.chain.Current()
	if !ok {
		return s.backing.replaced(nil)
	}
	content, err := assemble(s.blocks, cur, 0, contentLength(cur))
	if err != nil {
		return err
	}
	return s.backing.replaced(content)
}

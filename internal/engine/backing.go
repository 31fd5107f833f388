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
	"os"

	billy "github.com/go-git/go-billy/v5"

	"cowfs/internal/common"
	"cowfs/internal/storage"
)

// backing is what a session keeps in sync outside the store.
// The only implementations are internalBacking and externalBacking.
type backing interface {
	// appended is called after data was added at the old end of content.
	appended(data []byte) error
	// replaced is called when the current content changed in a way that
	// cannot be expressed as an append (mid-file write, undo).
	replaced(content []byte) error
	external() (string, bool)
}

// internalBacking keeps content only in the store.
type internalBacking struct{}

func (internalBacking) appended([]byte) error    { return nil }
func (internalBacking) replaced([]byte) error    { return nil }
func (internalBacking) external() (string, bool) { return "", false }

// externalBacking mirrors the current version into a host file.
type externalBacking struct {
	fs   billy.Filesystem
	path string
}

func (b externalBacking) appended(data []byte) error {
	f, err := b.fs.OpenFile(b.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", common.ErrIO, b.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: append %s: %v", common.ErrIO, b.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", common.ErrIO, b.path, err)
	}
	return nil
}

// replaced swaps in a new host file, so the inode changes; the permission
// bits of the old file carry over.
func (b externalBacking) replaced(content []byte) error {
	perm := os.FileMode(0o644)
	if fi, err := b.fs.Stat(b.path); err == nil {
		perm = fi.Mode().Perm()
	}
	if err := storage.WriteFileAtomic(b.fs, b.path, content, perm, false); err != nil {
		return fmt.Errorf("%w: rewrite %s: %v", common.ErrIO, b.path, err)
	}
	return nil
}

func (b externalBacking) external() (string, bool) { return b.path, true }

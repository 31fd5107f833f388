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
	"fmt"
	"os"
	"path"

	billy "github.com/go-git/go-billy/v5"
)

// syncer is implemented by files backed by a real descriptor (osfs).
// memfs files have nothing to flush.
type syncer interface {
	Sync() error
}

func syncFile(f billy.File) error {
	if s, ok := f.(syncer); ok {
		return s.Sync()
	}
	return nil
}

// WriteFileAtomic replaces filename with data using write-to-temp + rename.
// The temp file lives in the same directory so the rename never crosses a
// filesystem boundary. If any step fails the original file is untouched and
// the temp file is removed.
func WriteFileAtomic(fs billy.Filesystem, filename string, data []byte, perm os.FileMode, fsync bool) error {
	dir := path.Dir(filename)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := fs.TempFile(dir, ".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if fsync {
		if err := syncFile(tmp); err != nil {
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if chmod, ok := fs.(billy.Change); ok {
		// not every billy backend implements Change
		_ = chmod.Chmod(tmpName, perm)
	}

	if err := fs.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("replace %s: %w", filename, err)
	}

	success = true
	return nil
}

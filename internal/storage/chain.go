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
	"time"

	"cowfs/internal/common"
)

// Version is one immutable entry in a file's history.
//
// The concatenation of Blocks is the raw content; [Start, End) selects the
// logical window of that concatenation that belongs to this version.
type Version struct {
	Number    int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Blocks    []BlockID `json:"blocks"`
	Start     int64     `json:"start"`
	End       int64     `json:"end"`
	Size      int64     `json:"size"`
}

// ByteRange is a half-open interval [Start, End).
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns End - Start.
func (r ByteRange) Len() int64 {
	return r.End - r.Start
}

// Range returns the version's logical window.
func (v Version) Range() ByteRange {
	return ByteRange{Start: v.Start, End: v.End}
}

func (v Version) clone() Version {
	v.Blocks = append(make([]BlockID, 0, len(v.Blocks)), v.Blocks...)
	return v
}

// VersionChain is the persisted history of one logical file.
// CurrentVersion is -1 until the first version is appended.
type VersionChain struct {
	Filename       string    `json:"filename"`
	CreationTime   time.Time `json:"creation_time"`
	Versions       []Version `json:"versions"`
	CurrentVersion int       `json:"current_version"`
	Size           int64     `json:"size"`
}

// NewVersionChain returns an empty chain for filename.
func NewVersionChain(filename string) *VersionChain {
	return &VersionChain{
		Filename:       filename,
		CreationTime:   time.Now().UTC(),
		Versions:       []Version{},
		CurrentVersion: -1,
	}
}

// Current returns the current version, or false if the chain has no content yet.
func (c *VersionChain) Current() (Version, bool) {
	if c.CurrentVersion < 0 {
		return Version{}, false
	}
	return c.Versions[c.CurrentVersion], true
}

// AppendVersion records a new version and makes it current.
// Earlier versions are never modified.
func (c *VersionChain) AppendVersion(blocks []BlockID, r ByteRange, size int64) int {
	n := len(c.Versions)
	c.Versions = append(c.Versions, Version{
		Number:    n,
		Timestamp: time.Now().UTC(),
		Blocks:    append(make([]BlockID, 0, len(blocks)), blocks...),
		Start:     r.Start,
		End:       r.End,
		Size:      size,
	})
	c.CurrentVersion = n
	c.Size = size
	return n
}

// Rewind moves the current pointer one version back and returns the new
// current version. History is not truncated.
func (c *VersionChain) Rewind() (Version, error) {
	if c.CurrentVersion <= 0 {
		return Version{}, fmt.Errorf("%w: %s at version %d", common.ErrNoHistory, c.Filename, c.CurrentVersion)
	}
	c.CurrentVersion--
	v := c.Versions[c.CurrentVersion]
	c.Size = v.Size
	return v, nil
}

// Version returns version n.
func (c *VersionChain) Version(n int) (Version, error) {
	if n < 0 || n >= len(c.Versions) {
		return Version{}, fmt.Errorf("%w: %s has no version %d", common.ErrVersionNotFound, c.Filename, n)
	}
	return c.Versions[n].clone(), nil
}

// ListVersions returns a copy of the full history.
func (c *VersionChain) ListVersions() []Version {
	out := make([]Version, len(c.Versions))
	for i, v := range c.Versions {
		out[i] = v.clone()
	}
	return out
}

// Clone returns a deep copy.
func (c *VersionChain) Clone() *VersionChain {
	cp := *c
	cp.Versions = c.ListVersions()
	return &cp
}

// ReferencedBlocks calls fn for every block id in every version.
// Ids shared between versions are reported once per reference.
func (c *VersionChain) ReferencedBlocks(fn func(BlockID)) {
	for _, v := range c.Versions {
		for _, id := range v.Blocks {
			fn(id)
		}
	}
}

// Validate checks the structural invariants of a loaded record.
func (c *VersionChain) Validate() error {
	if c.Versions == nil {
		c.Versions = []Version{}
	}
	if c.CurrentVersion < -1 || c.CurrentVersion >= len(c.Versions) {
		return fmt.Errorf("current_version %d out of range [-1, %d)", c.CurrentVersion, len(c.Versions))
	}
	for i, v := range c.Versions {
		if v.Number != i {
			return fmt.Errorf("version at index %d is numbered %d", i, v.Number)
		}
		if v.Start < 0 || v.End < v.Start {
			return fmt.Errorf("version %d has invalid range [%d, %d)", i, v.Start, v.End)
		}
		if v.Size < 0 {
			return fmt.Errorf("version %d has negative size %d", i, v.Size)
		}
	}
	if c.CurrentVersion == -1 && c.Size != 0 {
		return fmt.Errorf("empty chain has size %d", c.Size)
	}
	return nil
}

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
	"cowfs/internal/storage"
)

// contentLength is the number of logical bytes in v.
func contentLength(v storage.Version) int64 {
	if w := v.End - v.Start; w < v.Size {
		return w
	}
	return v.Size
}

// blockSpan is one block of a version placed in logical coordinates.
// [lo, hi) is where the block would sit; [wlo, whi) is the part of it
// inside the version's window.
type blockSpan struct {
	id       storage.BlockID
	lo, hi   int64
	wlo, whi int64
}

func (b blockSpan) whole() bool {
	return b.wlo == b.lo && b.whi == b.hi
}

// spans walks the blocks of v and reports every block that has at least one
// byte inside the logical window. Blocks outside the window are skipped.
func spans(bs *storage.BlockStore, v storage.Version, fn func(blockSpan) error) error {
	limit := contentLength(v)
	var off int64
	for _, id := range v.Blocks {
		n, err := bs.Size(id)
		if err != nil {
			return err
		}
		lo := off - v.Start
		hi := lo + n
		off += n

		sp := blockSpan{id: id, lo: lo, hi: hi, wlo: max(lo, 0), whi: min(hi, limit)}
		if sp.wlo >= sp.whi {
			continue
		}
		if err := fn(sp); err != nil {
			return err
		}
	}
	return nil
}

// assemble returns logical bytes [from, from+n) of v.
func assemble(bs *storage.BlockStore, v storage.Version, from, n int64) ([]byte, error) {
	to := from + n
	out := make([]byte, 0, n)
	err := spans(bs, v, func(sp blockSpan) error {
		lo, hi := max(sp.wlo, from), min(sp.whi, to)
		if lo >= hi {
			return nil
		}
		data, err := bs.ReadBlock(sp.id)
		if err != nil {
			return err
		}
		out = append(out, data[lo-sp.lo:hi-sp.lo]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// chunk stores data as consecutive new blocks of at most BlockSize bytes.
func chunk(bs *storage.BlockStore, data []byte) ([]storage.BlockID, error) {
	var ids []storage.BlockID
	for len(data) > 0 {
		n := min(len(data), storage.BlockSize)
		id, err := bs.WriteBlock(data[:n])
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
		data = data[n:]
	}
	return ids, nil
}

// rebuild returns the block list of the version that results from writing
// data at logical offset pos of v.
//
// Blocks entirely before pos or entirely after pos+len(data) are shared by
// id. Bytes of blocks straddling either edge are copied into new blocks
// together with data. Existing blocks are never rewritten. For an append
// this is v's block list followed by data in BlockSize chunks.
func rebuild(bs *storage.BlockStore, v storage.Version, pos int64, data []byte) ([]storage.BlockID, error) {
	end := pos + int64(len(data))

	var (
		out      []storage.BlockID
		pending  []byte
		inserted bool
	)
	flush := func() error {
		ids, err := chunk(bs, pending)
		out = append(out, ids...)
		pending = nil
		return err
	}
	insert := func() {
		if !inserted {
			pending = append(pending, data...)
			inserted = true
		}
	}
	share := func(sp blockSpan) error {
		if err := flush(); err != nil {
			return err
		}
		out = append(out, sp.id)
		return nil
	}
	copyRange := func(sp blockSpan, lo, hi int64) error {
		block, err := bs.ReadBlock(sp.id)
		if err != nil {
			return err
		}
		pending = append(pending, block[lo-sp.lo:hi-sp.lo]...)
		return nil
	}

	err := spans(bs, v, func(sp blockSpan) error {
		switch {
		case sp.whi <= pos:
			if sp.whole() {
				return share(sp)
			}
			return copyRange(sp, sp.wlo, sp.whi)
		case sp.wlo >= end:
			insert()
			if sp.whole() {
				return share(sp)
			}
			return copyRange(sp, sp.wlo, sp.whi)
		default:
			// straddles pos, end or both
			if sp.wlo < pos {
				if err := copyRange(sp, sp.wlo, pos); err != nil {
					return err
				}
			}
			if sp.whi > end {
				insert()
				return copyRange(sp, end, sp.whi)
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	insert()
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

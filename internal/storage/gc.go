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

	log "github.com/sirupsen/logrus"
)

// GarbageCollectResult holds statistics from a garbage collection run
type GarbageCollectResult struct {
	ScannedBlocks   int   // blocks physically present before the sweep
	ReachableBlocks int   // distinct block ids referenced by any version
	OrphanedBlocks  int   // blocks deleted
	OrphanedBytes   int64 // bytes freed
}

// StorageStats describes reachability without changing anything.
type StorageStats struct {
	Chains          int
	Versions        int
	TotalBlocks     int
	TotalBlockBytes int64
	ReachableBlocks int
	OrphanedBlocks  int
	OrphanedBytes   int64
	// MissingBlocks counts ids referenced by some version but absent from
	// the block store. Non-zero means the store is damaged.
	MissingBlocks int
}

// reachableSet marks every block referenced by every version of every chain.
// Not only the current version: undo keeps older versions addressable.
func (s *Store) reachableSet() (map[BlockID]struct{}, int, int, error) {
	chains, err := s.Meta.List()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to scan metadata: %w", err)
	}
	reachable := make(map[BlockID]struct{})
	versions := 0
	for _, c := range chains {
		versions += len(c.Versions)
		c.ReferencedBlocks(func(id BlockID) {
			reachable[id] = struct{}{}
		})
	}
	return reachable, len(chains), versions, nil
}

// GarbageCollect deletes every stored block that no version of any chain
// references. If any metadata record is unreadable nothing is deleted.
func (s *Store) GarbageCollect() (*GarbageCollectResult, error) {
	reachable, _, _, err := s.reachableSet()
	if err != nil {
		return nil, err
	}
	blocks, err := s.Blocks.ListBlocks()
	if err != nil {
		return nil, err
	}

	result := &GarbageCollectResult{
		ScannedBlocks:   len(blocks),
		ReachableBlocks: len(reachable),
	}
	for _, b := range blocks {
		if _, ok := reachable[b.ID]; ok {
			continue
		}
		if err := s.Blocks.DeleteBlock(b.ID); err != nil {
			return result, fmt.Errorf("failed to delete orphaned block %s: %w", b.ID, err)
		}
		result.OrphanedBlocks++
		result.OrphanedBytes += b.Size
	}

	log.WithFields(log.Fields{
		"scanned":   result.ScannedBlocks,
		"reachable": result.ReachableBlocks,
		"removed":   result.OrphanedBlocks,
		"bytes":     result.OrphanedBytes,
	}).Info("garbage collection finished")
	return result, nil
}

// GetStorageStats reports what GarbageCollect would remove.
func (s *Store) GetStorageStats() (*StorageStats, error) {
	reachable, chains, versions, err := s.reachableSet()
	if err != nil {
		return nil, err
	}
	blocks, err := s.Blocks.ListBlocks()
	if err != nil {
		return nil, err
	}

	stats := &StorageStats{
		Chains:          chains,
		Versions:        versions,
		TotalBlocks:     len(blocks),
		ReachableBlocks: len(reachable),
	}
	present := make(map[BlockID]struct{}, len(blocks))
	for _, b := range blocks {
		present[b.ID] = struct{}{}
		stats.TotalBlockBytes += b.Size
		if _, ok := reachable[b.ID]; !ok {
			stats.OrphanedBlocks++
			stats.OrphanedBytes += b.Size
		}
	}
	for id := range reachable {
		if _, ok := present[id]; !ok {
			stats.MissingBlocks++
		}
	}
	return stats, nil
}

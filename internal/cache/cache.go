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

// Package cache provides cache implementations for the cowfs storage layer.
//
// Currently provides:
// - BlockCache: size-bounded LRU over block content (used by BlockStore)
//
// Blocks are immutable once written, so cached content never goes stale.
// The only invalidation event is a block being deleted by the garbage
// collector or a storage reset.
package cache

import "os"

// Disabled controls whether all caching mechanisms are disabled.
// Set via COWFS_CACHE=0 environment variable.
// When true:
// - BlockCache.Get() always returns a miss
// - BlockCache.Add() is a no-op
//
// This is useful for testing and debugging to verify logic works correctly
// without caching, and to isolate cache-related bugs.
var Disabled = os.Getenv("COWFS_CACHE") == "0"

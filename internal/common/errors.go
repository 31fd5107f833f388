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

package common

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrExists          = errors.New("already exists")
	ErrAlreadyOpen     = errors.New("already open")
	ErrNotOpen         = errors.New("not open")
	ErrBlockMissing    = errors.New("block missing")
	ErrBlockTooLarge   = errors.New("block exceeds block size")
	ErrCorruptMetadata = errors.New("corrupt metadata")
	ErrNoHistory       = errors.New("no earlier version")
	ErrVersionNotFound = errors.New("version not found")
	ErrInvalidName     = errors.New("invalid file name")
	ErrInvalidOffset   = errors.New("invalid offset")
	ErrIO              = errors.New("I/O error")
	ErrLocked          = errors.New("storage root is locked by another process")
)

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
	"sort"

	"cowfs/internal/common"
)

// SessionTable tracks open sessions by file name.
// At most one session per name is open at a time. The engine is
// single-threaded, so the table does no locking.
type SessionTable struct {
	sessions map[string]*Session
}

// NewSessionTable creates an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[string]*Session)}
}

// Allocate registers s under its name and arranges for Close to release it.
func (t *SessionTable) Allocate(s *Session) error {
	if _, ok := t.sessions[s.name]; ok {
		return fmt.Errorf("%w: %s", common.ErrAlreadyOpen, s.name)
	}
	t.sessions[s.name] = s
	s.release = func() { t.Release(s.name) }
	return nil
}

// Get returns the open session for name.
func (t *SessionTable) Get(name string) (*Session, bool) {
	s, ok := t.sessions[name]
	return s, ok
}

// IsOpen reports whether name has an open session.
func (t *SessionTable) IsOpen(name string) bool {
	_, ok := t.sessions[name]
	return ok
}

// Release forgets the session for name.
func (t *SessionTable) Release(name string) {
	delete(t.sessions, name)
}

// Len returns the number of open sessions.
func (t *SessionTable) Len() int {
	return len(t.sessions)
}

// Names returns the names of open sessions, sorted.
func (t *SessionTable) Names() []string {
	names := make([]string, 0, len(t.sessions))
	for name := range t.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Copyright 2024 The P4VFS-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import "sync"

// Entry is a single record captured by a Memory sink.
type Entry struct {
	Level Level
	Msg   string
}

// Memory is a sink that retains every record in a slice, used by tests to
// assert on what the sync engine or resolver logged without scraping
// stdout (e.g. classifying an operation's outcome from Warning/Error lines,
// per spec.md §4.H "classify outcome").
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) append(level Level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Level: level, Msg: msg})
}

func (m *Memory) DebugDepth(_ int, msg string)   { m.append(Debug, msg) }
func (m *Memory) InfoDepth(_ int, msg string)    { m.append(Info, msg) }
func (m *Memory) WarningDepth(_ int, msg string) { m.append(Warning, msg) }
func (m *Memory) ErrorDepth(_ int, msg string)   { m.append(Error, msg) }
func (m *Memory) Close()                         {}

// Entries returns a snapshot of the captured records.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// HasLevel reports whether any captured record is at least level.
func (m *Memory) HasLevel(level Level) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Level >= level {
			return true
		}
	}
	return false
}

// Package history keeps the global stack of previously sent payloads:
// most recent first, deduplicated, bounded, persisted to disk.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/serial-hub/backend/internal/hexcodec"
)

// MaxEntries bounds the stack; the oldest entries are dropped past the cap.
const MaxEntries = 100

// Stack is safe for concurrent use. Index 0 is always the most recent
// payload, both in memory and in the persisted file, so loading never
// reverses the stored order.
type Stack struct {
	mu      sync.Mutex
	path    string
	entries []string
}

// Load reads the history file at path. A missing file yields an empty
// stack; a corrupt file is logged and treated as empty.
func Load(path string) *Stack {
	s := &Stack{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("[History] Failed to read %s: %v\n", path, err)
		}
		return s
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		fmt.Printf("[History] Failed to parse %s: %v\n", path, err)
		s.entries = nil
		return s
	}
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[:MaxEntries]
	}
	return s
}

// Record normalizes payload to canonical form and inserts it at the front
// unless it is already present. A duplicate is neither re-inserted nor
// reordered. Returns whether an insert happened; the stack is persisted on
// every confirmed insert.
func (s *Stack) Record(payload string) bool {
	canonical, _, err := hexcodec.Canonicalize(payload)
	if err != nil {
		fmt.Printf("[History] Rejecting unnormalizable payload: %v\n", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e == canonical {
			return false
		}
	}

	s.entries = append([]string{canonical}, s.entries...)
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[:MaxEntries]
	}
	s.saveLocked()
	return true
}

// Snapshot returns a copy of the stack, most recent first.
func (s *Stack) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the current number of entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// saveLocked persists the stack. Write failures are logged, never fatal.
func (s *Stack) saveLocked() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		fmt.Printf("[History] Failed to encode history: %v\n", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		fmt.Printf("[History] Failed to write %s: %v\n", s.path, err)
	}
}

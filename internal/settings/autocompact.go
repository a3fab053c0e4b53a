// Package settings persists the two small JSON files the daemon writes: the
// shared Claude settings file (for the autoCompact flag) and the daemon's
// own notification preferences. All writes are atomic; the shared file is
// additionally guarded by a file lock because external tools write it too.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
)

// autoCompactKey is the field this daemon owns inside the shared settings
// file. Every other key is preserved byte for byte.
const autoCompactKey = "autoCompact"

// CorruptWarning is surfaced to clients when the settings file could not be
// parsed and was treated as empty.
const CorruptWarning = "settings file was corrupt and has been rewritten"

// AutocompactStore reads and toggles the autoCompact flag in the shared
// Claude settings file.
type AutocompactStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func NewAutocompactStore(path string) *AutocompactStore {
	return &AutocompactStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Enabled reads the current flag. A missing file or missing key reports
// true, matching the upstream default.
func (s *AutocompactStore) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, _ := s.read()
	return enabledIn(raw)
}

// Toggle flips the flag and persists it, preserving unknown keys. The
// returned warning is non-empty when the previous file content was corrupt
// and got discarded.
func (s *AutocompactStore) Toggle() (enabled bool, warning string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The file is shared with external tools; hold the lock across the
	// read-modify-write.
	if err := s.lock.Lock(); err != nil {
		return false, "", fmt.Errorf("lock settings file: %w", err)
	}
	defer s.lock.Unlock()

	raw, corrupt := s.read()
	enabled = !enabledIn(raw)

	flag, err := json.Marshal(enabled)
	if err != nil {
		return false, "", err
	}
	raw[autoCompactKey] = flag

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return false, "", fmt.Errorf("marshal settings: %w", err)
	}
	if err := writeFileAtomic(s.path, append(data, '\n'), 0o644); err != nil {
		return false, "", err
	}

	if corrupt {
		warning = CorruptWarning
	}
	return enabled, warning, nil
}

// read parses the settings file into a key-preserving map. A missing file
// yields an empty map; a corrupt file yields an empty map and corrupt=true.
func (s *AutocompactStore) read() (map[string]json.RawMessage, bool) {
	raw := make(map[string]json.RawMessage)
	data, err := os.ReadFile(s.path)
	if err != nil {
		return raw, false
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return make(map[string]json.RawMessage), true
	}
	return raw, false
}

// enabledIn decodes the flag, defaulting to true when absent or mangled.
func enabledIn(raw map[string]json.RawMessage) bool {
	v, ok := raw[autoCompactKey]
	if !ok {
		return true
	}
	var enabled bool
	if err := json.Unmarshal(v, &enabled); err != nil {
		return true
	}
	return enabled
}

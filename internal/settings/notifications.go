package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// NotificationSettings are the daemon's notification preferences.
type NotificationSettings struct {
	Enabled          bool `json:"enabled"`
	NotifyOnAwaiting bool `json:"notify_on_awaiting"`
	NotifyOnIdle     bool `json:"notify_on_idle"`
	PlaySound        bool `json:"play_sound"`
}

// DefaultNotificationSettings fire for approval prompts only.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:          true,
		NotifyOnAwaiting: true,
	}
}

// NotificationPatch is a partial update; nil fields are left unchanged.
type NotificationPatch struct {
	Enabled          *bool `json:"enabled,omitempty"`
	NotifyOnAwaiting *bool `json:"notify_on_awaiting,omitempty"`
	NotifyOnIdle     *bool `json:"notify_on_idle,omitempty"`
	PlaySound        *bool `json:"play_sound,omitempty"`
}

// NotificationStore persists NotificationSettings under the daemon's own
// config directory. Only this daemon writes the file, so the mutex alone
// serialises access.
type NotificationStore struct {
	path string
	mu   sync.Mutex
}

func NewNotificationStore(path string) *NotificationStore {
	return &NotificationStore{path: path}
}

// Load reads the settings, falling back to defaults when the file is
// missing or corrupt. Corruption is repaired by rewriting the defaults.
func (s *NotificationStore) Load() NotificationSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *NotificationStore) loadLocked() NotificationSettings {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return DefaultNotificationSettings()
	}
	var settings NotificationSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		settings = DefaultNotificationSettings()
		s.writeLocked(settings)
		return settings
	}
	return settings
}

// Update applies a patch and persists the result, returning the new
// settings.
func (s *NotificationStore) Update(patch NotificationPatch) (NotificationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.loadLocked()
	if patch.Enabled != nil {
		settings.Enabled = *patch.Enabled
	}
	if patch.NotifyOnAwaiting != nil {
		settings.NotifyOnAwaiting = *patch.NotifyOnAwaiting
	}
	if patch.NotifyOnIdle != nil {
		settings.NotifyOnIdle = *patch.NotifyOnIdle
	}
	if patch.PlaySound != nil {
		settings.PlaySound = *patch.PlaySound
	}

	if err := s.writeLocked(settings); err != nil {
		return settings, err
	}
	return settings, nil
}

func (s *NotificationStore) writeLocked(settings NotificationSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notification settings: %w", err)
	}
	return writeFileAtomic(s.path, append(data, '\n'), 0o644)
}

package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAutocompact_DefaultsTrueWhenMissing(t *testing.T) {
	s := NewAutocompactStore(filepath.Join(t.TempDir(), "settings.json"))
	if !s.Enabled() {
		t.Error("missing file should default autoCompact to true")
	}
}

func TestAutocompact_ToggleCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewAutocompactStore(path)

	enabled, warning, err := s.Toggle()
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if enabled {
		t.Error("first toggle from the true default should disable")
	}
	if warning != "" {
		t.Errorf("warning = %q, want none", warning)
	}
	// Re-read from disk must agree with the toggle result.
	if s.Enabled() != enabled {
		t.Error("persisted flag disagrees with toggle result")
	}

	enabled, _, err = s.Toggle()
	if err != nil {
		t.Fatalf("second Toggle: %v", err)
	}
	if !enabled {
		t.Error("second toggle should re-enable")
	}
}

func TestAutocompact_PreservesUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	original := `{
  "autoCompact": true,
  "theme": "dark",
  "permissions": {"allow": ["Bash(git:*)"]}
}`
	if err := os.WriteFile(path, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewAutocompactStore(path)
	if _, _, err := s.Toggle(); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("rewritten file is invalid json: %v", err)
	}
	if string(raw["theme"]) != `"dark"` {
		t.Errorf("theme = %s, want preserved", raw["theme"])
	}
	if !strings.Contains(string(raw["permissions"]), "Bash(git:*)") {
		t.Errorf("permissions = %s, want preserved", raw["permissions"])
	}
	if string(raw["autoCompact"]) != "false" {
		t.Errorf("autoCompact = %s, want false after toggle", raw["autoCompact"])
	}
}

func TestAutocompact_CorruptFileRewrittenWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewAutocompactStore(path)
	enabled, warning, err := s.Toggle()
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if warning != CorruptWarning {
		t.Errorf("warning = %q, want %q", warning, CorruptWarning)
	}
	// Corrupt content is treated as empty: default true, toggled to false.
	if enabled {
		t.Error("toggle from corrupt (empty) state should disable")
	}

	data, _ := os.ReadFile(path)
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("rewritten file still corrupt: %v", err)
	}
}

func TestAtomicWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	s := NewAutocompactStore(path)
	if _, _, err := s.Toggle(); err != nil {
		t.Fatalf("Toggle: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestNotifications_DefaultsWhenMissing(t *testing.T) {
	s := NewNotificationStore(filepath.Join(t.TempDir(), "notifications.json"))
	got := s.Load()
	want := DefaultNotificationSettings()
	if got != want {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
}

func TestNotifications_PatchSemantics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	s := NewNotificationStore(path)

	on := true
	got, err := s.Update(NotificationPatch{NotifyOnIdle: &on})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.NotifyOnIdle {
		t.Error("patched field not applied")
	}
	if !got.Enabled || !got.NotifyOnAwaiting {
		t.Error("unpatched fields did not keep their defaults")
	}

	// A fresh store reading the same file sees the persisted value.
	if reread := NewNotificationStore(path).Load(); !reread.NotifyOnIdle {
		t.Error("patch not persisted")
	}
}

func TestNotifications_CorruptFileRepaired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewNotificationStore(path)
	got := s.Load()
	if got != DefaultNotificationSettings() {
		t.Errorf("corrupt load = %+v, want defaults", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed NotificationSettings
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Errorf("corrupt file not rewritten: %v", err)
	}
}

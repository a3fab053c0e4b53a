package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatus_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		status Status
		name   string
	}{
		{StatusActive, "active"},
		{StatusWorking, "working"},
		{StatusAwaiting, "awaiting"},
		{StatusIdle, "idle"},
		{StatusEnded, "ended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.status)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != `"`+tt.name+`"` {
				t.Errorf("marshal = %s, want %q", data, tt.name)
			}

			var back Status
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tt.status {
				t.Errorf("round trip = %v, want %v", back, tt.status)
			}
		})
	}
}

func TestStatus_String_Unknown(t *testing.T) {
	if got := Status(99).String(); got != "unknown" {
		t.Errorf("Status(99).String() = %q, want %q", got, "unknown")
	}
}

func TestSession_Clone(t *testing.T) {
	now := time.Now()
	orig := &Session{
		ID:             "s1",
		Title:          "fix the bug",
		CWD:            "/home/user/project",
		TerminalKey:    "ITERM:A",
		Status:         StatusWorking,
		ContextMetrics: &ContextMetrics{InputTokens: 100, ContextWindow: 200000},
		Autocompact:    &AutocompactInfo{Enabled: true},
		RegisteredAt:   now,
		LastActivity:   now,
		toolDepth:      2,
	}

	c := orig.Clone()
	if c == orig {
		t.Fatal("Clone returned the same pointer")
	}
	if c.ContextMetrics == orig.ContextMetrics {
		t.Error("ContextMetrics pointer shared")
	}
	if c.Autocompact == orig.Autocompact {
		t.Error("Autocompact pointer shared")
	}
	if c.toolDepth != 2 {
		t.Errorf("toolDepth = %d, want 2", c.toolDepth)
	}

	c.ContextMetrics.InputTokens = 999
	c.Autocompact.Enabled = false
	if orig.ContextMetrics.InputTokens != 100 || !orig.Autocompact.Enabled {
		t.Error("mutating the clone changed the original")
	}
}

func TestContextMetrics(t *testing.T) {
	m := ContextMetrics{
		InputTokens:         1000,
		CacheCreationTokens: 2000,
		CacheReadTokens:     3000,
		OutputTokens:        500,
		ContextWindow:       12000,
	}

	if got := m.TotalContext(); got != 6000 {
		t.Errorf("TotalContext = %d, want 6000", got)
	}
	if got := m.Utilization(); got != 0.5 {
		t.Errorf("Utilization = %f, want 0.5", got)
	}

	m.ContextWindow = 0
	if got := m.Utilization(); got != 0 {
		t.Errorf("Utilization without window = %f, want 0", got)
	}

	m.ContextWindow = 100
	if got := m.Utilization(); got != 1.0 {
		t.Errorf("Utilization should clamp to 1.0, got %f", got)
	}
}

func TestSession_TouchNeverRegresses(t *testing.T) {
	base := time.Now()
	s := &Session{LastActivity: base}

	s.touch(base.Add(-time.Minute))
	if !s.LastActivity.Equal(base) {
		t.Error("touch moved last_activity backwards")
	}

	s.touch(base.Add(time.Minute))
	if !s.LastActivity.Equal(base.Add(time.Minute)) {
		t.Error("touch did not advance last_activity")
	}
}

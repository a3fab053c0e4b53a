package session

import (
	"testing"
)

func TestPrivacyFilter_IsAllowed(t *testing.T) {
	tests := []struct {
		name   string
		filter PrivacyFilter
		cwd    string
		want   bool
	}{
		{
			name:   "empty filter allows everything",
			filter: PrivacyFilter{},
			cwd:    "/home/user/project",
			want:   true,
		},
		{
			name:   "empty cwd always allowed",
			filter: PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			cwd:    "",
			want:   true,
		},
		{
			name:   "allowlist match direct",
			filter: PrivacyFilter{AllowedPaths: []string{"/home/user/work/*"}},
			cwd:    "/home/user/work/myproject",
			want:   true,
		},
		{
			name:   "allowlist match nested",
			filter: PrivacyFilter{AllowedPaths: []string{"/home/user/work/*"}},
			cwd:    "/home/user/work/deep/nested/path",
			want:   true,
		},
		{
			name:   "allowlist no match",
			filter: PrivacyFilter{AllowedPaths: []string{"/home/user/work/*"}},
			cwd:    "/home/user/personal/diary",
			want:   false,
		},
		{
			name:   "blocklist match",
			filter: PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			cwd:    "/tmp/scratch",
			want:   false,
		},
		{
			name:   "blocklist match nested",
			filter: PrivacyFilter{BlockedPaths: []string{"/tmp/*"}},
			cwd:    "/tmp/deep/nested",
			want:   false,
		},
		{
			name: "allowlist passes but blocklist catches",
			filter: PrivacyFilter{
				AllowedPaths: []string{"/home/user/*"},
				BlockedPaths: []string{"/home/user/secret"},
			},
			cwd:  "/home/user/secret",
			want: false,
		},
		{
			name: "multiple allowlist patterns",
			filter: PrivacyFilter{
				AllowedPaths: []string{"/home/user/work/*", "/home/user/projects/*"},
			},
			cwd:  "/home/user/projects/cool",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.filter.IsAllowed(tt.cwd)
			if got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.cwd, got, tt.want)
			}
		})
	}
}

func TestPrivacyFilter_Apply(t *testing.T) {
	original := &Session{
		ID:             "s1",
		CWD:            "/home/user/projects/myproject",
		GitRepoRoot:    "/home/user/projects/myproject",
		GitWorktree:    "/home/user/projects/myproject-wt",
		TranscriptPath: "/home/user/.claude/projects/x/t.jsonl",
		TerminalKey:    "PID:12345",
	}

	t.Run("mask working dirs", func(t *testing.T) {
		f := &PrivacyFilter{MaskWorkingDirs: true}
		result := f.Apply(original)
		if result.CWD != "myproject" {
			t.Errorf("CWD = %q, want %q", result.CWD, "myproject")
		}
		if result.GitRepoRoot != "myproject" || result.GitWorktree != "myproject-wt" {
			t.Errorf("git paths not masked: %q %q", result.GitRepoRoot, result.GitWorktree)
		}
		if result.TranscriptPath != "t.jsonl" {
			t.Errorf("TranscriptPath = %q, want basename", result.TranscriptPath)
		}
		if original.CWD != "/home/user/projects/myproject" {
			t.Error("original was modified")
		}
	})

	t.Run("mask terminal keys", func(t *testing.T) {
		f := &PrivacyFilter{MaskTerminalKeys: true}
		result := f.Apply(original)
		if result.TerminalKey != "" {
			t.Errorf("TerminalKey = %q, want empty", result.TerminalKey)
		}
	})

	t.Run("no masking is noop", func(t *testing.T) {
		f := &PrivacyFilter{}
		result := f.Apply(original)
		if result.ID != original.ID || result.CWD != original.CWD ||
			result.TerminalKey != original.TerminalKey {
			t.Error("no-op filter should not change any fields")
		}
	})
}

func TestPrivacyFilter_FilterSlice(t *testing.T) {
	sessions := []*Session{
		{ID: "s1", CWD: "/home/user/work/project-a", TerminalKey: "PID:100"},
		{ID: "s2", CWD: "/home/user/personal/diary", TerminalKey: "PID:200"},
		{ID: "s3", CWD: "/tmp/scratch", TerminalKey: "PID:300"},
	}

	f := &PrivacyFilter{
		MaskTerminalKeys: true,
		BlockedPaths:     []string{"/tmp/*"},
	}

	result := f.FilterSlice(sessions)
	if len(result) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(result))
	}
	for _, s := range result {
		if s.TerminalKey != "" {
			t.Errorf("terminal key should be masked, got %q for %s", s.TerminalKey, s.ID)
		}
		if s.CWD == "/tmp/scratch" {
			t.Error("blocked session should not be in result")
		}
	}

	// Input untouched.
	if sessions[0].TerminalKey != "PID:100" {
		t.Error("input slice element was mutated")
	}
}

func TestPrivacyFilter_FilterSlice_AllowAndBlock(t *testing.T) {
	sessions := []*Session{
		{ID: "s1", CWD: "/home/user/work/project-a"},
		{ID: "s2", CWD: "/home/user/work/secret-project"},
		{ID: "s3", CWD: "/other/path"},
	}

	f := &PrivacyFilter{
		AllowedPaths: []string{"/home/user/work/*"},
		BlockedPaths: []string{"/home/user/work/secret-*"},
	}

	result := f.FilterSlice(sessions)
	if len(result) != 1 {
		t.Fatalf("expected 1 session, got %d", len(result))
	}
	if result[0].ID != "s1" {
		t.Errorf("expected s1, got %s", result[0].ID)
	}
}

func TestPrivacyFilter_IsNoop(t *testing.T) {
	if f := (&PrivacyFilter{}); !f.IsNoop() {
		t.Error("zero value filter should be noop")
	}
	if f := (&PrivacyFilter{MaskTerminalKeys: true}); f.IsNoop() {
		t.Error("filter with masking should not be noop")
	}
	if f := (&PrivacyFilter{AllowedPaths: []string{"/foo/*"}}); f.IsNoop() {
		t.Error("filter with allowed paths should not be noop")
	}
}

func TestMatchPathOrParent_Termination(t *testing.T) {
	// filepath.Dir is a fixed point at every root, which is what stops the
	// walk; a pattern that never matches must not loop.
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"exact path match", "/home/user/project", "/home/user/project", true},
		{"parent glob matches nested path", "/home/user/*", "/home/user/work/src", true},
		{"no match terminates", "/other/*", "/home/user/project", false},
		{"root pattern stops before root", "/", "/project", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchPathOrParent(tt.pattern, tt.path)
			if got != tt.want {
				t.Errorf("matchPathOrParent(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

package session

import "path/filepath"

// PrivacyFilter applies masking and path-based filtering to sessions before
// they are broadcast to clients. Broadcast payloads can end up on shared
// screens, so masking is offered even though the daemon itself trusts the
// local user. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskWorkingDirs  bool
	MaskTerminalKeys bool
	AllowedPaths     []string
	BlockedPaths     []string
}

// IsAllowed reports whether a session with the given working directory may
// be broadcast. An empty working directory is always allowed (the session
// has not resolved its path yet). When AllowedPaths is non-empty the path
// must match at least one pattern, and in any case it must not match a
// BlockedPaths pattern.
func (f *PrivacyFilter) IsAllowed(cwd string) bool {
	if cwd == "" {
		return true
	}

	if len(f.AllowedPaths) > 0 {
		allowed := false
		for _, pattern := range f.AllowedPaths {
			if matchPathOrParent(pattern, cwd) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, pattern := range f.BlockedPaths {
		if matchPathOrParent(pattern, cwd) {
			return false
		}
	}

	return true
}

// matchPathOrParent checks whether pattern matches path or any of its parent
// directories, so "/home/user/*" also covers "/home/user/work/project-a".
func matchPathOrParent(pattern, path string) bool {
	for p := path; p != "." && p != "" && p != filepath.Dir(p); p = filepath.Dir(p) {
		if matched, _ := filepath.Match(pattern, p); matched {
			return true
		}
	}
	return false
}

// Apply returns a copy of the session with sensitive fields masked according
// to the filter configuration. The original is never modified.
func (f *PrivacyFilter) Apply(s *Session) *Session {
	masked := s.Clone()

	if f.MaskWorkingDirs {
		if masked.CWD != "" {
			masked.CWD = filepath.Base(masked.CWD)
		}
		if masked.GitRepoRoot != "" {
			masked.GitRepoRoot = filepath.Base(masked.GitRepoRoot)
		}
		if masked.GitWorktree != "" {
			masked.GitWorktree = filepath.Base(masked.GitWorktree)
		}
		if masked.TranscriptPath != "" {
			masked.TranscriptPath = filepath.Base(masked.TranscriptPath)
		}
	}

	if f.MaskTerminalKeys {
		masked.TerminalKey = ""
	}

	return masked
}

// FilterSlice returns a new slice containing only the allowed sessions, with
// masking applied to each. The input is not modified.
func (f *PrivacyFilter) FilterSlice(sessions []*Session) []*Session {
	result := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if !f.IsAllowed(s.CWD) {
			continue
		}
		result = append(result, f.Apply(s))
	}
	return result
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskWorkingDirs && !f.MaskTerminalKeys &&
		len(f.AllowedPaths) == 0 && len(f.BlockedPaths) == 0
}

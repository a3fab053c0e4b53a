// Package worktree shells out to git for worktree management. The router
// talks to the Worktrees interface so tests can substitute a fake.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrBadName is returned for worktree names that would escape the target
// directory or confuse git.
var ErrBadName = errors.New("invalid worktree name")

// Info describes one worktree as reported by git.
type Info struct {
	Path     string `json:"path"`
	Head     string `json:"head,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Bare     bool   `json:"bare,omitempty"`
	Detached bool   `json:"detached,omitempty"`
}

// Worktrees is the collaborator surface the request router consumes.
type Worktrees interface {
	Create(ctx context.Context, repoRoot, name, baseBranch string) (Info, error)
	List(ctx context.Context, repoRoot string) ([]Info, error)
	Remove(ctx context.Context, repoRoot, path string, force bool) error
}

const commandTimeout = 30 * time.Second

// Git implements Worktrees against the git binary.
type Git struct{}

func NewGit() *Git { return &Git{} }

// Create adds a worktree named after name as a sibling directory of the
// repository (<parent>/<repo>-<name>), on a new branch of the same name.
// baseBranch, when non-empty, is the starting point; otherwise HEAD.
func (g *Git) Create(ctx context.Context, repoRoot, name, baseBranch string) (Info, error) {
	if err := validateName(name); err != nil {
		return Info{}, err
	}
	if baseBranch != "" {
		if err := validateName(baseBranch); err != nil {
			return Info{}, fmt.Errorf("base branch: %w", err)
		}
	}

	path := filepath.Join(filepath.Dir(repoRoot), filepath.Base(repoRoot)+"-"+name)
	args := []string{"worktree", "add", "-b", name, path}
	if baseBranch != "" {
		args = append(args, baseBranch)
	}
	if _, err := g.run(ctx, repoRoot, args...); err != nil {
		return Info{}, err
	}
	return Info{Path: path, Branch: name}, nil
}

// List returns the repository's worktrees, main checkout first, as git
// reports them.
func (g *Git) List(ctx context.Context, repoRoot string) ([]Info, error) {
	out, err := g.run(ctx, repoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

// Remove deletes a worktree checkout. force discards uncommitted changes.
func (g *Git) Remove(ctx context.Context, repoRoot, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	_, err := g.run(ctx, repoRoot, args...)
	return err
}

func (g *Git) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return "", fmt.Errorf("git %s: %w", args[0], err)
		}
		return "", fmt.Errorf("git %s: %s: %w", args[0], msg, err)
	}
	return string(out), nil
}

// validateName rejects names git would mangle or that would resolve outside
// the sibling directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrBadName)
	}
	if strings.ContainsAny(name, "/\\ \t\n") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return nil
}

// parsePorcelain decodes `git worktree list --porcelain` output: one
// attribute per line, worktrees separated by blank lines.
func parsePorcelain(out string) []Info {
	var (
		result  []Info
		current *Info
	)
	flush := func() {
		if current != nil {
			result = append(result, *current)
			current = nil
		}
	}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			flush()
			current = &Info{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
			// Attribute before any worktree line; ignore.
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Detached = true
		}
	}
	flush()
	return result
}

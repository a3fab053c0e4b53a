package router

import (
	"context"
	"fmt"

	"github.com/jacques-sh/jacques/internal/hub"
	"github.com/jacques-sh/jacques/internal/worktree"
)

// WorktreeResult reports create_worktree. When the new checkout launched a
// session, the tiling outcome rides along.
type WorktreeResult struct {
	Result
	Path     string          `json:"path,omitempty"`
	Branch   string          `json:"branch,omitempty"`
	SmartAdd *SmartAddResult `json:"smart_add,omitempty"`
}

func (r *Router) handleCreateWorktree(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		RepoRoot        string `json:"repo_root"`
		Name            string `json:"name"`
		BaseBranch      string `json:"base_branch,omitempty"`
		LaunchSession   *bool  `json:"launch_session,omitempty"`
		DisplayID       string `json:"display_id,omitempty"`
		SkipPermissions bool   `json:"dangerously_skip_permissions,omitempty"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, WorktreeResult{Result: errResult(req, err)})
		return
	}
	if p.RepoRoot == "" {
		r.reply(ctx, reply, req, WorktreeResult{Result: errResult(req, fmt.Errorf("repo_root is required"))})
		return
	}

	info, err := r.deps.Worktrees.Create(ctx, p.RepoRoot, p.Name, p.BaseBranch)
	if err != nil {
		r.reply(ctx, reply, req, WorktreeResult{Result: errResult(req, err)})
		return
	}

	res := WorktreeResult{Result: okResult(req), Path: info.Path, Branch: info.Branch}

	// Launch defaults on; only an explicit false skips it.
	if p.LaunchSession == nil || *p.LaunchSession {
		add := r.smartTileAdd(ctx, req, smartAddParams{
			LaunchCWD:       info.Path,
			DisplayID:       p.DisplayID,
			SkipPermissions: p.SkipPermissions,
		})
		res.SmartAdd = &add
		// The checkout exists either way; a failed launch is reported but
		// does not fail the worktree creation.
	}
	r.reply(ctx, reply, req, res)
}

// WorktreeListResult reports list_worktrees.
type WorktreeListResult struct {
	Result
	Worktrees []worktree.Info `json:"worktrees"`
}

func (r *Router) handleListWorktrees(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		RepoRoot string `json:"repo_root"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, WorktreeListResult{Result: errResult(req, err)})
		return
	}

	list, err := r.deps.Worktrees.List(ctx, p.RepoRoot)
	if err != nil {
		r.reply(ctx, reply, req, WorktreeListResult{Result: errResult(req, err)})
		return
	}
	r.reply(ctx, reply, req, WorktreeListResult{Result: okResult(req), Worktrees: list})
}

func (r *Router) handleRemoveWorktree(ctx context.Context, reply replySender, req hub.Request) {
	var p struct {
		RepoRoot string `json:"repo_root"`
		Path     string `json:"path"`
		Force    bool   `json:"force,omitempty"`
	}
	if err := decode(req, &p); err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}

	if err := r.deps.Worktrees.Remove(ctx, p.RepoRoot, p.Path, p.Force); err != nil {
		r.reply(ctx, reply, req, errResult(req, err))
		return
	}
	r.reply(ctx, reply, req, okResult(req))
}

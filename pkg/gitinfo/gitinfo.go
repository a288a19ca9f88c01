// Package gitinfo inspects the git repository backing a session. The
// orchestrator never mutates the repository itself (worktrees and branches
// are created by the agent); it only validates the configured repo path and
// reports branch context for logs and prompts.
package gitinfo

import (
	"errors"
	"fmt"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Info describes the repository state at a path.
type Info struct {
	Branch   string // empty when detached or unborn
	Detached bool
	Empty    bool // repository has no commits yet
}

// ErrNotRepository reports a path outside any git repository.
var ErrNotRepository = errors.New("not a git repository")

// Inspect opens the repository containing path and reports its branch
// context.
func Inspect(path string) (Info, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return Info{}, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return Info{}, fmt.Errorf("open git repository %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// unborn HEAD, the repo exists but has no commits
			return Info{Empty: true}, nil
		}
		return Info{}, fmt.Errorf("read HEAD of %s: %w", path, err)
	}

	if !head.Name().IsBranch() {
		return Info{Detached: true}, nil
	}
	return Info{Branch: head.Name().Short()}, nil
}

// IsRepository reports whether path is inside a git repository.
func IsRepository(path string) bool {
	_, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	return err == nil
}

// BranchHint returns the current branch for display purposes, empty when
// the path is not a repository or HEAD is not on a branch.
func BranchHint(path string) string {
	info, err := Inspect(path)
	if err != nil {
		return ""
	}
	return info.Branch
}

// ValidateRepo checks that the configured base repository is usable for
// worktree sessions: it must exist, be a real repository, and have at least
// one commit for branches to fork from.
func ValidateRepo(path string) error {
	info, err := Inspect(path)
	if err != nil {
		return err
	}
	if info.Empty {
		return fmt.Errorf("repository %s has no commits, create an initial commit first", path)
	}
	return nil
}

package session

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// currentBranch returns the checked-out VCS branch for dir, best-effort.
// Detached HEAD, a missing git binary, or running outside a repository all
// yield an empty string; the branch is informational only.
func currentBranch(ctx context.Context, dir string) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	branch := strings.TrimSpace(string(out))
	if branch == "HEAD" {
		return ""
	}
	return branch
}

// Package gitfetch acquires repository snapshots for analysis: a shallow
// clone into a scoped work directory plus the resolved commit identifier
// and, when the hosting provider is recognized, remote metadata.
package gitfetch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Snapshot is a cloned repository on local disk.
type Snapshot struct {
	Root      string
	CommitSHA string
	Meta      RepoMeta
}

// Fetcher clones remote repositories into per-run work directories.
type Fetcher struct {
	workDir string
}

// NewFetcher creates a Fetcher rooted at workDir.
func NewFetcher(workDir string) *Fetcher {
	return &Fetcher{workDir: workDir}
}

// Clone shallow-clones repoURL (depth 1) into a fresh directory under the
// work root and resolves HEAD. The caller owns the returned snapshot and
// must Release it on every exit path.
func (f *Fetcher) Clone(ctx context.Context, repoURL string) (*Snapshot, error) {
	target := filepath.Join(f.workDir, "archmapper-"+uuid.NewString())
	if err := os.MkdirAll(f.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}

	if out, err := runGit(ctx, "", "clone", "--depth", "1", repoURL, target); err != nil {
		os.RemoveAll(target)
		return nil, fmt.Errorf("cloning %s: %w: %s", repoURL, err, strings.TrimSpace(out))
	}

	sha, err := runGit(ctx, target, "rev-parse", "HEAD")
	if err != nil {
		os.RemoveAll(target)
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	return &Snapshot{
		Root:      target,
		CommitSHA: strings.TrimSpace(sha),
		Meta:      metaFromURL(repoURL),
	}, nil
}

// Release removes the snapshot's directory. Safe to call twice.
func (s *Snapshot) Release() {
	if s == nil || s.Root == "" {
		return
	}
	os.RemoveAll(s.Root)
	s.Root = ""
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(exitErr.Stderr), fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

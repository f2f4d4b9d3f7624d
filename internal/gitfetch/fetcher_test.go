package gitfetch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.CommandContext(context.Background(), "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v failed: %s", args, string(out))
}

func fixtureRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGitCmd(t, dir, "init")
	runGitCmd(t, dir, "config", "user.email", "test@test.com")
	runGitCmd(t, dir, "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("x = 1\n"), 0o644))
	runGitCmd(t, dir, "add", ".")
	runGitCmd(t, dir, "commit", "-m", "init")
	return dir
}

func TestCloneAndRelease(t *testing.T) {
	repo := fixtureRepo(t)
	workDir := t.TempDir()
	f := NewFetcher(workDir)

	snap, err := f.Clone(context.Background(), repo)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Len(t, snap.CommitSHA, 40)
	assert.FileExists(t, filepath.Join(snap.Root, "main.py"))

	root := snap.Root
	snap.Release()
	assert.NoDirExists(t, root)

	// releasing twice is safe
	snap.Release()
}

func TestCloneUnreachableRemote(t *testing.T) {
	f := NewFetcher(t.TempDir())
	_, err := f.Clone(context.Background(), "/definitely/not/a/repo")
	assert.Error(t, err)
}

func TestClonesGetDistinctWorkspaces(t *testing.T) {
	repo := fixtureRepo(t)
	f := NewFetcher(t.TempDir())

	a, err := f.Clone(context.Background(), repo)
	require.NoError(t, err)
	defer a.Release()
	b, err := f.Clone(context.Background(), repo)
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Root, b.Root)
}

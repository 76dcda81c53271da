package sync

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// newClone creates a bare remote with one commit on main and returns a
// working clone of it.
func newClone(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH")
	}

	remoteDir := t.TempDir()
	run(t, remoteDir, "git", "init", "--bare")

	workDir := t.TempDir()
	run(t, workDir, "git", "clone", remoteDir, "repo")
	repoDir := filepath.Join(workDir, "repo")

	run(t, repoDir, "git", "config", "user.email", "sync@example.com")
	run(t, repoDir, "git", "config", "user.name", "Sync")
	run(t, repoDir, "git", "branch", "-m", "main")
	if err := os.WriteFile(filepath.Join(repoDir, ".gitkeep"), nil, 0o644); err != nil {
		t.Fatalf("write .gitkeep: %v", err)
	}
	run(t, repoDir, "git", "add", ".")
	run(t, repoDir, "git", "commit", "-m", "init")
	run(t, repoDir, "git", "push", "origin", "main")
	return repoDir
}

func TestGitDestination(t *testing.T) {
	repoDir := newClone(t)
	dest := NewGitDestination(repoDir, "rules.json", "main")
	ctx := context.Background()

	data1 := []byte(`{"version":"1.0","rules":{"version_id":1}}` + "\n")
	if err := dest.Write(ctx, 1, data1); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if got := readFile(t, filepath.Join(repoDir, "rules.json")); got != string(data1) {
		t.Fatalf("file content mismatch: got %q", got)
	}

	// Same data is not committed again.
	if err := dest.Write(ctx, 1, data1); err != nil {
		t.Fatalf("second write: %v", err)
	}
	if n := commitCount(t, repoDir); n != 2 {
		t.Fatalf("expected 2 commits, got %d", n)
	}

	data2 := []byte(`{"version":"1.0","rules":{"version_id":2}}` + "\n")
	if err := dest.Write(ctx, 2, data2); err != nil {
		t.Fatalf("third write: %v", err)
	}
	if got := readFile(t, filepath.Join(repoDir, "rules.json")); got != string(data2) {
		t.Fatalf("file content mismatch after update: got %q", got)
	}

	out, err := exec.Command("git", "-C", repoDir, "log", "-1", "--format=%s").Output()
	if err != nil {
		t.Fatalf("git log: %v", err)
	}
	if msg := strings.TrimSpace(string(out)); msg != "sync: tag rules v2" {
		t.Fatalf("commit message = %q", msg)
	}
	body, err := exec.Command("git", "-C", repoDir, "log", "-1", "--format=%b").Output()
	if err != nil {
		t.Fatalf("git log: %v", err)
	}
	if !strings.Contains(string(body), "Tagrules-Version: 2") {
		t.Fatalf("commit body = %q, want version trailer", body)
	}
	if entries, _ := os.ReadDir(repoDir); len(entries) != 3 {
		// .git, .gitkeep and rules.json; no temp files left behind.
		t.Fatalf("repo entries = %v", entries)
	}
}

func TestGitDestination_ReportsGitOutput(t *testing.T) {
	repoDir := newClone(t)
	dest := NewGitDestination(repoDir, "rules.json", "no-such-branch")

	err := dest.Write(context.Background(), 1, []byte("{}\n"))
	if err == nil {
		t.Fatal("expected an error checking out a missing branch")
	}
	if !strings.Contains(err.Error(), "git checkout") || !strings.Contains(err.Error(), "no-such-branch") {
		t.Fatalf("error = %v, want git's message", err)
	}
}

func TestGitDestination_SubDirectory(t *testing.T) {
	repoDir := newClone(t)
	dest := NewGitDestination(repoDir, "backups/rules.json", "main")

	data := []byte(`{"rules":{}}` + "\n")
	if err := dest.Write(context.Background(), 1, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readFile(t, filepath.Join(repoDir, "backups", "rules.json")); got != string(data) {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func commitCount(t *testing.T, repoDir string) int {
	t.Helper()
	out, err := exec.Command("git", "-C", repoDir, "rev-list", "--count", "HEAD").Output()
	if err != nil {
		t.Fatalf("git rev-list: %v", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		t.Fatalf("parse commit count %q: %v", out, err)
	}
	return n
}

func run(t *testing.T, dir string, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("%s %v failed: %v", name, args, err)
	}
}

package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var builtBinaryPath string

type cmdResult struct {
	stdout string
	stderr string
	err    error
}

func (r cmdResult) combinedOutput() string {
	return r.stdout + r.stderr
}

func (r cmdResult) exitCode() int {
	var exitErr *exec.ExitError
	if errors.As(r.err, &exitErr) {
		return exitErr.ExitCode()
	}
	if r.err != nil {
		return -1
	}

	return 0
}

func resolveRepoRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve repo root")
	}

	root := filepath.Dir(filepath.Dir(filename))
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve repo root: %w", err)
	}

	return absRoot, nil
}

func TestMain(m *testing.M) {
	if runtime.GOOS == "windows" {
		// Scenarios drive the binary through /bin/sh.
		os.Exit(0)
	}

	repoRoot, err := resolveRepoRoot()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize e2e tests: %v\n", err)
		os.Exit(1)
	}

	binDir, err := os.MkdirTemp("", "dirlock-e2e-bin-*")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to create temp directory for binary: %v\n", err)
		os.Exit(1)
	}

	binPath := filepath.Join(binDir, "dirlock")

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/dirlock")
	cmd.Dir = repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to build dirlock: %v\n%s\n", err, string(output))
		_ = os.RemoveAll(binDir)
		os.Exit(1)
	}

	builtBinaryPath = binPath

	exitCode := m.Run()
	_ = os.RemoveAll(binDir)
	os.Exit(exitCode)
}

func binaryPath(t *testing.T) string {
	t.Helper()

	if builtBinaryPath == "" {
		t.Fatal("binary path not initialized")
	}

	return builtBinaryPath
}

func commandTimeout(t *testing.T) time.Duration {
	t.Helper()

	timeout := 30 * time.Second
	if deadline, ok := t.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Second
	}

	return timeout
}

func runBinary(t *testing.T, binPath string, args ...string) cmdResult {
	t.Helper()

	timeout := commandTimeout(t)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath, args...)
	// Keep a stray .dirlock.yaml in the package directory out of scenarios.
	cmd.Dir = t.TempDir()
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		if stderr.Len() > 0 && !strings.HasSuffix(stderr.String(), "\n") {
			stderr.WriteString("\n")
		}
		stderr.WriteString("command timed out after " + timeout.String())
	}

	return cmdResult{
		stdout: stdout.String(),
		stderr: stderr.String(),
		err:    err,
	}
}

func makeTargetDir(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "target")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("failed to resolve directory: %v", err)
	}

	return resolved
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}

	return string(content)
}

func assertExists(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected path to exist: %s (error: %v)", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); err == nil {
		t.Fatalf("expected file to be missing: %s", path)
	} else if !os.IsNotExist(err) {
		t.Fatalf("expected path to be missing: %s (unexpected error: %v)", path, err)
	}
}

func assertCommandSucceeded(t *testing.T, result cmdResult) {
	t.Helper()

	if result.err != nil {
		t.Fatalf("command failed: %v\nstdout:\n%s\nstderr:\n%s", result.err, result.stdout, result.stderr)
	}
}

func assertCommandFailed(t *testing.T, result cmdResult, keywords ...string) {
	t.Helper()

	if result.err == nil {
		t.Fatalf("expected command to fail\nstdout:\n%s\nstderr:\n%s", result.stdout, result.stderr)
	}

	combined := strings.ToLower(result.combinedOutput())
	for _, keyword := range keywords {
		if !strings.Contains(combined, strings.ToLower(keyword)) {
			t.Fatalf("expected output to contain %q\n%s", keyword, result.combinedOutput())
		}
	}
}

func TestEndToEndExec_RunsInsideLockedDirectory(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	root := makeTargetDir(t)

	result := runBinary(t, bin, "exec", root, "--", "/bin/sh", "-c", "pwd -P > where.txt")
	assertCommandSucceeded(t, result)

	if got := readFile(t, filepath.Join(root, "where.txt")); got != root+"\n" {
		t.Fatalf("command ran in %q, want %q", got, root)
	}
	if !strings.Contains(result.stdout, "Command: EXEC") || !strings.Contains(result.stdout, "Exit code:  0") {
		t.Fatalf("unexpected output:\n%s", result.combinedOutput())
	}
	assertExists(t, root+".lock")
}

func TestEndToEndExec_ConcurrentProcessesDoNotOverlap(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	root := makeTargetDir(t)

	const processes = 6
	script := `if [ -e busy ]; then echo overlap >> overlaps; fi
touch busy
n=$(cat counter 2>/dev/null || echo 0)
sleep 0.05
echo $((n + 1)) > counter
rm busy`

	var wg sync.WaitGroup
	results := make([]cmdResult, processes)
	for i := range processes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = runBinary(t, bin, "exec", "--quiet", root, "--", "/bin/sh", "-c", script)
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		assertCommandSucceeded(t, result)
	}

	assertMissing(t, filepath.Join(root, "overlaps"))
	counter, err := strconv.Atoi(strings.TrimSpace(readFile(t, filepath.Join(root, "counter"))))
	if err != nil {
		t.Fatalf("failed to parse counter: %v", err)
	}
	if counter != processes {
		t.Fatalf("counter = %d, want %d (lost updates mean batches overlapped)", counter, processes)
	}
}

func TestEndToEndExec_AliasesShareOneLock(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	root := makeTargetDir(t)
	alias := filepath.Join(t.TempDir(), "alias")
	if err := os.Symlink(root, alias); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	result := runBinary(t, bin, "path", alias)
	assertCommandSucceeded(t, result)

	if got := strings.TrimSpace(result.stdout); got != root+".lock" {
		t.Fatalf("lock path through symlink = %q, want %q", got, root+".lock")
	}
}

func TestEndToEndExec_PropagatesExitStatus(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	root := makeTargetDir(t)

	result := runBinary(t, bin, "exec", "--quiet", "--shell", root, "--", "exit 5")

	if code := result.exitCode(); code != 5 {
		t.Fatalf("exit code = %d, want 5\n%s", code, result.combinedOutput())
	}
}

func TestEndToEndStatus_ReportsHolder(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	root := makeTargetDir(t)
	startedMarker := filepath.Join(root, "started")
	releaseMarker := filepath.Join(t.TempDir(), "release")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout(t))
	defer cancel()

	holder := exec.CommandContext(ctx, bin, "exec", "--quiet", root, "--", "/bin/sh", "-c",
		fmt.Sprintf("touch started; while [ ! -e %q ]; do sleep 0.05; done", releaseMarker))
	var holderOutput bytes.Buffer
	holder.Stdout = &holderOutput
	holder.Stderr = &holderOutput
	if err := holder.Start(); err != nil {
		t.Fatalf("failed to start holder: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := os.Stat(startedMarker); err == nil {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			_ = holder.Wait()
			t.Fatalf("holder never started\n%s", holderOutput.String())
		}
		time.Sleep(20 * time.Millisecond)
	}

	held := runBinary(t, bin, "status", root)
	assertCommandSucceeded(t, held)
	if !strings.Contains(held.stdout, "State:      held") {
		t.Fatalf("expected held status while holder runs:\n%s", held.combinedOutput())
	}

	if err := os.WriteFile(releaseMarker, nil, 0o600); err != nil {
		t.Fatalf("failed to write release marker: %v", err)
	}
	if err := holder.Wait(); err != nil {
		t.Fatalf("holder failed: %v\n%s", err, holderOutput.String())
	}

	free := runBinary(t, bin, "status", root)
	assertCommandSucceeded(t, free)
	if !strings.Contains(free.stdout, "State:      free") {
		t.Fatalf("expected free status after holder exits:\n%s", free.combinedOutput())
	}
	assertExists(t, root+".lock")
}

func TestEndToEndInvalidTargetPaths(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(filePath, []byte("content"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	for _, args := range [][]string{
		{"exec", filePath, "--", "true"},
		{"exec", filepath.Join(tmpDir, "missing"), "--", "true"},
		{"status", filePath},
		{"path", filePath},
	} {
		result := runBinary(t, bin, args...)
		assertCommandFailed(t, result, "not a directory")
	}

	assertMissing(t, filePath+".lock")
	assertMissing(t, filepath.Join(tmpDir, "missing.lock"))
}

func TestEndToEndWorkDirEscapeBlocked(t *testing.T) {
	t.Parallel()

	bin := binaryPath(t)
	root := makeTargetDir(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	for _, workDir := range []string{"..", "link"} {
		result := runBinary(t, bin, "exec", "--workdir", workDir, root, "--", "/bin/sh", "-c", "touch escaped")
		assertCommandFailed(t, result, "escapes root directory")
	}

	assertMissing(t, filepath.Join(outside, "escaped"))
	assertMissing(t, filepath.Join(filepath.Dir(root), "escaped"))
}

package testing

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
)

// UpdateEnv names the environment variable that, when set to a true value,
// makes AssertSnapshot rewrite golden files instead of comparing them.
const UpdateEnv = "NSISGEN_UPDATE_SNAPSHOTS"

// SnapshotManager compares generated scripts against golden files stored as
// <dir>/<name>.snapshot.
type SnapshotManager struct {
	snapshotDir string
	updateMode  bool
	mu          sync.Mutex
	results     map[string]SnapshotResult
}

type SnapshotResult struct {
	Name    string
	Path    string
	Hash    string
	Passed  bool
	Updated bool
}

func NewSnapshotManager(snapshotDir string, updateMode bool) *SnapshotManager {
	return &SnapshotManager{
		snapshotDir: snapshotDir,
		updateMode:  updateMode,
		results:     make(map[string]SnapshotResult),
	}
}

// NewSnapshotManagerFromEnv enables update mode when UpdateEnv is set.
func NewSnapshotManagerFromEnv(snapshotDir string) *SnapshotManager {
	v := os.Getenv(UpdateEnv)
	return NewSnapshotManager(snapshotDir, v != "" && v != "0" && v != "false")
}

func (sm *SnapshotManager) AssertSnapshot(name, actual string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	path := filepath.Join(sm.snapshotDir, name+".snapshot")
	result := SnapshotResult{Name: name, Path: path, Hash: hash(actual)}

	expected, err := os.ReadFile(path)
	switch {
	case err == nil:
		result.Passed = string(expected) == actual
	case os.IsNotExist(err):
		if !sm.updateMode {
			return fmt.Errorf("snapshot does not exist: %s (set %s=1 to create it)", path, UpdateEnv)
		}
	default:
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if !result.Passed {
		if !sm.updateMode {
			sm.results[name] = result
			return fmt.Errorf("snapshot mismatch for %s:\n%s", name, diff(string(expected), actual))
		}
		if err := os.MkdirAll(sm.snapshotDir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
		result.Passed = true
		result.Updated = true
	}

	sm.results[name] = result
	return nil
}

func (sm *SnapshotManager) Results() map[string]SnapshotResult {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := make(map[string]SnapshotResult, len(sm.results))
	for k, v := range sm.results {
		out[k] = v
	}
	return out
}

func hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)[:16]
}

func diff(expected, actual string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		B:        difflib.SplitLines(actual),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return fmt.Sprintf("expected:\n%s\nactual:\n%s", expected, actual)
	}
	return text
}

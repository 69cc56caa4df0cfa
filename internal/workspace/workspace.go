// Package workspace owns the per-run scratch directory that every stage
// writes its intermediate files into.
package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ampliconflow/internal/logging"
	"ampliconflow/internal/services"
)

// DirPrefix prefixes every run workspace directory.
const DirPrefix = "run-"

// DefaultStaleAge is the age after which abandoned workspaces are removed.
const DefaultStaleAge = 72 * time.Hour

// Workspace is a scoped run directory.
type Workspace struct {
	root   string
	keep   bool
	logger *slog.Logger
}

// Acquire creates a fresh workspace under baseDir for runID.
func Acquire(baseDir, runID string, keep bool, logger *slog.Logger) (*Workspace, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "create base", "create work_dir", err)
	}
	root, err := os.MkdirTemp(baseDir, DirPrefix+runID+"-")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "create", "create run workspace", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Workspace{root: root, keep: keep, logger: logger}, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// Path joins name onto the workspace root.
func (w *Workspace) Path(name ...string) string {
	return filepath.Join(append([]string{w.root}, name...)...)
}

// Mkdir creates a subdirectory and returns its path.
func (w *Workspace) Mkdir(name string) (string, error) {
	dir := w.Path(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "workspace", "mkdir", "create "+name, err)
	}
	return dir, nil
}

// Release removes the workspace unless it was acquired with keep set.
func (w *Workspace) Release() error {
	if w == nil || w.root == "" {
		return nil
	}
	if w.keep {
		w.logger.Info("workspace retained",
			logging.String("path", w.root),
			logging.String(logging.FieldEventType, "workspace_retained"),
		)
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		logging.WarnWithContext(w.logger, "failed to remove workspace", "workspace_cleanup_failed",
			logging.String("path", w.root),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check work_dir permissions"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
		return err
	}
	return nil
}

// CleanStaleResult contains the outcome of a stale workspace cleanup.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes run workspaces under baseDir older than maxAge.
// Directories without the run prefix are never touched.
func CleanStale(ctx context.Context, baseDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	if logger == nil {
		logger = logging.NewNop()
	}

	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		return result
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: baseDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), DirPrefix) {
			continue
		}
		dirPath := filepath.Join(baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logger.Warn("failed to remove stale workspace",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale workspace",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "workspace_cleanup"),
		)
	}
	return result
}

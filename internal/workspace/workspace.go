package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// Workspace is one run's working directory.
type Workspace struct {
	root     string
	keep     bool
	borrowed bool
	logger   *slog.Logger
}

// Manager creates run workspaces under a base directory.
type Manager struct {
	baseDir string
	keep    bool
	logger  *slog.Logger
}

// NewManager creates a manager. An empty baseDir uses the system temp directory.
func NewManager(baseDir string, keep bool) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir, keep: keep, logger: slog.Default()}
}

// WithLogger sets the logger used for workspace lifecycle messages.
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	if l != nil {
		m.logger = l
	}
	return m
}

// Create makes a fresh workspace for runID.
func (m *Manager) Create(runID string) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace base directory: %w", err)
	}

	prefix := fmt.Sprintf("docgate-%s-%s-", time.Now().Format("20060102-150405"), shortID(runID))
	root, err := os.MkdirTemp(m.baseDir, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.logger.Debug("Created workspace", logfields.RunID(runID), logfields.Path(root))
	return &Workspace{root: root, keep: m.keep, logger: m.logger}, nil
}

// Borrow wraps an existing directory. Cleanup leaves it untouched.
func Borrow(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", abs)
	}
	return &Workspace{root: abs, borrowed: true, logger: slog.Default()}, nil
}

// Root is the workspace directory.
func (w *Workspace) Root() string { return w.root }

// SourceDir is where the repository working tree lives.
func (w *Workspace) SourceDir() string {
	if w.borrowed {
		return w.root
	}
	return filepath.Join(w.root, "src")
}

// Borrowed reports whether the workspace wraps a pre-existing directory.
func (w *Workspace) Borrowed() bool { return w.borrowed }

// Cleanup removes the workspace unless it is kept or borrowed.
func (w *Workspace) Cleanup() error {
	if w == nil || w.root == "" {
		return nil
	}
	if w.borrowed || w.keep {
		w.logger.Info("Keeping workspace", logfields.Path(w.root))
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	w.logger.Debug("Cleaned up workspace", logfields.Path(w.root))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "run"
	}
	return id
}

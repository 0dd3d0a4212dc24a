package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Manager hands out working directories under the campaign root. A
// directory is owned by at most one task: every side-effect file of a task
// lives in its directory, and two tasks sharing one would clean up each
// other's files.
type Manager struct {
	root string

	mu     sync.Mutex
	owners map[string]*Info // absolute path -> claim
}

// NewManager creates a workspace manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root %q: %w", root, err)
	}
	return &Manager{root: abs, owners: make(map[string]*Info)}, nil
}

// Root returns the absolute campaign root.
func (m *Manager) Root() string { return m.root }

// Create creates the folder of a project and claims it for task. subFolder
// overrides the folder name, which defaults to the project name. An existing
// folder is reused.
func (m *Manager) Create(task, project, subFolder string) (*Info, error) {
	name := subFolder
	if name == "" {
		name = project
	}
	if name == "" {
		return nil, fmt.Errorf("project or sub folder is required")
	}

	info, err := m.Claim(task, name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(info.Path, 0o755); err != nil {
		m.Release(task)
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}

	m.mu.Lock()
	info.Project = project
	m.mu.Unlock()
	return info, nil
}

// Claim gives task exclusive ownership of dir, relative to the root unless
// absolute. The directory must be inside the root. Claiming a directory the
// task already owns is a no-op.
func (m *Manager) Claim(task, dir string) (*Info, error) {
	if task == "" {
		return nil, fmt.Errorf("task name is required")
	}
	path, err := m.resolve(dir)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if claim, ok := m.owners[path]; ok {
		if claim.Owner != task {
			return nil, fmt.Errorf("%w: %s is used by task %q", ErrClaimed, path, claim.Owner)
		}
		return claim, nil
	}

	info := &Info{Path: path, Owner: task}
	m.owners[path] = info
	return info, nil
}

// Release drops every claim held by task.
func (m *Manager) Release(task string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, claim := range m.owners {
		if claim.Owner == task {
			delete(m.owners, path)
		}
	}
}

// Owner returns the task owning dir.
func (m *Manager) Owner(dir string) (string, bool) {
	path, err := m.resolve(dir)
	if err != nil {
		return "", false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	claim, ok := m.owners[path]
	if !ok {
		return "", false
	}
	return claim.Owner, true
}

// List returns every claim sorted by path.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.owners))
	for _, claim := range m.owners {
		out = append(out, *claim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (m *Manager) resolve(dir string) (string, error) {
	path := dir
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	return path, nil
}

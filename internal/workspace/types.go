package workspace

import "errors"

var (
	// ErrClaimed is returned when a directory is already owned by another task.
	ErrClaimed = errors.New("working directory already claimed")
	// ErrOutsideRoot is returned for a directory that escapes the campaign root.
	ErrOutsideRoot = errors.New("working directory outside the campaign root")
)

// Info holds information about a task working directory.
type Info struct {
	Path    string // absolute path of the directory
	Project string // project the directory was created for, empty for claimed paths
	Owner   string // task owning the directory
}

// ManagerConfig configures the workspace manager.
type ManagerConfig struct {
	Root string // campaign root, the current directory when empty
}

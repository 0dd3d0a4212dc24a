package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/simcampaign/internal/recovery"
	"github.com/aristath/simcampaign/internal/scheduler"
)

// Built-in compute step names.
const (
	FuncArchiveLog   = "archive-log"
	FuncCleanProject = "clean-project"
	FuncNoop         = "noop"
)

// Registry maps the func names used in campaign files to compute functions.
type Registry struct {
	funcs map[string]scheduler.ComputeFunc
}

// NewRegistry returns a registry holding the built-in compute steps.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]scheduler.ComputeFunc)}
	r.funcs[FuncArchiveLog] = archiveLog
	r.funcs[FuncCleanProject] = cleanProject
	r.funcs[FuncNoop] = func(context.Context, scheduler.ComputeCall) error { return nil }
	return r
}

// Register adds a compute function. Names are unique.
func (r *Registry) Register(name string, fn scheduler.ComputeFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("compute function needs a name and a body")
	}
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("compute function %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (scheduler.ComputeFunc, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// archiveLog moves args.file into args.sub_folder ("logs" by default).
func archiveLog(_ context.Context, call scheduler.ComputeCall) error {
	file, err := stringArg(call.Args, "file", "")
	if err != nil {
		return err
	}
	if file == "" {
		return fmt.Errorf("archive-log needs a file argument")
	}
	sub, err := stringArg(call.Args, "sub_folder", "logs")
	if err != nil {
		return err
	}

	if err := recovery.ArchiveLog(call.WorkDir, file, sub); err != nil {
		return err
	}
	call.Sink.Update(fmt.Sprintf("%s moved to %s", file, sub))
	return nil
}

// cleanProject runs the full cleanup of the task project. args.project_file
// and args.results also remove the project file and its results bundle.
func cleanProject(_ context.Context, call scheduler.ComputeCall) error {
	projectFile, err := boolArg(call.Args, "project_file")
	if err != nil {
		return err
	}
	results, err := boolArg(call.Args, "results")
	if err != nil {
		return err
	}

	opts := recovery.CleanOptions{Extension: call.Extension, ProjectFile: projectFile, Results: results}
	return recovery.CleanProject(call.WorkDir, call.Project, opts, call.Sink)
}

func stringArg(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func boolArg(args map[string]any, key string) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q must be a boolean, got %T", key, v)
	}
	return b, nil
}

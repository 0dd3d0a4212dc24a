package scheduler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

// ErrDuplicateTask is returned when two tasks of a campaign share a name.
var ErrDuplicateTask = errors.New("duplicate task")

// Campaign is the set of tasks polled by a Driver. Tasks may depend on each
// other; a task is only polled once all its dependencies are done, and is
// skipped when one of them failed or was skipped.
type Campaign struct {
	tasks      map[string]*Task
	order      []string            // insertion order
	dependents map[string][]string // task -> tasks depending on it
}

// NewCampaign creates an empty campaign.
func NewCampaign() *Campaign {
	return &Campaign{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
	}
}

// Add registers a task.
func (c *Campaign) Add(t *Task) error {
	name := t.Name()
	if _, exists := c.tasks[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}

	c.tasks[name] = t
	c.order = append(c.order, name)
	for _, dep := range t.cfg.DependsOn {
		c.dependents[dep] = append(c.dependents[dep], name)
	}
	return nil
}

// Task returns a task by name.
func (c *Campaign) Task(name string) (*Task, bool) {
	t, ok := c.tasks[name]
	return t, ok
}

// Len returns the number of tasks.
func (c *Campaign) Len() int { return len(c.tasks) }

// Validate checks that every dependency exists and that there is no cycle.
// It returns the task names in a valid polling order.
func (c *Campaign) Validate() ([]string, error) {
	for _, name := range c.order {
		for _, dep := range c.tasks[name].cfg.DependsOn {
			if _, exists := c.tasks[dep]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", name, dep)
			}
		}
	}

	edges := make([]toposort.Edge, 0, len(c.order))
	for _, name := range c.order {
		deps := c.tasks[name].cfg.DependsOn
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for _, dep := range deps {
			edges = append(edges, toposort.Edge{dep, name})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("campaign contains a dependency cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(c.tasks) {
		seen := make(map[string]bool, len(order))
		for _, name := range order {
			seen[name] = true
		}
		var missing []string
		for _, name := range c.order {
			if !seen[name] {
				missing = append(missing, name)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// ready reports whether every dependency of t is done.
func (c *Campaign) ready(t *Task) bool {
	for _, dep := range t.cfg.DependsOn {
		if !c.tasks[dep].Done() {
			return false
		}
	}
	return true
}

// blocked reports whether a dependency of t can never be done.
func (c *Campaign) blocked(t *Task) bool {
	for _, dep := range t.cfg.DependsOn {
		d := c.tasks[dep]
		if d.Failed() || d.Skipped() {
			return true
		}
	}
	return false
}

// skipDependents skips every unfinished task that transitively depends on
// name and returns the skipped tasks.
func (c *Campaign) skipDependents(name string) []*Task {
	var skipped []*Task
	queue := append([]string(nil), c.dependents[name]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		t := c.tasks[next]
		if t.Finished() {
			continue
		}
		t.skip()
		skipped = append(skipped, t)
		queue = append(queue, c.dependents[next]...)
	}
	return skipped
}

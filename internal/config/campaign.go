package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Step kinds of a campaign file.
const (
	KindScript   = "script"
	KindAnalysis = "analysis"
	KindCompute  = "compute"
)

// Campaign is a campaign definition file.
type Campaign struct {
	Name  string     `yaml:"name"`
	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec describes one task: the steps run against one project.
type TaskSpec struct {
	Name      string     `yaml:"name,omitempty"` // defaults to the project
	Project   string     `yaml:"project"`
	SubFolder string     `yaml:"sub_folder,omitempty"`
	DependsOn []string   `yaml:"depends_on,omitempty"`
	Steps     []StepSpec `yaml:"steps"`
}

// StepSpec describes one step.
type StepSpec struct {
	Name     string         `yaml:"name"`
	Display  string         `yaml:"display,omitempty"`
	Kind     string         `yaml:"kind"`
	Script   string         `yaml:"script,omitempty"`
	BashFile string         `yaml:"bash_file,omitempty"`
	LogFile  string         `yaml:"log_file,omitempty"`
	Design   string         `yaml:"design,omitempty"`
	Setup    string         `yaml:"setup,omitempty"`
	Profile  string         `yaml:"profile,omitempty"`
	Func     string         `yaml:"func,omitempty"`
	Args     map[string]any `yaml:"args,omitempty"`
}

// TaskName returns the campaign identity of the task.
func (t TaskSpec) TaskName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Project
}

// LoadCampaign reads and validates a campaign file. The campaign name
// defaults to the file name without extension.
func LoadCampaign(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading campaign: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseCampaign(data, name)
}

// ParseCampaign decodes and validates a campaign definition.
func ParseCampaign(data []byte, defaultName string) (*Campaign, error) {
	var c Campaign
	if err := decodeStrict(data, &c); err != nil {
		return nil, fmt.Errorf("%w: parsing campaign: %w", ErrNotValid, err)
	}
	if c.Name == "" {
		c.Name = defaultName
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotValid, err)
	}
	return &c, nil
}

func (c *Campaign) validate() error {
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("campaign %q has no tasks", c.Name)
	}

	var errs []error
	seen := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		if t.Project == "" {
			errs = append(errs, fmt.Errorf("tasks[%d]: project is required", i))
			continue
		}
		name := t.TaskName()
		if seen[name] {
			errs = append(errs, fmt.Errorf("tasks[%d]: duplicate task %q", i, name))
		}
		seen[name] = true

		steps := make(map[string]bool, len(t.Steps))
		for j, s := range t.Steps {
			if err := s.validate(); err != nil {
				errs = append(errs, fmt.Errorf("task %q steps[%d]: %w", name, j, err))
				continue
			}
			if steps[s.Name] {
				errs = append(errs, fmt.Errorf("task %q: duplicate step %q", name, s.Name))
			}
			steps[s.Name] = true
		}
	}
	return errors.Join(errs...)
}

func (s StepSpec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Kind {
	case KindScript:
		if s.Script == "" {
			return fmt.Errorf("script step %q needs a script", s.Name)
		}
	case KindAnalysis:
		if s.Design == "" || s.Setup == "" {
			return fmt.Errorf("analysis step %q needs a design and a setup", s.Name)
		}
	case KindCompute:
		if s.Func == "" {
			return fmt.Errorf("compute step %q needs a func", s.Name)
		}
	default:
		return fmt.Errorf("step %q has unknown kind %q", s.Name, s.Kind)
	}
	return nil
}

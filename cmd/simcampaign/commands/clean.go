package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/simcampaign/internal/recovery"
	"github.com/aristath/simcampaign/internal/status"
)

// CleanCommand removes the stale companion files of a project.
type CleanCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	project     string
	folder      string
	projectFile bool
	results     bool
}

// NewCleanCommand returns the clean command.
func NewCleanCommand(rootCmd *RootCommand, app *kingpin.Application) *CleanCommand {
	c := &CleanCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("clean", "Remove lock, temp and completion files of a project.")
	c.Cmd.Arg("project", "Project name, without extension.").Required().StringVar(&c.project)
	c.Cmd.Flag("folder", "Folder of the project, relative to --dir.").Default(".").StringVar(&c.folder)
	c.Cmd.Flag("project-file", "Also remove the project file.").BoolVar(&c.projectFile)
	c.Cmd.Flag("results", "Also remove the results bundle.").BoolVar(&c.results)

	return c
}

func (c CleanCommand) Name() string { return c.Cmd.FullCommand() }

func (c CleanCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}

	sink := status.Func(func(msg string) { fmt.Fprintln(c.rootCmd.Stdout, msg) })
	err = recovery.CleanProject(c.rootCmd.resolve(c.folder), c.project, recovery.CleanOptions{
		Extension:   cfg.Backend.ProjectExtension,
		ProjectFile: c.projectFile,
		Results:     c.results,
	}, sink)
	if err != nil {
		return fmt.Errorf("could not clean %s: %w", c.project, err)
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/simcampaign/internal/backend"
)

// JobIDCommand extracts the job identifier from a scheduler acknowledgement
// read on stdin.
type JobIDCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	marker string
}

// NewJobIDCommand returns the jobid command.
func NewJobIDCommand(rootCmd *RootCommand, app *kingpin.Application) *JobIDCommand {
	c := &JobIDCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("jobid", "Extract the job id from scheduler output on stdin.")
	c.Cmd.Flag("marker", "Word preceding the job id, the configured one when empty.").StringVar(&c.marker)

	return c
}

func (c JobIDCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobIDCommand) Run(ctx context.Context) error {
	marker := c.marker
	if marker == "" {
		cfg, err := c.rootCmd.LoadConfig()
		if err != nil {
			return err
		}
		marker = cfg.Backend.JobMarker
	}

	data, err := io.ReadAll(c.rootCmd.Stdin)
	if err != nil {
		return fmt.Errorf("could not read stdin: %w", err)
	}

	id, found := backend.ParseJobID(string(data), marker)
	if !found {
		return fmt.Errorf("%s", id)
	}
	fmt.Fprintln(c.rootCmd.Stdout, id)
	return nil
}

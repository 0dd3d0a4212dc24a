package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/simcampaign/internal/persistence"
)

// RunsCommand lists the journaled runs.
type RunsCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewRunsCommand returns the runs command.
func NewRunsCommand(rootCmd *RootCommand, app *kingpin.Application) *RunsCommand {
	c := &RunsCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("runs", "List journaled runs, most recent first.")
	return c
}

func (c RunsCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunsCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}
	store, err := c.rootCmd.OpenJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("could not list runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(c.rootCmd.Stdout, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tCAMPAIGN\tMODE\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Campaign, r.Mode, r.Status, r.StartedAt.Local().Format(time.DateTime), runDuration(r))
	}
	return nil
}

func runDuration(r persistence.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

// HistoryCommand prints the journal of one run.
type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	runID string
	task  string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}
	c.Cmd = app.Command("history", "Print the dispatches and outcomes of a run.")
	c.Cmd.Arg("run", "Run id, the most recent run when empty.").StringVar(&c.runID)
	c.Cmd.Flag("task", "Only this task.").StringVar(&c.task)
	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}
	store, err := c.rootCmd.OpenJournal(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := c.runID
	if runID == "" {
		runs, err := store.ListRuns(ctx)
		if err != nil {
			return fmt.Errorf("could not list runs: %w", err)
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs in the journal")
		}
		runID = runs[0].ID
	}

	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	records, err := store.History(ctx, runID, c.task)
	if err != nil {
		return fmt.Errorf("could not read history: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "run %s (%s, %s) %s\n", run.ID, run.Campaign, run.Mode, run.Status)
	if run.Err != "" {
		fmt.Fprintf(c.rootCmd.Stdout, "error: %s\n", run.Err)
	}
	for _, line := range persistence.Summary(records) {
		fmt.Fprintln(c.rootCmd.Stdout, line)
	}
	return nil
}

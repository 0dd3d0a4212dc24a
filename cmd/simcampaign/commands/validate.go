package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/config"
	"github.com/aristath/simcampaign/internal/orchestrator"
)

// ValidateCommand checks the configuration and a campaign file without
// dispatching anything.
type ValidateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	campaignPath string
}

// NewValidateCommand returns the validate command.
func NewValidateCommand(rootCmd *RootCommand, app *kingpin.Application) *ValidateCommand {
	c := &ValidateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("validate", "Check the configuration and a campaign file.")
	c.Cmd.Arg("campaign", "Campaign definition file.").Required().StringVar(&c.campaignPath)

	return c
}

func (c ValidateCommand) Name() string { return c.Cmd.FullCommand() }

func (c ValidateCommand) Run(ctx context.Context) error {
	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}
	camp, err := config.LoadCampaign(c.rootCmd.resolve(c.campaignPath))
	if err != nil {
		return fmt.Errorf("could not load campaign: %w", err)
	}

	// The runner creates task folders and status files; build it in a
	// scratch directory so nothing in the campaign directory changes.
	scratch, err := os.MkdirTemp("", "simcampaign-validate-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	runner, err := orchestrator.NewRunner(orchestrator.RunnerConfig{
		Config:         cfg,
		Campaign:       camp,
		Root:           scratch,
		ProcessManager: backend.NewProcessManager(),
		Logger:         c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("campaign %q is not valid: %w", camp.Name, err)
	}
	order, err := runner.Campaign().Validate()
	if err != nil {
		return err
	}

	fmt.Fprintf(c.rootCmd.Stdout, "campaign %s: %d task(s), %s mode\n", camp.Name, len(order), cfg.Backend.Mode)
	for i, name := range order {
		task, _ := runner.Campaign().Task(name)
		fmt.Fprintf(c.rootCmd.Stdout, "%d. %s (%d step(s))\n", i+1, name, len(task.Steps()))
	}
	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/config"
	"github.com/aristath/simcampaign/internal/events"
	"github.com/aristath/simcampaign/internal/log"
	"github.com/aristath/simcampaign/internal/orchestrator"
	"github.com/aristath/simcampaign/internal/persistence"
	"github.com/aristath/simcampaign/internal/tui"
)

// RunCommand polls a campaign until every task is finished.
type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	campaignPath string
	mode         string
	dashboard    bool
	noJournal    bool
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a campaign.")
	c.Cmd.Arg("campaign", "Campaign definition file.").Required().StringVar(&c.campaignPath)
	c.Cmd.Flag("mode", "Overrides the configured dispatch mode.").EnumVar(&c.mode, backend.ModeLocal, backend.ModeCluster)
	c.Cmd.Flag("dashboard", "Show the terminal dashboard.").BoolVar(&c.dashboard)
	c.Cmd.Flag("no-journal", "Do not record the run in the journal.").BoolVar(&c.noJournal)

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger
	if c.dashboard && !c.rootCmd.Debug {
		// Log lines would tear the dashboard apart.
		logger = log.Noop
	}

	cfg, err := c.rootCmd.LoadConfig()
	if err != nil {
		return err
	}
	if c.mode != "" {
		cfg.Backend.Mode = c.mode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	camp, err := config.LoadCampaign(c.rootCmd.resolve(c.campaignPath))
	if err != nil {
		return fmt.Errorf("could not load campaign: %w", err)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	// Subscriptions are taken before anything can publish.
	var journalCh <-chan events.Event
	var store *persistence.SQLiteStore
	var run persistence.Run
	if !c.noJournal && cfg.JournalPath != "" {
		store, err = c.rootCmd.OpenJournal(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err = store.StartRun(ctx, camp.Name, cfg.Backend.Mode)
		if err != nil {
			return fmt.Errorf("could not start run: %w", err)
		}
		journalCh = bus.SubscribeAll(1024)
		logger = logger.WithValues(log.Kv{"run": run.ID})
		logger.Infof("journal run %s", run.ID)
	}

	pm := backend.NewProcessManager()
	runner, err := orchestrator.NewRunner(orchestrator.RunnerConfig{
		Config:         cfg,
		Campaign:       camp,
		Root:           c.rootCmd.Dir,
		ProcessManager: pm,
		Publisher:      bus,
		Logger:         logger,
		MirrorStatus:   !c.dashboard,
	})
	if err != nil {
		if store != nil {
			if ferr := store.FinishRun(context.WithoutCancel(ctx), run.ID, err); ferr != nil {
				logger.Warningf("could not finish journal run: %v", ferr)
			}
		}
		return fmt.Errorf("could not build campaign: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	if c.dashboard {
		names := make([]string, 0, len(camp.Tasks))
		for _, t := range camp.Tasks {
			names = append(names, t.TaskName())
		}
		model := tui.New(bus, tui.Options{
			Campaign:          camp.Name,
			Tasks:             names,
			Config:            cfg,
			GlobalConfigPath:  c.rootCmd.GlobalConfigPath,
			ProjectConfigPath: c.rootCmd.projectConfig(),
		})
		program := tea.NewProgram(model,
			tea.WithAltScreen(),
			tea.WithContext(gctx),
			tea.WithInput(c.rootCmd.Stdin),
			tea.WithOutput(c.rootCmd.Stdout),
		)

		g.Go(func() error {
			// Leaving the dashboard interrupts the campaign.
			defer cancelRun()
			_, err := program.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("dashboard: %w", err)
			}
			return nil
		})
	}

	// Dashboard and journal subscribed above, the driver may publish now.
	g.Go(func() error {
		defer bus.Close()
		return runner.Run(gctx)
	})

	if journalCh != nil {
		// The journal drains until the bus is closed so the last events of an
		// interrupted run are kept.
		g.Go(func() error {
			return persistence.Consume(context.WithoutCancel(gctx), store, run.ID, journalCh, logger)
		})
	}

	runErr := g.Wait()

	if store != nil {
		if err := store.FinishRun(context.WithoutCancel(ctx), run.ID, runErr); err != nil {
			logger.Errorf("could not finish journal run: %v", err)
		}
	}

	c.printReports(runner)
	if runErr != nil {
		pm.KillAll()
		return runErr
	}
	return nil
}

func (c RunCommand) printReports(runner *orchestrator.Runner) {
	campaign := runner.Campaign()
	order, err := campaign.Validate()
	if err != nil {
		return
	}
	for _, name := range order {
		task, _ := campaign.Task(name)
		state := "pending"
		switch {
		case task.Done():
			state = "done"
		case task.Failed():
			state = "failed"
		case task.Skipped():
			state = "skipped"
		}
		fmt.Fprintf(c.rootCmd.Stdout, "%-8s %s\n", state, task.Report())
	}
}

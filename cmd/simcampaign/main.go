package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sirupsen/logrus"

	"github.com/aristath/simcampaign/cmd/simcampaign/commands"
	"github.com/aristath/simcampaign/internal/log"
	loglogrus "github.com/aristath/simcampaign/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	app := kingpin.New("simcampaign", "Simulation campaign step poller.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	runCmd := commands.NewRunCommand(rootCmd, app)
	validateCmd := commands.NewValidateCommand(rootCmd, app)
	cleanCmd := commands.NewCleanCommand(rootCmd, app)
	jobIDCmd := commands.NewJobIDCommand(rootCmd, app)
	runsCmd := commands.NewRunsCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		runCmd.Name():      runCmd,
		validateCmd.Name(): validateCmd,
		cleanCmd.Name():    cleanCmd,
		jobIDCmd.Name():    jobIDCmd,
		runsCmd.Name():     runsCmd,
		historyCmd.Name():  historyCmd,
	}

	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands printing to stdout stay quiet unless debugging.
	quiet := map[string]bool{
		"jobid":   true,
		"runs":    true,
		"history": true,
	}
	if quiet[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	rootCmd.Logger = getLogger(*rootCmd)

	// A second signal falls back to the default handler and kills the process.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := cmds[cmdName].Run(ctx); err != nil {
		return fmt.Errorf("%q command failed: %w", cmdName, err)
	}
	return nil
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // stdout is kept for command output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})
	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	if err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

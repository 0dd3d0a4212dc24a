package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/aristath/simcampaign/internal/config"
	"github.com/aristath/simcampaign/internal/log"
	"github.com/aristath/simcampaign/internal/persistence"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug             bool
	NoLog             bool
	NoColor           bool
	LoggerType        string
	Dir               string
	GlobalConfigPath  string
	ProjectConfigPath string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("dir", "Campaign directory, task folders and the journal live below it.").Short('C').Default(".").StringVar(&c.Dir)

	// A failing home lookup only loses the global file.
	globalPath, projectPath, _ := config.DefaultPaths()
	app.Flag("global-config", "Global configuration file.").Envar("SIMCAMPAIGN_GLOBAL_CONFIG").Default(globalPath).StringVar(&c.GlobalConfigPath)
	app.Flag("config", "Project configuration file, relative paths are resolved from --dir.").Envar("SIMCAMPAIGN_CONFIG").Default(projectPath).StringVar(&c.ProjectConfigPath)

	return c
}

// projectConfig returns the project configuration path resolved from Dir.
func (c RootCommand) projectConfig() string {
	return c.resolve(c.ProjectConfigPath)
}

func (c RootCommand) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir, path)
}

// LoadConfig loads defaults, global and project configuration.
func (c RootCommand) LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.GlobalConfigPath, c.projectConfig())
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}
	return cfg, nil
}

// OpenJournal opens the run journal configured in cfg.
func (c RootCommand) OpenJournal(ctx context.Context, cfg *config.Config) (*persistence.SQLiteStore, error) {
	if cfg.JournalPath == "" {
		return nil, fmt.Errorf("journal is disabled (journal_path is empty)")
	}
	store, err := persistence.NewSQLiteStore(ctx, c.resolve(cfg.JournalPath))
	if err != nil {
		return nil, fmt.Errorf("could not open journal: %w", err)
	}
	return store, nil
}

// Package detector decides from filesystem side effects whether a dispatched
// job has finished. It never waits: every probe inspects the working directory
// once and returns.
package detector

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Outcome is the result of one probe.
type Outcome int

const (
	// NotStarted means the expected evidence is not there yet.
	NotStarted Outcome = iota
	// LockError means the application refused to open the project because
	// another instance holds it. The job has to be dispatched again.
	LockError
	// Completed means the job finished and its evidence is complete.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case NotStarted:
		return "notStarted"
	case LockError:
		return "lockError"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

const (
	// DefaultLockSyndrome is written to the log when the project is locked.
	DefaultLockSyndrome = "may be opened in another instance of the application."
	// DefaultReportPrefix prefixes the report file the scheduler deposits per job.
	DefaultReportPrefix = "lsf.o"
	// LogExtension is appended to a script's base name to get its log name.
	LogExtension = ".log"
)

// Config is the configuration of a Detector.
type Config struct {
	ReportPrefix string
	LockSyndrome string
}

func (c *Config) defaults() {
	if c.ReportPrefix == "" {
		c.ReportPrefix = DefaultReportPrefix
	}
	if c.LockSyndrome == "" {
		c.LockSyndrome = DefaultLockSyndrome
	}
}

// Target describes what a probe looks for.
type Target struct {
	LogFileName string
	JobID       string
	// Tracked requires the scheduler report for JobID in addition to the log.
	// When the scheduler gave no job id it is false and completion rests on
	// the log alone, relaxing the rule that a cluster job needs its report.
	Tracked bool
}

// Detector probes working directories.
type Detector struct {
	cfg Config
}

// New returns a Detector.
func New(cfg Config) *Detector {
	cfg.defaults()
	return &Detector{cfg: cfg}
}

// ReportName returns the name of the scheduler report for jobID.
func (d *Detector) ReportName(jobID string) string {
	return d.cfg.ReportPrefix + jobID
}

// Probe inspects workDir once. The lock syndrome takes precedence over the
// report file: a locked run is never considered complete. A log that cannot be
// read for reasons other than its absence is reported as an error together
// with NotStarted.
func (d *Detector) Probe(t Target, workDir string) (Outcome, error) {
	data, err := os.ReadFile(filepath.Join(workDir, t.LogFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NotStarted, nil
		}
		return NotStarted, fmt.Errorf("could not read log %s: %w", t.LogFileName, err)
	}

	if bytes.Contains(data, []byte(d.cfg.LockSyndrome)) {
		return LockError, nil
	}

	if t.Tracked {
		ok, err := exists(filepath.Join(workDir, d.ReportName(t.JobID)))
		if err != nil || !ok {
			return NotStarted, err
		}
	}

	return Completed, nil
}

// LogName returns the log written by the application for a script:
// the script's base name with LogExtension.
func LogName(script string) string {
	base := filepath.Base(script)
	return strings.TrimSuffix(base, filepath.Ext(base)) + LogExtension
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

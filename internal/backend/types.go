package backend

import (
	"fmt"
	"strings"

	"github.com/aristath/simcampaign/internal/log"
)

// Execution modes accepted by New.
const (
	ModeLocal   = "local"
	ModeCluster = "cluster"
)

// LocalJobID is the identifier returned for synchronous local runs, which need no tracking.
const LocalJobID = "0"

// JobKind is what a job asks the external application to do.
type JobKind int

const (
	JobScript   JobKind = iota // run a control script against the project
	JobAnalysis                // solve one design/setup of the project
)

func (k JobKind) String() string {
	switch k {
	case JobScript:
		return "script"
	case JobAnalysis:
		return "analysis"
	default:
		return fmt.Sprintf("JobKind(%d)", int(k))
	}
}

// Job is one unit of work handed to a backend. Exactly one payload must be set:
// ScriptPath, or the DesignName/SetupName pair.
type Job struct {
	Name          string // step identity, used for default file names
	WorkDir       string // every file below is relative to it
	ProjectFile   string // e.g. "O2_qb_gap_20.aedt"
	ScriptPath    string
	DesignName    string
	SetupName     string
	LogFileName   string // log the application writes for analysis jobs
	BatchFileName string // submission script written by the cluster backend
	Resources     Resources
}

// Kind validates the payload and returns the job kind.
func (j Job) Kind() (JobKind, error) {
	hasScript := j.ScriptPath != ""
	hasDesign := j.DesignName != "" || j.SetupName != ""

	switch {
	case hasScript && hasDesign:
		return 0, ErrConflictingPayload
	case hasScript:
		return JobScript, nil
	case j.DesignName != "" && j.SetupName != "":
		return JobAnalysis, nil
	default:
		return 0, ErrMissingPayload
	}
}

// Target returns the "design:setup" identifier of an analysis job.
func (j Job) Target() string {
	return j.DesignName + ":" + j.SetupName
}

func (j Job) logFileName() string {
	if j.LogFileName != "" {
		return j.LogFileName
	}
	return "job.log"
}

func (j Job) batchFileName() string {
	if j.BatchFileName != "" {
		return j.BatchFileName
	}
	if j.Name != "" {
		return strings.ReplaceAll(j.Name, " ", "_") + ".sh"
	}
	return "temporary_bash_file.sh"
}

// Result is the acknowledgement of a dispatched job.
type Result struct {
	// JobID is LocalJobID for local runs, the scheduler identifier for cluster runs,
	// or a diagnostic string embedding the raw output when no identifier was found.
	JobID string
	// Tracked is true when completion is confirmed through a scheduler report file.
	// It is false for local runs and for submissions whose acknowledgement carried
	// no job identifier.
	Tracked bool
	// Output is the raw standard output of the submission.
	Output string
}

// Config defines the configuration for a backend.
type Config struct {
	Type string // ModeLocal or ModeCluster

	// Local execution.
	Executable string   // path to the desktop application, required in local mode
	LocalFlags []string // flags placed before every local invocation

	// Cluster execution.
	ModulePreamble    string // environment line written first in submission scripts
	SubmitCommand     string // scheduler submission CLI, e.g. "bsub"
	ClusterExecutable string // application name on the cluster nodes
	JobMarker         string // word preceding the job identifier in the submission output
	BatchConfigName   string // multi-core configuration file name
	Breaker           BreakerConfig

	Logger log.Logger
}

func (c *Config) defaults() {
	if len(c.LocalFlags) == 0 {
		c.LocalFlags = []string{"-features=beta", "-ng"}
	}
	if c.ModulePreamble == "" {
		c.ModulePreamble = "module load ansys_em/19.5"
	}
	if c.SubmitCommand == "" {
		c.SubmitCommand = "bsub"
	}
	if c.ClusterExecutable == "" {
		c.ClusterExecutable = "ansysedt"
	}
	if c.JobMarker == "" {
		c.JobMarker = "Job"
	}
	if c.BatchConfigName == "" {
		c.BatchConfigName = "batch.cfg"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
}

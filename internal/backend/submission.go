package backend

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Submission is the decoded form of a cluster submission script.
type Submission struct {
	Preamble      string
	SubmitCommand string
	Cores         int
	WallTime      time.Duration
	MemoryMB      int
	ScratchMB     int
	Command       string // execution command following the resource flags
}

// batchConfig is the multi-core configuration referenced by distributed solves.
const batchConfig = "$begin 'Config'\n" +
	"'HFSS/NumCoresPerDistributedTask'=1\n" +
	"'HFSS/HPCLicenseType'='pool'\n" +
	"$end 'Config'\n"

// needsBatchConfig reports whether a job is a distributed solve over several cores.
func needsBatchConfig(kind JobKind, res Resources) bool {
	return kind == JobAnalysis && res.Cores() > 1
}

// renderSubmission builds the submission script for job. The job must have been
// validated; kind is the result of job.Kind().
func renderSubmission(cfg Config, job Job, kind JobKind) string {
	res := job.Resources

	var sb strings.Builder
	sb.WriteString(cfg.ModulePreamble)
	sb.WriteString("\n")

	sb.WriteString(cfg.SubmitCommand)
	fmt.Fprintf(&sb, " -n %d -W %s ", res.Cores(), FormatWallTime(res.WallTime()))
	if mem, ok := res.Memory(); ok {
		fmt.Fprintf(&sb, "-R \"rusage[mem=%d]\" ", mem)
	}
	if scratch, ok := res.Scratch(); ok {
		fmt.Fprintf(&sb, "-R \"rusage[scratch=%d]\" ", scratch)
	}

	switch kind {
	case JobScript:
		fmt.Fprintf(&sb, "%s -features=beta -ng -runscriptandexit %s %s\n",
			cfg.ClusterExecutable, job.ScriptPath, job.ProjectFile)
	case JobAnalysis:
		fmt.Fprintf(&sb, "'%s -monitor -distributed -ng -logfile %s ", cfg.ClusterExecutable, job.logFileName())
		if needsBatchConfig(kind, res) {
			fmt.Fprintf(&sb, "-batchoptions %s -machinelist numcores=%d -auto NumDistributedVariations=%d ",
				cfg.BatchConfigName, res.Cores(), res.Cores())
		}
		fmt.Fprintf(&sb, "-batchsolve \"%s\" %s'\n", job.Target(), job.ProjectFile)
	}

	return sb.String()
}

// ParseSubmission decodes a submission script produced by the cluster backend.
// The first line is the environment preamble; the second is the submission
// command whose first word is the scheduler CLI.
func ParseSubmission(script string) (Submission, error) {
	lines := strings.Split(strings.TrimRight(script, "\n"), "\n")
	if len(lines) < 2 {
		return Submission{}, fmt.Errorf("submission script has %d line(s), want 2", len(lines))
	}

	tokens, err := splitWords(lines[1])
	if err != nil {
		return Submission{}, fmt.Errorf("could not split submission line: %w", err)
	}
	if len(tokens) == 0 {
		return Submission{}, fmt.Errorf("empty submission line")
	}

	sub := Submission{Preamble: lines[0], SubmitCommand: tokens[0]}

	i := 1
	for ; i < len(tokens); i++ {
		flag := tokens[i]
		if !strings.HasPrefix(flag, "-") {
			break
		}
		if i+1 >= len(tokens) {
			return Submission{}, fmt.Errorf("flag %s has no value", flag)
		}
		value := tokens[i+1]
		i++

		switch flag {
		case "-n":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Submission{}, fmt.Errorf("invalid core count %q: %w", value, err)
			}
			sub.Cores = n
		case "-W":
			d, err := ParseWallTime(value)
			if err != nil {
				return Submission{}, err
			}
			sub.WallTime = d
		case "-R":
			if err := parseUsage(value, &sub); err != nil {
				return Submission{}, err
			}
		default:
			return Submission{}, fmt.Errorf("unknown submission flag %s", flag)
		}
	}

	sub.Command = strings.Join(tokens[i:], " ")
	return sub, nil
}

// Resources rebuilds the resource request encoded in the submission.
func (s Submission) Resources() (Resources, error) {
	return NewResources(s.Cores, s.WallTime, WithMemory(s.MemoryMB), WithScratch(s.ScratchMB))
}

func parseUsage(value string, sub *Submission) error {
	inner, ok := strings.CutPrefix(value, "rusage[")
	if !ok || !strings.HasSuffix(inner, "]") {
		return fmt.Errorf("unsupported resource string %q", value)
	}
	key, amount, ok := strings.Cut(strings.TrimSuffix(inner, "]"), "=")
	if !ok {
		return fmt.Errorf("unsupported resource string %q", value)
	}
	n, err := strconv.Atoi(amount)
	if err != nil {
		return fmt.Errorf("invalid %s amount %q: %w", key, amount, err)
	}

	switch key {
	case "mem":
		sub.MemoryMB = n
	case "scratch":
		sub.ScratchMB = n
	default:
		return fmt.Errorf("unsupported resource %q", key)
	}
	return nil
}

// splitWords splits a shell command line on blanks, honouring single and double
// quotes. Escapes and expansions are not interpreted.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		quote   rune
		inWord  bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}

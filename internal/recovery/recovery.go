// Package recovery implements the actions run after a probe: reporting
// problems found in logs and removing the artifacts a run leaves behind.
// Every action is idempotent.
package recovery

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aristath/simcampaign/internal/status"
)

const (
	errorMarker   = "[error]"
	warningMarker = "[warning]"

	// followingLines is how many lines after a marker line are forwarded.
	followingLines = 3
)

// ScanLog forwards every line of the log containing an error marker, and a
// warning marker when warnings is set, plus the three lines after it, to sink.
// Markers must be whole words. It returns how many marker lines were found.
func ScanLog(path string, sink status.Sink, warnings bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("could not open log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("could not read log: %w", err)
	}

	sink.Update("Checking for errors and warnings in: " + filepath.Base(path))

	found := 0
	for i, line := range lines {
		if !hasMarker(line, warnings) {
			continue
		}
		found++
		end := min(i+1+followingLines, len(lines))
		for _, l := range lines[i:end] {
			sink.Update(l)
		}
	}
	return found, nil
}

func hasMarker(line string, warnings bool) bool {
	for _, word := range strings.Fields(line) {
		if word == errorMarker || (warnings && word == warningMarker) {
			return true
		}
	}
	return false
}

// CleanOptions selects the companion files removed by CleanProject.
type CleanOptions struct {
	// Extension of the project file, ".aedt" when empty.
	Extension string
	// ProjectFile also removes the project file itself.
	ProjectFile bool
	// Results also removes the results bundle.
	Results bool
}

// CompanionFiles lists the names CleanProject removes for project.
func CompanionFiles(project string, opts CleanOptions) []string {
	ext := opts.Extension
	if ext == "" {
		ext = ".aedt"
	}
	p := project + ext
	names := []string{
		p + ".q.completed",
		p + ".batchinfo",
		p + ".lock",
		p + ".temp",
		p + ".auto",
	}
	if opts.ProjectFile {
		names = append(names, p)
	}
	if opts.Results {
		names = append(names, p+"results")
	}
	return names
}

// CleanProject removes the stale companion files of project in workDir.
// Missing entries are skipped and a failed removal does not stop the others;
// all failures are returned joined. Each removal is reported to sink.
func CleanProject(workDir, project string, opts CleanOptions, sink status.Sink) error {
	var errs []error
	for _, name := range CompanionFiles(project, opts) {
		path := filepath.Join(workDir, name)
		info, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}

		if info.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("could not remove %s: %w", name, err))
			continue
		}
		sink.Update("Removed " + name)
	}
	return errors.Join(errs...)
}

// DefaultArchivePrefix prefixes renamed scheduler reports.
const DefaultArchivePrefix = "lsf_"

// ReportArchiveName returns the name a scheduler report is renamed to once the
// job that wrote logFileName completed: prefix, log base name, ".txt".
func ReportArchiveName(prefix, logFileName string) string {
	if prefix == "" {
		prefix = DefaultArchivePrefix
	}
	base := filepath.Base(logFileName)
	return prefix + strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// RenameReport renames the scheduler report to archiveName so later probes
// never see it again. A missing report is not an error.
func RenameReport(workDir, reportName, archiveName string, sink status.Sink) error {
	err := os.Rename(filepath.Join(workDir, reportName), filepath.Join(workDir, archiveName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("could not rename %s: %w", reportName, err)
	}
	sink.Update(fmt.Sprintf("%s file renamed to %s", reportName, archiveName))
	return nil
}

// ArchiveLog moves fileName from workDir into its subFolder, creating the
// folder and replacing a previous file of the same name. Archiving a file that
// is already archived is a no-op.
func ArchiveLog(workDir, fileName, subFolder string) error {
	src := filepath.Join(workDir, fileName)
	dstDir := filepath.Join(workDir, subFolder)
	dst := filepath.Join(dstDir, filepath.Base(fileName))

	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		if _, err := os.Stat(dst); err == nil {
			return nil
		}
		return fmt.Errorf("could not archive %s: %w", fileName, err)
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("could not create %s: %w", subFolder, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("could not archive %s: %w", fileName, err)
	}
	return nil
}

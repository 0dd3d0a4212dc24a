package status

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// separator is written between status reports.
var separator = strings.Repeat("-", 25)

// LogTextConfig is the configuration of a LogText.
type LogTextConfig struct {
	Path string
	// Now is the clock used for elapsed stamps; defaults to time.Now.
	Now func() time.Time
}

func (c *LogTextConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("status file path is required")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// LogText is a Sink backed by a text file. The file is truncated when the
// LogText is created and every line is appended and flushed immediately, so
// the file can be followed while the campaign runs.
type LogText struct {
	mu    sync.Mutex
	path  string
	now   func() time.Time
	start time.Time
}

// NewLogText creates (or truncates) the status file.
func NewLogText(cfg LogTextConfig) (*LogText, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if err := os.WriteFile(cfg.Path, nil, 0o644); err != nil {
		return nil, fmt.Errorf("could not create status file: %w", err)
	}
	return &LogText{path: cfg.Path, now: cfg.Now, start: cfg.Now()}, nil
}

// Path returns the file written by the sink.
func (l *LogText) Path() string { return l.path }

// Update implements Sink. Write failures are dropped; the status file is a
// convenience for humans and must not stop a campaign.
func (l *LogText) Update(msg string) {
	_ = l.append(msg)
}

// Elapsed implements Sink, writing HH:MM:SS since creation.
func (l *LogText) Elapsed() {
	l.Update(FormatElapsed(l.now().Sub(l.start)))
}

// Separator writes a visual separation between status reports.
func (l *LogText) Separator() {
	l.Update(separator)
}

func (l *LogText) append(msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(msg + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FormatElapsed renders d as HH:MM:SS. Hours are not wrapped at 24.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

package backend

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Resources describes the compute resources requested for one job. The value is
// immutable once built; construct it with NewResources and pass it around by value.
type Resources struct {
	cores     int
	wallTime  time.Duration
	memoryMB  int // 0 means not requested
	scratchMB int // 0 means not requested
}

// ResourceOption sets an optional field of a Resources value.
type ResourceOption func(*Resources)

// WithMemory requests memory in megabytes.
func WithMemory(mb int) ResourceOption {
	return func(r *Resources) { r.memoryMB = mb }
}

// WithScratch requests local scratch space in megabytes.
func WithScratch(mb int) ResourceOption {
	return func(r *Resources) { r.scratchMB = mb }
}

// NewResources validates and builds a resource request. Cores must be positive and
// the wall time must be a whole number of minutes, at least one; optional sizes
// cannot be negative.
func NewResources(cores int, wallTime time.Duration, opts ...ResourceOption) (Resources, error) {
	r := Resources{cores: cores, wallTime: wallTime}
	for _, opt := range opts {
		opt(&r)
	}

	if r.cores <= 0 {
		return Resources{}, fmt.Errorf("%w: cores must be positive, got %d", ErrInvalidResources, r.cores)
	}
	if r.wallTime < time.Minute {
		return Resources{}, fmt.Errorf("%w: wall time must be at least one minute, got %s", ErrInvalidResources, r.wallTime)
	}
	if r.wallTime%time.Minute != 0 {
		return Resources{}, fmt.Errorf("%w: wall time must be whole minutes, got %s", ErrInvalidResources, r.wallTime)
	}
	if r.memoryMB < 0 {
		return Resources{}, fmt.Errorf("%w: memory cannot be negative", ErrInvalidResources)
	}
	if r.scratchMB < 0 {
		return Resources{}, fmt.Errorf("%w: scratch cannot be negative", ErrInvalidResources)
	}

	return r, nil
}

// Cores returns the requested core count.
func (r Resources) Cores() int { return r.cores }

// WallTime returns the requested wall-clock limit.
func (r Resources) WallTime() time.Duration { return r.wallTime }

// Memory returns the requested memory in megabytes and whether it was requested.
func (r Resources) Memory() (int, bool) { return r.memoryMB, r.memoryMB > 0 }

// Scratch returns the requested scratch space in megabytes and whether it was requested.
func (r Resources) Scratch() (int, bool) { return r.scratchMB, r.scratchMB > 0 }

// IsZero reports whether r was never built through NewResources.
func (r Resources) IsZero() bool { return r.cores == 0 }

// FormatWallTime renders a duration in the scheduler's "H:MM" notation.
// Seconds are truncated.
func FormatWallTime(d time.Duration) string {
	total := int(d / time.Minute)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// ParseWallTime parses "H:MM" (or "HH:MM") and plain minute counts ("90").
func ParseWallTime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty wall time", ErrInvalidResources)
	}

	hours, minutes := "0", s
	if i := strings.IndexByte(s, ':'); i >= 0 {
		hours, minutes = s[:i], s[i+1:]
	}

	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: invalid wall time hours %q", ErrInvalidResources, s)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 || (strings.Contains(s, ":") && m >= 60) {
		return 0, fmt.Errorf("%w: invalid wall time minutes %q", ErrInvalidResources, s)
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

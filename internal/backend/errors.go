package backend

import "errors"

var (
	// ErrConflictingPayload is returned when a job names both a script and a design/setup pair.
	ErrConflictingPayload = errors.New("cannot run a script and analyse a setup simultaneously")
	// ErrMissingPayload is returned when a job names neither a script nor a complete design/setup pair.
	ErrMissingPayload = errors.New("job has no script and no design/setup pair")
	// ErrMissingResources is returned when a cluster job carries no resource request.
	ErrMissingResources = errors.New("cluster job requires a resource request")
	// ErrInvalidResources is returned when a resource request cannot be built.
	ErrInvalidResources = errors.New("invalid resource request")
	// ErrMissingExecutable is returned when local mode has no application path.
	ErrMissingExecutable = errors.New("local execution requires the application executable")
	// ErrUnknownBackend is returned for an execution mode that has no backend.
	ErrUnknownBackend = errors.New("unknown execution backend")
)

// IsFatal reports whether err is a configuration error that must abort the run
// instead of being reported and retried on the next poll.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConflictingPayload) ||
		errors.Is(err, ErrMissingPayload) ||
		errors.Is(err, ErrMissingResources) ||
		errors.Is(err, ErrInvalidResources) ||
		errors.Is(err, ErrMissingExecutable) ||
		errors.Is(err, ErrUnknownBackend)
}

package persistence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aristath/simcampaign/internal/backend"
	"github.com/aristath/simcampaign/internal/events"
	"github.com/aristath/simcampaign/internal/log"
)

// recordOf maps an event to its journal record. It reports false for events
// the journal does not keep.
func recordOf(ev events.Event) (Record, bool) {
	rec := Record{Type: ev.EventType(), Task: ev.TaskID()}

	switch e := ev.(type) {
	case events.StepDispatchedEvent:
		rec.Step, rec.JobID, rec.Attempt, rec.OccurredAt = e.Step, e.JobID, e.Attempt, e.Timestamp
		rec.Detail = e.Mode
		if e.Mode == backend.ModeCluster && !e.Tracked {
			rec.Detail += " untracked"
		}
	case events.StepRequeuedEvent:
		rec.Step, rec.Attempt, rec.OccurredAt = e.Step, e.Attempt, e.Timestamp
		rec.Detail = "retry at " + formatTime(e.RetryAt.UTC())
	case events.StepCompletedEvent:
		rec.Step, rec.OccurredAt = e.Step, e.Timestamp
		rec.Detail = "findings=" + strconv.Itoa(e.Findings)
		if e.Err != nil {
			rec.Detail += " error=" + e.Err.Error()
		}
	case events.StepFailedEvent:
		rec.Step, rec.OccurredAt = e.Step, e.Timestamp
		if e.Err != nil {
			rec.Detail = e.Err.Error()
		}
		if e.Terminal {
			rec.Detail = "terminal: " + rec.Detail
		}
	case events.StepStaleEvent:
		rec.Step, rec.JobID, rec.OccurredAt = e.Step, e.JobID, e.Timestamp
		rec.Detail = "dispatched at " + formatTime(e.Since.UTC())
	case events.TaskDoneEvent:
		rec.OccurredAt = e.Timestamp
		switch {
		case e.Failed:
			rec.Detail = "failed "
		case e.Skipped:
			rec.Detail = "skipped "
		default:
			rec.Detail = "done "
		}
		rec.Detail += e.Report
	default:
		return Record{}, false
	}
	return rec, true
}

// Consume journals every event received from ch under runID. It returns nil
// once ch is closed, or ctx's error. A failed write is logged and does not
// stop the consumer.
func Consume(ctx context.Context, store Store, runID string, ch <-chan events.Event, logger log.Logger) error {
	if logger == nil {
		logger = log.Noop
	}
	logger = logger.WithValues(log.Kv{"svc": "persistence.Journal", "run": runID})

	var written, failed int
	for {
		select {
		case <-ctx.Done():
			logger.Debugf("journal stopped after %d record(s)", written)
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				logger.Debugf("journal closed after %d record(s), %d failure(s)", written, failed)
				return nil
			}
			if _, keep := recordOf(ev); !keep {
				continue
			}
			if err := store.RecordEvent(ctx, runID, ev); err != nil {
				failed++
				logger.Warningf("could not journal event: %v", err)
				continue
			}
			written++
		}
	}
}

// Summary renders the records of a run as one line per record.
func Summary(records []Record) []string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		line := fmt.Sprintf("%s %-16s %s", r.OccurredAt.Format("15:04:05"), r.Type, r.Task)
		if r.Step != "" {
			line += "/" + r.Step
		}
		if r.JobID != "" {
			line += " job=" + r.JobID
		}
		if r.Attempt > 0 {
			line += " attempt=" + strconv.Itoa(r.Attempt)
		}
		if r.Detail != "" {
			line += " " + r.Detail
		}
		lines = append(lines, line)
	}
	return lines
}

package events

import (
	"strings"
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	// TaskID is the name of the task the event belongs to, empty for campaign events.
	TaskID() string
}

// Topics. The topic of an event is the prefix of its type.
const (
	TopicStep     = "step"
	TopicTask     = "task"
	TopicStatus   = "status"
	TopicCampaign = "campaign"
)

// Event types.
const (
	EventTypeStepDispatched = "step.dispatched"
	EventTypeStepRequeued   = "step.requeued"
	EventTypeStepCompleted  = "step.completed"
	EventTypeStepFailed     = "step.failed"
	EventTypeStepStale      = "step.stale"
	EventTypeTaskDone       = "task.done"
	EventTypeStatusLine     = "status.line"
	EventTypeProgress       = "campaign.progress"
)

// TopicOf returns the topic an event type is published on.
func TopicOf(eventType string) string {
	topic, _, _ := strings.Cut(eventType, ".")
	return topic
}

// StepDispatchedEvent is published when a step was handed to a backend.
type StepDispatchedEvent struct {
	Task      string
	Step      string
	Mode      string
	JobID     string
	Tracked   bool
	Attempt   int
	Timestamp time.Time
}

func (e StepDispatchedEvent) EventType() string { return EventTypeStepDispatched }
func (e StepDispatchedEvent) TaskID() string    { return e.Task }

// StepRequeuedEvent is published when a lock error sends a step back to pending.
type StepRequeuedEvent struct {
	Task      string
	Step      string
	Attempt   int
	RetryAt   time.Time
	Timestamp time.Time
}

func (e StepRequeuedEvent) EventType() string { return EventTypeStepRequeued }
func (e StepRequeuedEvent) TaskID() string    { return e.Task }

// StepCompletedEvent is published when a step reached Done.
type StepCompletedEvent struct {
	Task      string
	Step      string
	Findings  int   // error and warning lines found in the log
	Err       error // error of a compute step, recorded but not blocking
	Duration  time.Duration
	Timestamp time.Time
}

func (e StepCompletedEvent) EventType() string { return EventTypeStepCompleted }
func (e StepCompletedEvent) TaskID() string    { return e.Task }

// StepFailedEvent is published for a reported step problem. Terminal is set
// when the step will not be retried.
type StepFailedEvent struct {
	Task      string
	Step      string
	Err       error
	Terminal  bool
	Timestamp time.Time
}

func (e StepFailedEvent) EventType() string { return EventTypeStepFailed }
func (e StepFailedEvent) TaskID() string    { return e.Task }

// StepStaleEvent is published once when a dispatched step produced no
// completion evidence for longer than the configured limit.
type StepStaleEvent struct {
	Task      string
	Step      string
	JobID     string
	Since     time.Time
	Timestamp time.Time
}

func (e StepStaleEvent) EventType() string { return EventTypeStepStale }
func (e StepStaleEvent) TaskID() string    { return e.Task }

// TaskDoneEvent is published when a task left the active set.
type TaskDoneEvent struct {
	Task      string
	Failed    bool
	Skipped   bool
	Report    string
	Timestamp time.Time
}

func (e TaskDoneEvent) EventType() string { return EventTypeTaskDone }
func (e TaskDoneEvent) TaskID() string    { return e.Task }

// StatusLineEvent carries one line written to the status sink.
type StatusLineEvent struct {
	Task      string
	Line      string
	Timestamp time.Time
}

func (e StatusLineEvent) EventType() string { return EventTypeStatusLine }
func (e StatusLineEvent) TaskID() string    { return e.Task }

// ProgressEvent is published after every polling round.
type ProgressEvent struct {
	Round     int
	Total     int
	Done      int
	Failed    int
	Active    int
	Waiting   int
	Reports   []string
	Timestamp time.Time
}

func (e ProgressEvent) EventType() string { return EventTypeProgress }
func (e ProgressEvent) TaskID() string    { return "" }

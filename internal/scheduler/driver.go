package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/simcampaign/internal/events"
	"github.com/aristath/simcampaign/internal/log"
	"github.com/aristath/simcampaign/internal/status"
)

// DefaultInterval is the delay between two polling rounds.
const DefaultInterval = 2 * time.Second

// DriverConfig is the configuration of a Driver.
type DriverConfig struct {
	Campaign *Campaign
	// Interval between rounds, DefaultInterval when zero.
	Interval time.Duration
	// SnapshotPath, when set, is rewritten with every task report after each round.
	SnapshotPath string
	Publisher    events.Publisher
	Logger       log.Logger
	// Sleep waits between rounds; it must return early with ctx's error when
	// ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

func (c *DriverConfig) defaults() error {
	if c.Campaign == nil {
		return fmt.Errorf("campaign is required")
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Publisher == nil {
		c.Publisher = events.Discard
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "scheduler.Driver"})
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

// Driver polls the tasks of a campaign until all of them are finished. It is
// the only component that sleeps.
type Driver struct {
	cfg   DriverConfig
	order []string
	round int
}

// NewDriver validates the campaign and creates a driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid driver config: %w", err)
	}
	order, err := cfg.Campaign.Validate()
	if err != nil {
		return nil, err
	}
	return &Driver{cfg: cfg, order: order}, nil
}

// Run polls until every task is finished or ctx is done. It returns the first
// configuration error raised by a task, or ctx's error.
func (d *Driver) Run(ctx context.Context) error {
	d.cfg.Logger.Infof("polling %d task(s) every %s", len(d.order), d.cfg.Interval)
	for {
		remaining, err := d.Tick(ctx)
		if err != nil {
			return err
		}
		if remaining == 0 {
			d.cfg.Logger.Infof("campaign finished after %d round(s)", d.round)
			return nil
		}
		if err := d.cfg.Sleep(ctx, d.cfg.Interval); err != nil {
			return err
		}
	}
}

// Tick runs one polling round: ExecuteStep once on every live task, in
// dependency order. It returns how many tasks are not finished yet.
func (d *Driver) Tick(ctx context.Context) (int, error) {
	d.round++
	c := d.cfg.Campaign

	for _, name := range d.order {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		t := c.tasks[name]
		if t.Finished() {
			continue
		}
		if c.blocked(t) {
			d.finish(t)
			continue
		}
		if !c.ready(t) {
			continue
		}

		if err := t.ExecuteStep(ctx); err != nil {
			return 0, err
		}
		if t.Finished() {
			d.finish(t)
		}
	}

	progress := d.progress()
	d.writeSnapshot(progress.Reports)
	d.cfg.Publisher.Publish(progress)

	return progress.Total - progress.Done - progress.Failed, nil
}

// finish removes t from the active set and skips whatever depends on a
// failed or skipped task.
func (d *Driver) finish(t *Task) {
	if !t.Done() && !t.Failed() {
		t.skip()
	}
	d.publishDone(t)

	if t.Done() {
		return
	}
	for _, s := range d.cfg.Campaign.skipDependents(t.Name()) {
		d.publishDone(s)
	}
}

func (d *Driver) publishDone(t *Task) {
	switch {
	case t.Failed():
		d.cfg.Logger.Warningf("task %s failed", t.Name())
	case t.Skipped():
		d.cfg.Logger.Warningf("task %s skipped, a dependency did not complete", t.Name())
	default:
		d.cfg.Logger.Infof("task %s done", t.Name())
	}
	d.cfg.Publisher.Publish(events.TaskDoneEvent{
		Task:      t.Name(),
		Failed:    t.Failed(),
		Skipped:   t.Skipped(),
		Report:    t.Report(),
		Timestamp: d.cfg.Now(),
	})
}

func (d *Driver) progress() events.ProgressEvent {
	p := events.ProgressEvent{Round: d.round, Total: len(d.order), Timestamp: d.cfg.Now()}
	c := d.cfg.Campaign
	for _, name := range d.order {
		t := c.tasks[name]
		p.Reports = append(p.Reports, t.Report())
		switch {
		case t.Done():
			p.Done++
		case t.Finished():
			p.Failed++
		case c.ready(t):
			p.Active++
		default:
			p.Waiting++
		}
	}
	return p
}

func (d *Driver) writeSnapshot(reports []string) {
	if d.cfg.SnapshotPath == "" {
		return
	}
	if err := status.WriteSnapshot(d.cfg.SnapshotPath, reports); err != nil {
		d.cfg.Logger.Warningf("could not write task status: %v", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

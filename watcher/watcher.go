// Package watcher polls the mailbox for new e-mails on a cron schedule and
// hands them to a consumer through a Queue.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/mail"
)

// DefaultSchedule polls every five seconds.
const DefaultSchedule = "@every 5s"

// Options configure a Watcher.
type Options struct {
	// Schedule is a standard cron expression or descriptor such as
	// "@every 30s".
	Schedule string
	Logger   logging.Logger
}

// Watcher pushes e-mails from a Source onto a Queue.
type Watcher struct {
	source   Source
	queue    *Queue[mail.Email]
	schedule cron.Schedule
	logger   logging.Logger
}

// New creates a Watcher. The schedule is parsed up front.
func New(source Source, queue *Queue[mail.Email], optFns ...func(o *Options)) (*Watcher, error) {
	opts := Options{
		Schedule: DefaultSchedule,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	sched, err := cron.ParseStandard(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("watcher: invalid schedule %q: %w", opts.Schedule, err)
	}

	return &Watcher{
		source:   source,
		queue:    queue,
		schedule: sched,
		logger:   logging.With(opts.Logger, "component", "watcher"),
	}, nil
}

// Queue returns the queue the watcher feeds.
func (w *Watcher) Queue() *Queue[mail.Email] { return w.queue }

// Poll runs one poll and queues what it found.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	emails, err := w.source.Poll(ctx)
	if len(emails) > 0 {
		if perr := w.queue.Push(emails...); perr != nil {
			return 0, perr
		}
		w.logger.Info("watcher.emails.queued", "count", len(emails))
	}
	if err != nil {
		return len(emails), fmt.Errorf("watcher: poll: %w", err)
	}
	return len(emails), nil
}

// Backlog queues e-mails received since the given time. The source must
// implement BacklogSource.
func (w *Watcher) Backlog(ctx context.Context, since time.Time, limit int) (int, error) {
	bs, ok := w.source.(BacklogSource)
	if !ok {
		return 0, fmt.Errorf("watcher: source %T has no backlog", w.source)
	}
	emails, err := bs.Backlog(ctx, since, limit)
	if err != nil {
		return 0, fmt.Errorf("watcher: backlog: %w", err)
	}
	if len(emails) > 0 {
		if err := w.queue.Push(emails...); err != nil {
			return 0, err
		}
	}
	w.logger.Info("watcher.backlog.queued", "count", len(emails))
	return len(emails), nil
}

// Run polls once immediately and then on the schedule until ctx ends. The
// queue is closed on return. Poll errors are logged and retried on the next
// tick.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.queue.Close()

	c := cron.New(
		cron.WithLogger(cronLogger{w.logger}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{w.logger})),
	)
	job := cron.FuncJob(func() {
		if _, err := w.Poll(ctx); err != nil {
			w.logger.Error("watcher.poll.failed", "error", err)
		}
	})
	c.Schedule(w.schedule, job)

	job.Run()
	c.Start()
	w.logger.Info("watcher.running")

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("watcher.stopped")
	return ctx.Err()
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct{ l logging.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("watcher.cron."+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("watcher.cron."+msg, append(kv, "error", err)...)
}

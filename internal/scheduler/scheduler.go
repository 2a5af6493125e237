// Package scheduler runs periodic maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"

	"gamingbot/internal/logging"
)

// Job is one run of a periodic task
type Job func(ctx context.Context) error

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec parses
func Validate(spec string) error {
	_, err := parser.Parse(spec)
	return err
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	c   *cron.Cron
	log logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log logging.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers job under name. Each run gets its own timeout.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, job Job) error {
	_, err := s.c.AddFunc(spec, func() {
		s.run(name, timeout, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", name, spec, err)
	}
	s.log.Info("⏱️ job scheduled", logging.String("job", name), logging.String("spec", spec))
	return nil
}

func (s *Scheduler) run(name string, timeout time.Duration, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("❌ job panicked",
				logging.String("job", name),
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())))
		}
	}()

	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		s.log.Warn("⚠️ job failed",
			logging.String("job", name),
			logging.Duration("took", time.Since(start)),
			logging.Err(err))
		return
	}
	s.log.Debug("job finished", logging.String("job", name), logging.Duration("took", time.Since(start)))
}

func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop cancels running jobs and waits for them until ctx expires
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts logging.Logger to cron.Logger
type cronLogger struct{ log logging.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kv(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kv(keysAndValues), logging.Err(err))...)
}

func kv(pairs []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields = append(fields, logging.String(fmt.Sprint(pairs[i]), fmt.Sprint(pairs[i+1])))
	}
	return fields
}

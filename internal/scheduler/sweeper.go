package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sandeepkv93/taskd/internal/logx"
)

// SweepFunc is a periodic maintenance job such as the overdue sweep or the
// generation horizon top-up.
type SweepFunc func(ctx context.Context) error

type sweepDef struct {
	name    string
	spec    string
	run     SweepFunc
	entryID cron.EntryID
}

// Sweeper runs named jobs on cron specs. Overlapping runs of one job are
// skipped rather than queued.
type Sweeper struct {
	mu     sync.Mutex
	parser cron.Parser
	loc    *time.Location
	log    logx.Logger
	c      *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	defs   []*sweepDef
}

func NewSweeper(loc *time.Location, log logx.Logger) *Sweeper {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
		log:    log.With(logx.String("component", "sweeper")),
	}
}

// Add registers a job. The spec accepts 5 or 6 fields and descriptors such as
// "@every 1m". Jobs added after Start are scheduled immediately.
func (s *Sweeper) Add(name, spec string, run SweepFunc) error {
	name = strings.TrimSpace(name)
	spec = strings.TrimSpace(spec)
	if name == "" || run == nil {
		return fmt.Errorf("scheduler: sweep job needs a name and a func")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("scheduler: sweep %s: parse %q: %w", name, spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return fmt.Errorf("scheduler: sweep %s already registered", name)
		}
	}
	d := &sweepDef{name: name, spec: spec, run: run}
	s.defs = append(s.defs, d)
	if s.c != nil {
		return s.addLocked(d)
	}
	return nil
}

func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	for _, d := range s.defs {
		if err := s.addLocked(d); err != nil {
			s.log.Error("sweep not scheduled", logx.String("job", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("sweeper started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.defs)))
}

// Stop waits for running jobs or for ctx, whichever comes first.
func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	cancel()
	s.log.Info("sweeper stopped")
}

// RunNow executes a job synchronously outside its schedule.
func (s *Sweeper) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var def *sweepDef
	for _, d := range s.defs {
		if d.name == name {
			def = d
			break
		}
	}
	s.mu.Unlock()
	if def == nil {
		return fmt.Errorf("scheduler: unknown sweep %q", name)
	}
	return s.execute(ctx, def)
}

// Next reports when a registered job fires next; ok is false before Start.
func (s *Sweeper) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}, false
	}
	for _, d := range s.defs {
		if d.name == name {
			return s.c.Entry(d.entryID).Next, true
		}
	}
	return time.Time{}, false
}

func (s *Sweeper) addLocked(d *sweepDef) error {
	ctx := s.ctx
	id, err := s.c.AddFunc(d.spec, func() {
		if err := s.execute(ctx, d); err != nil {
			s.log.Warn("sweep failed", logx.String("job", d.name), logx.Err(err))
		}
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Sweeper) execute(ctx context.Context, d *sweepDef) error {
	start := time.Now()
	err := d.run(ctx)
	s.log.Debug("sweep ran", logx.String("job", d.name), logx.Duration("took", time.Since(start)), logx.Err(err))
	return err
}

// cronLogger adapts logx to cron's logger interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepkv93/taskd/internal/config"
	"github.com/sandeepkv93/taskd/internal/generator"
	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/notify"
	"github.com/sandeepkv93/taskd/internal/scheduler"
	"github.com/sandeepkv93/taskd/internal/service"
	"github.com/sandeepkv93/taskd/internal/storage"
)

const shutdownTimeout = 5 * time.Second

type appOptions struct {
	// quiet keeps log output off the terminal.
	quiet    bool
	holidays generator.Holidays
	clock    model.Clock
}

// app is the wired stack shared by every command that touches storage.
type app struct {
	mgr      *config.Manager
	cfg      *config.Config
	logs     *logx.Service
	log      logx.Logger
	loc      *time.Location
	quiet    bool
	repo     *storage.SQLiteRepository
	engine   *scheduler.Engine
	notifier *notify.Dispatcher
	svc      *service.Service
}

func loadConfig(opts *rootOptions) (*config.Manager, *config.Config, error) {
	mgr := config.NewManager(opts.configPath, logx.Nop())
	cfg, err := mgr.Load()
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

func openApp(opts *rootOptions, ao appOptions) (*app, error) {
	mgr, cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a := &app{mgr: mgr, cfg: cfg, quiet: ao.quiet}
	a.logs, a.log = logx.New(a.logConfig(cfg))

	if a.loc, err = cfg.Location(); err != nil {
		a.Close()
		return nil, fmt.Errorf("cli: timezone: %w", err)
	}
	hours, err := cfg.WorkingHours()
	if err != nil {
		a.Close()
		return nil, err
	}
	holidays, err := cfg.Holidays()
	if err != nil {
		a.Close()
		return nil, err
	}
	for day := range ao.holidays {
		holidays[day] = struct{}{}
	}

	if a.repo, err = storage.OpenSQLite(cfg.Storage.Path); err != nil {
		a.Close()
		return nil, err
	}
	clock := ao.clock
	if clock == nil {
		clock = model.SystemClock
	}
	a.engine = scheduler.NewEngine(cfg.Scheduler.Buffer,
		scheduler.WithRedeliveryDelay(cfg.Scheduler.RedeliveryDelay),
		scheduler.WithClock(clock.Now))
	a.notifier = notify.NewDispatcher(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		Burst:      cfg.Notify.Burst,
		Buffer:     cfg.Notify.Buffer,
	}, a.log)
	a.svc, err = service.New(service.Deps{
		Repo:     a.repo,
		Clock:    clock,
		Trigger:  a.engine,
		Notifier: a.notifier,
		Holidays: holidays,
		Log:      a.log,
	}, service.Options{
		HardCap:      cfg.Generation.HardCap,
		WorkingHours: hours,
		ArmRetries:   cfg.Scheduler.ArmRetries,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// logConfig routes logs to a file when the terminal belongs to the screen.
func (a *app) logConfig(cfg *config.Config) logx.Config {
	lc := cfg.LogConfig()
	if a.quiet {
		lc.Console = false
		lc.File.Enabled = true
		if lc.File.Path == "" {
			lc.File.Path = "./taskd.log"
		}
	}
	return lc
}

func (a *app) Close() {
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.repo != nil {
		_ = a.repo.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

// daemon is the running trigger, sweeper and notification pipeline.
type daemon struct {
	app     *app
	sweeper *scheduler.Sweeper
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// startDaemon restores armed reminders, starts the sweeps and consumes
// trigger deliveries until Stop.
func (a *app) startDaemon(parent context.Context, sinks ...notify.Sink) (*daemon, error) {
	ctx, cancel := context.WithCancel(parent)
	d := &daemon{app: a, cancel: cancel}

	for _, s := range sinks {
		a.notifier.AddSink(s)
	}
	if a.cfg.Notify.Desktop {
		a.notifier.AddSink(notify.NewDesktopSink())
	}
	// The notifier drains on Stop, after the fire loop has ended.
	a.notifier.Start(context.WithoutCancel(ctx))
	a.engine.Start()

	d.sweeper = scheduler.NewSweeper(a.loc, a.log)
	if err := a.svc.RegisterSweeps(d.sweeper, service.SweepSpecs{
		Overdue: a.cfg.Scheduler.OverdueSweep,
		TopUp:   a.cfg.Scheduler.TopUpSweep,
		Restore: a.cfg.Scheduler.RestoreSweep,
		Horizon: a.cfg.Horizon(),
	}); err != nil {
		cancel()
		a.notifier.Stop(context.Background())
		return nil, err
	}
	if n, err := a.svc.Restore(ctx); err != nil {
		a.log.Warn("restore incomplete", logx.Int("restored", n), logx.Err(err))
	}
	for _, job := range []string{"overdue", "topup"} {
		if err := d.sweeper.RunNow(ctx, job); err != nil {
			a.log.Warn("initial sweep failed", logx.String("job", job), logx.Err(err))
		}
	}
	d.sweeper.Start(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := a.svc.Run(ctx); err != nil {
			a.log.Error("fire loop stopped", logx.Err(err))
		}
	}()

	a.mgr.Watch(func(cfg *config.Config) {
		a.logs.Apply(a.logConfig(cfg))
		a.log.Info("config reloaded", logx.String("level", cfg.Log.Level))
	})
	return d, nil
}

func (d *daemon) Stop() {
	shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	d.sweeper.Stop(shutdown)
	d.cancel()
	d.wg.Wait()
	d.app.engine.Stop()
	d.app.notifier.Stop(shutdown)
}

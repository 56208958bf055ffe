// Package notify fans fired reminders out to sinks and subscribers through a
// bounded queue and a token-bucket rate limit.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sandeepkv93/taskd/internal/logx"
	"github.com/sandeepkv93/taskd/internal/model"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrStopped   = errors.New("notify: dispatcher stopped")
)

// Notification is one delivered reminder.
type Notification struct {
	InstanceID string
	AlertID    string
	Title      string
	Message    string
	Channel    model.Channel
	Scheduled  time.Time
	FiredAt    time.Time
	Refire     bool
}

func (n Notification) Text() string {
	msg := n.Message
	if msg == "" {
		msg = n.Title
	}
	if n.Refire {
		return "[snoozed] " + msg
	}
	return msg
}

type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// WriterSink prints one line per notification.
func WriterSink(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc(func(_ context.Context, n Notification) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintf(w, "%s  %-12s %s (%s)\n",
			n.FiredAt.Format("15:04:05"), n.Channel, n.Text(), n.Scheduled.Format("Mon Jan 2 15:04"))
		return err
	})
}

type Config struct {
	RatePerSec float64
	Burst      int
	Buffer     int
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = int(c.RatePerSec) + 1
	}
	if c.Buffer <= 0 {
		c.Buffer = 64
	}
	return c
}

// Dispatcher is safe for concurrent use. Notify never blocks; a full queue
// is reported as ErrQueueFull.
type Dispatcher struct {
	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	log       logx.Logger
	sinks     []Sink
	queue     chan Notification
	accepting bool
	sendWG    sync.WaitGroup
	cancel    context.CancelFunc
	done      chan struct{}

	subsMu sync.Mutex
	subs   []chan Notification

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewDispatcher(cfg Config, log logx.Logger, sinks ...Sink) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     log.With(logx.String("component", "notify")),
		sinks:   sinks,
	}
}

func (d *Dispatcher) AddSink(s Sink) {
	if s == nil {
		return
	}
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Subscribe returns a channel that receives every delivered notification.
// A slow subscriber loses its oldest pending item, never the newest.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Notification, buffer)
	d.subsMu.Lock()
	d.subs = append(d.subs, ch)
	d.subsMu.Unlock()
	var once sync.Once
	return ch, func() { once.Do(func() { d.unsubscribe(ch) }) }
}

func (d *Dispatcher) unsubscribe(ch chan Notification) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for i, s := range d.subs {
		if s == ch {
			last := len(d.subs) - 1
			d.subs[i] = d.subs[last]
			d.subs[last] = nil
			d.subs = d.subs[:last]
			close(ch)
			return
		}
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.queue != nil {
		d.mu.Unlock()
		return
	}
	d.queue = make(chan Notification, d.cfg.Buffer)
	d.accepting = true
	d.done = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	q, done := d.queue, d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("panic in notify worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		for n := range q {
			if runCtx.Err() != nil {
				return
			}
			d.deliver(runCtx, n)
		}
	}()
}

// Stop stops intake and drains queued notifications until ctx expires.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	q, done, cancel := d.queue, d.done, d.cancel
	if q == nil {
		d.mu.Unlock()
		return
	}
	d.accepting = false
	d.mu.Unlock()

	d.sendWG.Wait()
	close(q)
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()

	d.mu.Lock()
	d.queue, d.done, d.cancel = nil, nil, nil
	d.mu.Unlock()
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	if !d.accepting || d.queue == nil {
		d.mu.Unlock()
		return ErrStopped
	}
	q := d.queue
	d.sendWG.Add(1)
	d.mu.Unlock()
	defer d.sendWG.Done()

	select {
	case q <- n:
		return nil
	default:
		d.dropped.Add(1)
		d.log.Warn("notification dropped", logx.String("instance", n.InstanceID), logx.String("alert", n.AlertID))
		return ErrQueueFull
	}
}

func (d *Dispatcher) Delivered() uint64 { return d.delivered.Load() }
func (d *Dispatcher) Dropped() uint64   { return d.dropped.Load() }

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}
	d.mu.Lock()
	sinks := append([]Sink(nil), d.sinks...)
	d.mu.Unlock()

	for _, s := range sinks {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.Deliver(callCtx, n)
		cancel()
		if err != nil {
			d.log.Warn("sink delivery failed",
				logx.String("instance", n.InstanceID), logx.String("alert", n.AlertID), logx.Err(err))
		}
	}
	d.publish(n)
	d.delivered.Add(1)
	d.log.Debug("notification delivered", logx.String("instance", n.InstanceID), logx.String("alert", n.AlertID))
}

func (d *Dispatcher) publish(n Notification) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- n:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- n:
		default:
		}
	}
}

package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidTriggerTime = errors.New("scheduler: invalid trigger time")
	ErrInvalidID          = errors.New("scheduler: empty event id")
	ErrStopped            = errors.New("scheduler: engine stopped")
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindSnooze   Kind = "snooze"
)

// Event is one registration. ID is unique; scheduling an existing ID
// replaces the earlier registration.
type Event struct {
	ID         string
	InstanceID string
	AlertID    string
	Kind       Kind
	TriggerAt  time.Time
}

type queueItem struct {
	event Event
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].event.TriggerAt.Before(pq[j].event.TriggerAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Engine is an in-process time trigger. Due events are delivered on C() at or
// after TriggerAt. When the consumer falls behind, a due event is re-queued
// after the redelivery delay instead of being lost.
type Engine struct {
	mu        sync.Mutex
	queue     priorityQueue
	byID      map[string]*queueItem
	out       chan Event
	wakeup    chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
	redeliver time.Duration
	now       func() time.Time
	deferred  uint64
}

type Option func(*Engine)

// WithRedeliveryDelay sets how long a due event waits before another delivery
// attempt when C() is full.
func WithRedeliveryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.redeliver = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(bufferSize int, opts ...Option) *Engine {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	e := &Engine{
		queue:     make(priorityQueue, 0),
		byID:      make(map[string]*queueItem),
		out:       make(chan Event, bufferSize),
		wakeup:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		redeliver: 50 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) C() <-chan Event {
	return e.out
}

func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	heap.Init(&e.queue)
	go e.loop()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.stopped = true
		e.mu.Unlock()
		return
	}
	e.stopped = true
	close(e.stopCh)
	e.mu.Unlock()
	<-e.doneCh
}

// Schedule registers ev, replacing any pending registration with the same ID.
func (e *Engine) Schedule(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" {
		return ErrInvalidID
	}
	if ev.TriggerAt.IsZero() {
		return ErrInvalidTriggerTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	e.upsertLocked(ev)
	e.signalWakeup()
	return nil
}

// Cancel removes a pending registration. Unknown IDs are not an error.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if item, ok := e.byID[id]; ok {
		heap.Remove(&e.queue, item.index)
		delete(e.byID, id)
		e.signalWakeup()
	}
	return nil
}

// Pending reports the registered trigger time for id.
func (e *Engine) Pending(id string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.byID[id]
	if !ok {
		return time.Time{}, false
	}
	return item.event.TriggerAt, true
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Deferred counts delivery attempts pushed back because C() was full.
func (e *Engine) Deferred() uint64 {
	return atomic.LoadUint64(&e.deferred)
}

func (e *Engine) upsertLocked(ev Event) {
	if item, ok := e.byID[ev.ID]; ok {
		item.event = ev
		heap.Fix(&e.queue, item.index)
		return
	}
	item := &queueItem{event: ev}
	heap.Push(&e.queue, item)
	e.byID[ev.ID] = item
}

func (e *Engine) loop() {
	defer close(e.doneCh)
	defer close(e.out)

	var timer *time.Timer
	for {
		next, hasNext := e.peek()
		if !hasNext {
			select {
			case <-e.wakeup:
				continue
			case <-e.stopCh:
				return
			}
		}

		wait := next.TriggerAt.Sub(e.now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			now := e.now()
			for _, ev := range e.popDue(now) {
				select {
				case e.out <- ev:
				default:
					atomic.AddUint64(&e.deferred, 1)
					e.requeue(ev, now.Add(e.redeliver))
				}
			}
		case <-e.wakeup:
			continue
		case <-e.stopCh:
			stopTimer(timer)
			return
		}
	}
}

// requeue keeps a newer registration for the same ID if one arrived while
// the event was in flight.
func (e *Engine) requeue(ev Event, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[ev.ID]; ok {
		return
	}
	ev.TriggerAt = at
	e.upsertLocked(ev)
}

func (e *Engine) signalWakeup() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) peek() (Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return Event{}, false
	}
	return e.queue[0].event, true
}

func (e *Engine) popDue(now time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, 0)
	for len(e.queue) > 0 {
		next := e.queue[0].event
		if next.TriggerAt.After(now) {
			break
		}
		item := heap.Pop(&e.queue).(*queueItem)
		delete(e.byID, item.event.ID)
		out = append(out, item.event)
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandeepkv93/taskd/internal/logx"
)

func TestSweeperRejectsBadSpec(t *testing.T) {
	s := NewSweeper(time.UTC, logx.Nop())
	if err := s.Add("overdue", "every minute", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.Add("overdue", "@every 1m", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := s.Add("overdue", "@every 2m", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected duplicate name rejection")
	}
}

func TestSweeperRunNow(t *testing.T) {
	s := NewSweeper(time.UTC, logx.Nop())
	boom := errors.New("boom")
	_ = s.Add("topup", "@hourly", func(context.Context) error { return boom })
	if err := s.RunNow(context.Background(), "topup"); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}
	if err := s.RunNow(context.Background(), "missing"); err == nil {
		t.Fatalf("expected unknown job error")
	}
}

func TestSweeperFiresOnSchedule(t *testing.T) {
	s := NewSweeper(time.UTC, logx.Nop())
	var runs int64
	_ = s.Add("tick", "@every 1s", func(context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if next, ok := s.Next("tick"); !ok || next.IsZero() {
		t.Fatalf("expected next run after start")
	}
	deadline := time.After(3 * time.Second)
	for atomic.LoadInt64(&runs) == 0 {
		select {
		case <-deadline:
			t.Fatalf("sweep never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

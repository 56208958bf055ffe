package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/sandeepkv93/taskd/internal/model"
)

type recordedCall struct {
	name string
	args []string
}

func recorder(calls *[]recordedCall) Runner {
	return func(_ context.Context, name string, args ...string) error {
		*calls = append(*calls, recordedCall{name: name, args: args})
		return nil
	}
}

func TestDesktopSinkCommands(t *testing.T) {
	var calls []recordedCall
	linux := &DesktopSink{GOOS: "linux", Run: recorder(&calls)}
	n := Notification{Title: "Standup", Message: "in 5", Channel: model.ChannelNotification}
	if err := linux.Deliver(context.Background(), n); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	n.Refire = true
	_ = linux.Deliver(context.Background(), n)
	if len(calls) != 2 || calls[0].name != "notify-send" || calls[0].args[1] != "in 5" {
		t.Fatalf("unexpected linux calls: %+v", calls)
	}
	if calls[1].args[0] != "--urgency=critical" || calls[1].args[2] != "[snoozed] in 5" {
		t.Fatalf("expected critical refire, got %+v", calls[1])
	}

	calls = nil
	mac := &DesktopSink{GOOS: "darwin", Run: recorder(&calls)}
	_ = mac.Deliver(context.Background(), Notification{Title: `say "hi"`, Channel: model.ChannelSound})
	if len(calls) != 1 || calls[0].name != "osascript" || !strings.Contains(calls[0].args[1], `\"hi\"`) || !strings.Contains(calls[0].args[1], "sound name") {
		t.Fatalf("unexpected darwin call: %+v", calls)
	}
}

func TestDesktopSinkSkipsOtherChannels(t *testing.T) {
	var calls []recordedCall
	d := &DesktopSink{GOOS: "linux", Run: recorder(&calls)}
	_ = d.Deliver(context.Background(), Notification{Title: "x", Channel: model.ChannelEmail})
	other := &DesktopSink{GOOS: "plan9", Run: recorder(&calls)}
	_ = other.Deliver(context.Background(), Notification{Title: "x"})
	if len(calls) != 0 {
		t.Fatalf("expected no commands, got %+v", calls)
	}
}

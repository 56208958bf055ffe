package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sandeepkv93/taskd/internal/model"
)

// Runner executes an external command; tests substitute a recorder.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DesktopSink raises OS notifications for the notification, push and sound
// channels via notify-send on Linux and osascript on macOS. Other channels
// and platforms are ignored.
type DesktopSink struct {
	GOOS string
	Run  Runner
}

func NewDesktopSink() *DesktopSink {
	return &DesktopSink{GOOS: runtime.GOOS, Run: execRunner}
}

func (d *DesktopSink) Deliver(ctx context.Context, n Notification) error {
	switch n.Channel {
	case model.ChannelNotification, model.ChannelPush, model.ChannelSound, "":
	default:
		return nil
	}
	run := d.Run
	if run == nil {
		run = execRunner
	}
	switch d.GOOS {
	case "linux":
		args := []string{n.Title, n.Text()}
		if n.Refire {
			args = append([]string{"--urgency=critical"}, args...)
		}
		return run(ctx, "notify-send", args...)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(n.Text()), escapeAppleScript(n.Title))
		if n.Channel == model.ChannelSound {
			script += ` sound name "Glass"`
		}
		return run(ctx, "osascript", "-e", script)
	default:
		return nil
	}
}

func escapeAppleScript(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`)
}

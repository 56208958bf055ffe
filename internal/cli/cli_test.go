package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/taskd/internal/model"
	"github.com/sandeepkv93/taskd/internal/storage"
)

type env struct {
	dir    string
	config string
	db     string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{dir: dir, config: filepath.Join(dir, "taskd.yaml"), db: filepath.Join(dir, "taskd.db")}
	body := fmt.Sprintf("storage:\n  path: %s\nlog:\n  level: error\nscheduler:\n  timezone: UTC\n", e.db)
	require.NoError(t, os.WriteFile(e.config, []byte(body), 0o644))
	return e
}

func (e env) write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (e env) instances(t *testing.T) []*model.TaskInstance {
	t.Helper()
	repo, err := storage.OpenSQLite(e.db)
	require.NoError(t, err)
	defer repo.Close()
	insts, err := repo.ListInstances(context.Background(), storage.InstanceListFilter{})
	require.NoError(t, err)
	return insts
}

func standupFile(start time.Time) string {
	return fmt.Sprintf(`
templates:
  - id: standup
    title: Standup
    tags: [team]
    timezone: UTC
    start: "%s"
    duration: 15m
    recurrence: {type: daily, count: 5}
    reminders:
      alerts:
        - id: early
          before: 1h
          message: standup soon
      snooze: {interval: 10m, maxCount: 2}
    policy: {allowReschedule: true, maxDelayDays: 2}
`, start.Format("2006-01-02T15:04"))
}

func tomorrowAt(hour int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, time.UTC)
}

func TestPreviewPrintsOccurrences(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "standup.yaml", standupFile(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))

	out, err := e.run(t, "preview", path, "--count", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Standup")
	assert.Contains(t, out, "Mon 2026-03-02 10:00 UTC")
	assert.Contains(t, out, "Fri 2026-03-06 10:00 UTC")
	assert.NotContains(t, out, "2026-03-07", "rule count caps the preview")

	_, err = os.Stat(e.db)
	assert.True(t, os.IsNotExist(err), "preview does not open storage")
}

func TestPreviewRejectsBadFile(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "bad.yaml", "templates:\n  - title: x\n    start: never\n")
	_, err := e.run(t, "preview", path)
	assert.Error(t, err)
}

func TestImportDescribeAndDo(t *testing.T) {
	e := newEnv(t)
	start := tomorrowAt(10)
	path := e.write(t, "standup.yaml", standupFile(start))

	out, err := e.run(t, "import", path, "--count", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "added Standup (standup): 2 instances, 2 alerts armed")

	out, err = e.run(t, "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "skip  Standup")

	insts := e.instances(t)
	require.Len(t, insts, 2)
	first := insts[0]
	if insts[1].ScheduledTime().Before(first.ScheduledTime()) {
		first = insts[1]
	}
	assert.True(t, first.ScheduledTime().Equal(start))

	out, err = e.run(t, "agenda", "week", "--tag", "team")
	require.NoError(t, err)
	assert.Contains(t, out, "Standup")

	out, err = e.run(t, "describe", "template", "standup", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "# Standup")

	out, err = e.run(t, "do", "reschedule", first.ID(), "+1h", "because", "traffic")
	require.NoError(t, err)
	assert.Contains(t, out, "moved Standup to")

	out, err = e.run(t, "do", "complete", first.ID())
	require.NoError(t, err)
	assert.Contains(t, out, "completed Standup")

	out, err = e.run(t, "describe", "instance", first.ID(), "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "**status:** completed")
	assert.Contains(t, out, "moved 1 time(s)")

	_, err = e.run(t, "do", "complete", first.ID())
	assert.ErrorIs(t, err, model.ErrTransition)
}

func TestImportDraftSkipsGeneration(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "standup.yaml", standupFile(tomorrowAt(10)))

	out, err := e.run(t, "import", path, "--draft")
	require.NoError(t, err)
	assert.Contains(t, out, "draft Standup (standup)")
	assert.Empty(t, e.instances(t))
}

func TestDoNeedsExplicitTarget(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "do", "complete", "selected")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pass an instance id")

	_, err = e.run(t, "do", "explode", "now")
	assert.Error(t, err)
}

func TestDescribeUnknownKind(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "describe", "widget", "x")
	assert.Error(t, err)
}

func TestAgendaWindow(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	from, to, err := agendaWindow("today", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day, from)
	assert.Equal(t, day.AddDate(0, 0, 1), to)

	from, to, err = agendaWindow("week", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day, from)
	assert.Equal(t, day.AddDate(0, 0, 7), to)

	from, to, err = agendaWindow("overdue", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, -90), from)
	assert.Equal(t, now, to)

	_, _, err = agendaWindow("someday", now, time.UTC)
	assert.Error(t, err)
}

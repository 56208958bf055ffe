package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/taskd/internal/generator"
	"github.com/sandeepkv93/taskd/internal/logx"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "./taskd.db", cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 64, cfg.Scheduler.Buffer)
	assert.Equal(t, "@every 1m", cfg.Scheduler.OverdueSweep)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.RedeliveryDelay)
	assert.Equal(t, generator.DefaultHardCap, cfg.Generation.HardCap)
	assert.Equal(t, 14*24*time.Hour, cfg.Horizon())

	hours, err := cfg.WorkingHours()
	require.NoError(t, err)
	assert.Equal(t, generator.DefaultWorkingHours, hours)
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := writeFile(t, `
storage:
  path: /var/lib/taskd/data.db
scheduler:
  timezone: Europe/Berlin
  arm_retries: 2
generation:
  hard_cap: 500
  working_hours:
    start: "08:30"
    end: "17:00"
  holidays: ["2026-12-25", "2026-12-26"]
`)
	t.Setenv("TASKD_SCHEDULER_ARM_RETRIES", "4")
	t.Setenv("TASKD_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/taskd/data.db", cfg.Storage.Path)
	assert.Equal(t, 4, cfg.Scheduler.ArmRetries, "env overrides file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 500, cfg.Generation.HardCap)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	hours, err := cfg.WorkingHours()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+30*time.Minute, hours.Start)
	assert.Equal(t, 17*time.Hour, hours.End)

	holidays, err := cfg.Holidays()
	require.NoError(t, err)
	assert.True(t, holidays.IsHoliday(time.Date(2026, 12, 25, 10, 0, 0, 0, loc)))
	assert.False(t, holidays.IsHoliday(time.Date(2026, 12, 24, 10, 0, 0, 0, loc)))

	lc := cfg.LogConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.True(t, lc.Console)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":          "log:\n  level: loud\n",
		"timezone":       "scheduler:\n  timezone: Mars/Olympus\n",
		"retries":        "scheduler:\n  arm_retries: -1\n",
		"default count":  "generation:\n  hard_cap: 5\n  default_count: 6\n",
		"clock format":   "generation:\n  working_hours:\n    start: nine\n",
		"inverted hours": "generation:\n  working_hours:\n    start: \"18:00\"\n    end: \"09:00\"\n",
		"file sink":      "log:\n  file:\n    enabled: true\n    path: \"\"\n",
		"notify rate":    "notify:\n  rate_per_sec: 0\n",
		"holiday date":   "generation:\n  holidays: [\"next friday\"]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestManagerGetReturnsLastLoaded(t *testing.T) {
	m := NewManager(writeFile(t, "scheduler:\n  buffer: 8\n"), logx.Nop())
	assert.Nil(t, m.Get())

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())
	assert.Equal(t, 8, m.Get().Scheduler.Buffer)
}

func TestManagerWatchAppliesValidEdits(t *testing.T) {
	path := writeFile(t, "log:\n  level: info\n")
	m := NewManager(path, logx.Nop())
	_, err := m.Load()
	require.NoError(t, err)

	levels := make(chan string, 16)
	m.Watch(func(cfg *Config) {
		select {
		case levels <- cfg.Log.Level:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: bogus\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "info", m.Get().Log.Level, "invalid edit keeps previous config")

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0o644))
	// Truncating writes can surface an empty file first; wait for the final content.
	deadline := time.After(5 * time.Second)
	for got := ""; got != "warn"; {
		select {
		case got = <-levels:
		case <-deadline:
			t.Fatal("watch callback never saw the edit")
		}
	}
	assert.Equal(t, "warn", m.Get().Log.Level)
}

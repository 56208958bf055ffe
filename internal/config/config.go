// Package config loads taskd settings from defaults, an optional YAML file,
// a .env file and TASKD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sandeepkv93/taskd/internal/generator"
	"github.com/sandeepkv93/taskd/internal/logx"
)

const (
	configName = "taskd"
	envPrefix  = "TASKD"
)

type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Generation GenerationConfig `mapstructure:"generation"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type LogConfig struct {
	Level   string        `mapstructure:"level" validate:"oneof=debug info warn error"`
	Console bool          `mapstructure:"console"`
	File    LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type SchedulerConfig struct {
	Buffer          int           `mapstructure:"buffer" validate:"gte=1"`
	Timezone        string        `mapstructure:"timezone" validate:"omitempty,timezone"`
	OverdueSweep    string        `mapstructure:"overdue_sweep" validate:"required"`
	TopUpSweep      string        `mapstructure:"topup_sweep" validate:"required"`
	RestoreSweep    string        `mapstructure:"restore_sweep"`
	ArmRetries      int           `mapstructure:"arm_retries" validate:"gte=0,lte=10"`
	RedeliveryDelay time.Duration `mapstructure:"redelivery_delay" validate:"gt=0"`
}

type GenerationConfig struct {
	HardCap      int                `mapstructure:"hard_cap" validate:"gte=1,lte=100000"`
	DefaultCount int                `mapstructure:"default_count" validate:"gte=1,ltefield=HardCap"`
	HorizonDays  int                `mapstructure:"horizon_days" validate:"gte=1,lte=366"`
	WorkingHours WorkingHoursConfig `mapstructure:"working_hours"`
	// Holidays are YYYY-MM-DD dates skipped by templates that skip holidays.
	Holidays []string `mapstructure:"holidays"`
}

type WorkingHoursConfig struct {
	Start string `mapstructure:"start" validate:"clock"`
	End   string `mapstructure:"end" validate:"clock"`
}

type NotifyConfig struct {
	RatePerSec float64 `mapstructure:"rate_per_sec" validate:"gt=0"`
	Burst      int     `mapstructure:"burst" validate:"gte=1"`
	Buffer     int     `mapstructure:"buffer" validate:"gte=1"`
	Desktop    bool    `mapstructure:"desktop"`
}

// Location resolves scheduler.timezone; empty means the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

func (c *Config) WorkingHours() (generator.WorkingHours, error) {
	return generator.ParseWorkingHours(c.Generation.WorkingHours.Start, c.Generation.WorkingHours.End)
}

func (c *Config) Holidays() (generator.Holidays, error) {
	return generator.ParseHolidays(c.Generation.Holidays)
}

// Horizon is how far ahead the top-up sweep keeps instances generated.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Generation.HorizonDays) * 24 * time.Hour
}

func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Log.Level,
		Console: c.Log.Console,
		File:    logx.FileConfig{Enabled: c.Log.File.Enabled, Path: c.Log.File.Path},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.path", "./taskd.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.path", "./taskd.log")

	v.SetDefault("scheduler.buffer", 64)
	v.SetDefault("scheduler.timezone", "")
	v.SetDefault("scheduler.overdue_sweep", "@every 1m")
	v.SetDefault("scheduler.topup_sweep", "@hourly")
	v.SetDefault("scheduler.restore_sweep", "@every 1m")
	v.SetDefault("scheduler.arm_retries", 0)
	v.SetDefault("scheduler.redelivery_delay", "50ms")

	v.SetDefault("generation.hard_cap", generator.DefaultHardCap)
	v.SetDefault("generation.default_count", 10)
	v.SetDefault("generation.horizon_days", 14)
	v.SetDefault("generation.working_hours.start", "09:00")
	v.SetDefault("generation.working_hours.end", "18:00")

	v.SetDefault("notify.rate_per_sec", 5.0)
	v.SetDefault("notify.burst", 10)
	v.SetDefault("notify.buffer", 64)
	v.SetDefault("notify.desktop", false)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := time.Parse("15:04", strings.TrimSpace(fl.Field().String()))
			return err == nil
		})
	})
	return validate
}

// Validate checks field constraints and cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	if err := validatorInstance().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.WorkingHours(); err != nil {
		return fmt.Errorf("config: generation.working_hours: %w", err)
	}
	if _, err := c.Holidays(); err != nil {
		return fmt.Errorf("config: generation.holidays: %w", err)
	}
	return nil
}

// Load reads configuration once. An empty path searches ./taskd.yaml and
// $HOME/.taskd.yaml; a missing file there is not an error.
func Load(path string) (*Config, error) {
	return NewManager(path, logx.Nop()).Load()
}

// Manager owns a viper instance and the last valid Config.
type Manager struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	v   *viper.Viper
	cfg *Config
}

func NewManager(path string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{path: strings.TrimSpace(path), log: log.With(logx.String("component", "config"))}
}

func (m *Manager) Load() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if m.path != "" {
		v.SetConfigFile(m.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", m.path, err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.v = v
	m.cfg = cfg
	m.mu.Unlock()
	if used := v.ConfigFileUsed(); used != "" {
		m.log.Debug("config loaded", logx.String("file", used))
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Watch re-reads the config file on change and calls fn with each valid
// result. Invalid edits are logged and the previous config stays current.
// Watch is a no-op when no file was loaded.
func (m *Manager) Watch(fn func(*Config)) {
	m.mu.RLock()
	v := m.v
	m.mu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			m.log.Warn("config reload rejected", logx.String("file", e.Name), logx.Err(err))
			return
		}
		m.mu.Lock()
		m.cfg = cfg
		m.mu.Unlock()
		m.log.Info("config reloaded", logx.String("file", e.Name))
		if fn != nil {
			fn(cfg)
		}
	})
	v.WatchConfig()
}

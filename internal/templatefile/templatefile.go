// Package templatefile reads task templates and a holiday list from YAML.
package templatefile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/taskd/internal/generator"
	"github.com/sandeepkv93/taskd/internal/model"
)

// Wall-clock layouts accepted for start, end and absolute alert times. They
// are read in the template's timezone unless they carry an offset.
var wallLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

const dateLayout = "2006-01-02"

// File is the decoded content of one or more template files.
type File struct {
	Templates []model.TemplateInput
	Holidays  generator.Holidays
}

type document struct {
	Holidays  []string       `yaml:"holidays"`
	Templates []templateSpec `yaml:"templates"`
}

type templateSpec struct {
	ID          string         `yaml:"id"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Category    string         `yaml:"category"`
	Tags        []string       `yaml:"tags"`
	Estimate    time.Duration  `yaml:"estimate"`
	Links       []string       `yaml:"links"`
	Timezone    string         `yaml:"timezone"`
	Start       string         `yaml:"start"`
	End         string         `yaml:"end"`
	Duration    time.Duration  `yaml:"duration"`
	AllDay      bool           `yaml:"allDay"`
	Recurrence  recurrenceSpec `yaml:"recurrence"`
	Reminders   remindersSpec  `yaml:"reminders"`
	Policy      policySpec     `yaml:"policy"`
}

type recurrenceSpec struct {
	Type      string   `yaml:"type"`
	Interval  int      `yaml:"interval"`
	Weekdays  []string `yaml:"weekdays"`
	MonthDays []int    `yaml:"monthDays"`
	Months    []int    `yaml:"months"`
	Until     string   `yaml:"until"`
	Count     int      `yaml:"count"`
}

type remindersSpec struct {
	Enabled *bool       `yaml:"enabled"`
	Alerts  []alertSpec `yaml:"alerts"`
	Snooze  snoozeSpec  `yaml:"snooze"`
}

type alertSpec struct {
	ID      string        `yaml:"id"`
	Before  time.Duration `yaml:"before"`
	At      string        `yaml:"at"`
	Channel string        `yaml:"channel"`
	Message string        `yaml:"message"`
}

type snoozeSpec struct {
	Interval time.Duration `yaml:"interval"`
	MaxCount int           `yaml:"maxCount"`
}

type policySpec struct {
	AllowReschedule  bool `yaml:"allowReschedule"`
	MaxDelayDays     int  `yaml:"maxDelayDays"`
	SkipWeekends     bool `yaml:"skipWeekends"`
	SkipHolidays     bool `yaml:"skipHolidays"`
	WorkingHoursOnly bool `yaml:"workingHoursOnly"`
}

// Loader reads template files through an afero filesystem so tests can use
// an in-memory one.
type Loader struct {
	fs afero.Fs
}

func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

func NewOsLoader() *Loader {
	return NewLoader(afero.NewOsFs())
}

// Load reads a single file, or every .yaml/.yml file under a directory in
// name order. Holidays from all files are merged.
func (l *Loader) Load(path string) (*File, error) {
	isDir, err := afero.IsDir(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("templatefile: stat %s: %w", path, err)
	}
	if !isDir {
		data, err := afero.ReadFile(l.fs, path)
		if err != nil {
			return nil, fmt.Errorf("templatefile: read %s: %w", path, err)
		}
		f, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return f, nil
	}

	var paths []string
	err = afero.Walk(l.fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(info.Name())) {
		case ".yaml", ".yml":
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("templatefile: walk %s: %w", path, err)
	}
	sort.Strings(paths)

	out := &File{Holidays: generator.Holidays{}}
	for _, p := range paths {
		f, err := l.Load(p)
		if err != nil {
			return nil, err
		}
		out.Templates = append(out.Templates, f.Templates...)
		for d := range f.Holidays {
			out.Holidays[d] = struct{}{}
		}
	}
	return out, nil
}

// Parse decodes one YAML document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("templatefile: decode: %w", err)
	}

	holidays, err := generator.ParseHolidays(doc.Holidays)
	if err != nil {
		return nil, fmt.Errorf("templatefile: %w", err)
	}
	out := &File{Holidays: holidays}
	seen := make(map[string]bool, len(doc.Templates))
	for i, spec := range doc.Templates {
		in, err := spec.input()
		if err != nil {
			return nil, fmt.Errorf("templatefile: template %d (%s): %w", i, spec.label(), err)
		}
		if in.ID != "" {
			if seen[in.ID] {
				return nil, fmt.Errorf("templatefile: duplicate template id %q", in.ID)
			}
			seen[in.ID] = true
		}
		out.Templates = append(out.Templates, in)
	}
	return out, nil
}

func (s templateSpec) label() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Title
}

func (s templateSpec) input() (model.TemplateInput, error) {
	tc := model.TimeConfig{Timezone: s.Timezone}
	loc, err := tc.Location()
	if err != nil {
		return model.TemplateInput{}, err
	}

	base, err := s.base(loc)
	if err != nil {
		return model.TemplateInput{}, err
	}
	tc.Base = base
	if tc.Recurrence, err = s.Recurrence.rule(loc); err != nil {
		return model.TemplateInput{}, err
	}
	reminders, err := s.Reminders.config(loc)
	if err != nil {
		return model.TemplateInput{}, err
	}

	return model.TemplateInput{
		ID:          strings.TrimSpace(s.ID),
		Title:       s.Title,
		Description: s.Description,
		Metadata: model.Metadata{
			Category:          s.Category,
			Tags:              s.Tags,
			EstimatedDuration: s.Estimate,
			KeyResultLinks:    s.Links,
		},
		TimeConfig: tc,
		Reminders:  reminders,
		Policy: model.SchedulingPolicy{
			AllowReschedule:  s.Policy.AllowReschedule,
			MaxDelayDays:     s.Policy.MaxDelayDays,
			SkipWeekends:     s.Policy.SkipWeekends,
			SkipHolidays:     s.Policy.SkipHolidays,
			WorkingHoursOnly: s.Policy.WorkingHoursOnly,
		},
	}, nil
}

func (s templateSpec) base(loc *time.Location) (model.BaseTime, error) {
	if s.AllDay {
		if s.End != "" || s.Duration != 0 {
			return nil, fmt.Errorf("all-day templates take neither end nor duration")
		}
		d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s.Start), loc)
		if err != nil {
			return nil, fmt.Errorf("start: want YYYY-MM-DD for an all-day template: %w", err)
		}
		return model.AllDay{Date: d}, nil
	}
	start, err := parseWall(s.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if s.End != "" {
		if s.Duration != 0 {
			return nil, fmt.Errorf("end and duration are mutually exclusive")
		}
		end, err := parseWall(s.End, loc)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return model.TimeRange{Start: start, End: end}, nil
	}
	return model.Timed{Start: start, Duration: s.Duration}, nil
}

func (r recurrenceSpec) rule(loc *time.Location) (model.RecurrenceRule, error) {
	rule := model.RecurrenceRule{
		Type:     model.RecurrenceType(strings.ToLower(strings.TrimSpace(r.Type))),
		Interval: r.Interval,
		End:      model.EndCondition{Type: model.EndNever},
		Config:   model.RecurrenceConfig{MonthDays: r.MonthDays},
	}
	if r.Type == "" {
		rule.Type = model.RecurrenceNone
	}
	if rule.Interval == 0 {
		rule.Interval = 1
	}
	for _, w := range r.Weekdays {
		day, err := parseWeekday(w)
		if err != nil {
			return model.RecurrenceRule{}, err
		}
		rule.Config.Weekdays = append(rule.Config.Weekdays, day)
	}
	for _, m := range r.Months {
		rule.Config.Months = append(rule.Config.Months, time.Month(m))
	}
	switch {
	case r.Until != "" && r.Count != 0:
		return model.RecurrenceRule{}, fmt.Errorf("recurrence: until and count are mutually exclusive")
	case r.Until != "":
		until, err := parseUntil(r.Until, loc)
		if err != nil {
			return model.RecurrenceRule{}, fmt.Errorf("recurrence.until: %w", err)
		}
		rule.End = model.EndCondition{Type: model.EndDate, Date: until}
	case r.Count != 0:
		rule.End = model.EndCondition{Type: model.EndCount, Count: r.Count}
	}
	return rule, nil
}

func (r remindersSpec) config(loc *time.Location) (model.ReminderConfig, error) {
	cfg := model.ReminderConfig{Enabled: len(r.Alerts) > 0}
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	for i, a := range r.Alerts {
		alert := model.ReminderAlert{
			ID:      strings.TrimSpace(a.ID),
			Channel: model.Channel(strings.ToLower(strings.TrimSpace(a.Channel))),
			Message: a.Message,
		}
		if alert.ID == "" {
			alert.ID = fmt.Sprintf("alert-%d", i+1)
		}
		switch {
		case a.At != "" && a.Before != 0:
			return model.ReminderConfig{}, fmt.Errorf("alert %s: before and at are mutually exclusive", alert.ID)
		case a.At != "":
			at, err := parseWall(a.At, loc)
			if err != nil {
				return model.ReminderConfig{}, fmt.Errorf("alert %s: at: %w", alert.ID, err)
			}
			alert.Timing = model.Absolute(at)
		default:
			if a.Before%time.Minute != 0 {
				return model.ReminderConfig{}, fmt.Errorf("alert %s: before %s is not whole minutes", alert.ID, a.Before)
			}
			alert.Timing = model.Relative(int(a.Before / time.Minute))
		}
		cfg.Alerts = append(cfg.Alerts, alert)
	}
	if r.Snooze.Interval > 0 || r.Snooze.MaxCount > 0 {
		cfg.Snooze = model.SnoozePolicy{Enabled: true, Interval: r.Snooze.Interval, MaxCount: r.Snooze.MaxCount}
	}
	return cfg, nil
}

func parseWall(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, fmt.Errorf("required")
	}
	for _, layout := range wallLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a local date-time", v)
}

// parseUntil accepts a date, meaning the end of that day, or a date-time.
func parseUntil(v string, loc *time.Location) (time.Time, error) {
	if d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(v), loc); err == nil {
		return d.AddDate(0, 0, 1).Add(-time.Second), nil
	}
	return parseWall(v, loc)
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekday(v string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	if len(key) >= 3 {
		if d, ok := weekdays[key[:3]]; ok {
			return d, nil
		}
	}
	return 0, fmt.Errorf("recurrence: unknown weekday %q", v)
}

package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BusinessHoursStrategy selects how projected and live sends behave outside
// the owner's business hours.
type BusinessHoursStrategy string

const (
	BusinessHoursIgnore BusinessHoursStrategy = "IGNORE"
	BusinessHoursPause  BusinessHoursStrategy = "PAUSE"
)

func (s BusinessHoursStrategy) String() string { return string(s) }

func (s BusinessHoursStrategy) IsValid() bool {
	switch s {
	case BusinessHoursIgnore, BusinessHoursPause:
		return true
	}
	return false
}

func ParseBusinessHoursStrategyFromString(s string) (BusinessHoursStrategy, error) {
	strategy := BusinessHoursStrategy(strings.ToUpper(strings.TrimSpace(s)))
	if !strategy.IsValid() {
		return "", fmt.Errorf("%w: invalid business hours strategy %q", ErrValidation, s)
	}
	return strategy, nil
}

const scheduleConfigVersion = 1

// Safe pacing fallbacks applied when a persisted config carries no interval
// bounds. Aborting on a misconfigured campaign would strand its messages.
const (
	DefaultMinIntervalSec = 10
	DefaultMaxIntervalSec = 30
)

// Clock is a time-of-day in HH:MM form, recurring daily.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, fmt.Errorf("%w: invalid clock time %q", ErrValidation, s)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("%w: clock time %q out of range", ErrValidation, s)
	}
	return c, nil
}

// Minutes returns the minute offset from midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// OnDay returns the instant this time-of-day occurs on t's calendar day.
func (c Clock) OnDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, 0, 0, t.Location())
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// AutomaticPause is a one-shot pause window: the campaign stops sending once
// the daily pauseAt time-of-day is crossed and resumes at a single future
// resume instant. After that instant has passed the rule never fires again.
type AutomaticPause struct {
	PauseAt    string `json:"pauseAt"`    // HH:MM
	ResumeDate string `json:"resumeDate"` // YYYY-MM-DD
	ResumeTime string `json:"resumeTime"` // HH:MM
}

// ResumeInstant combines ResumeDate and ResumeTime in the given location.
func (p *AutomaticPause) ResumeInstant(loc *time.Location) (time.Time, bool) {
	if p == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", p.ResumeDate+" "+p.ResumeTime, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ScheduleConfig is the pacing configuration of a campaign. It is persisted
// as a versioned JSONB blob on the campaign row and fully defaulted via
// Normalize, never an open map.
type ScheduleConfig struct {
	Version               int                   `json:"version"`
	MinIntervalSec        int                   `json:"minIntervalSec"`
	MaxIntervalSec        int                   `json:"maxIntervalSec"`
	UseBatching           bool                  `json:"useBatching"`
	BatchSize             int                   `json:"batchSize,omitempty"`
	BatchPauseMinSec      int                   `json:"batchPauseMinSec,omitempty"`
	BatchPauseMaxSec      int                   `json:"batchPauseMaxSec,omitempty"`
	BusinessHoursStrategy BusinessHoursStrategy `json:"businessHoursStrategy"`
	PauseTime             string                `json:"pauseTime,omitempty"`  // HH:MM
	ResumeTime            string                `json:"resumeTime,omitempty"` // HH:MM
	AutomaticPause        *AutomaticPause       `json:"automaticPause,omitempty"`
	StartTime             time.Time             `json:"startTime"`
}

// Normalize fills defaults for every optional field so downstream code never
// sees a partially-specified config.
func (c *ScheduleConfig) Normalize() {
	if c.Version <= 0 {
		c.Version = scheduleConfigVersion
	}
	if c.MinIntervalSec <= 0 && c.MaxIntervalSec <= 0 {
		c.MinIntervalSec = DefaultMinIntervalSec
		c.MaxIntervalSec = DefaultMaxIntervalSec
	}
	if c.MinIntervalSec < 0 {
		c.MinIntervalSec = 0
	}
	if c.MaxIntervalSec < c.MinIntervalSec {
		c.MaxIntervalSec = c.MinIntervalSec
	}
	if c.UseBatching && c.BatchSize < 1 {
		c.UseBatching = false
	}
	if c.BatchPauseMaxSec < c.BatchPauseMinSec {
		c.BatchPauseMaxSec = c.BatchPauseMinSec
	}
	if c.BusinessHoursStrategy == "" {
		c.BusinessHoursStrategy = BusinessHoursIgnore
	}
}

func (c *ScheduleConfig) Validate() error {
	if c.MinIntervalSec < 0 {
		return fmt.Errorf("%w: minIntervalSec must be >= 0", ErrValidation)
	}
	if c.MaxIntervalSec < c.MinIntervalSec {
		return fmt.Errorf("%w: maxIntervalSec must be >= minIntervalSec", ErrValidation)
	}
	if !c.BusinessHoursStrategy.IsValid() {
		return fmt.Errorf("%w: invalid business hours strategy %q", ErrValidation, c.BusinessHoursStrategy)
	}
	if c.BusinessHoursStrategy == BusinessHoursPause {
		if _, err := ParseClock(c.PauseTime); err != nil {
			return fmt.Errorf("pause time: %w", err)
		}
		if _, err := ParseClock(c.ResumeTime); err != nil {
			return fmt.Errorf("resume time: %w", err)
		}
	}
	if c.UseBatching {
		if c.BatchSize < 1 {
			return fmt.Errorf("%w: batchSize must be >= 1 when batching is enabled", ErrValidation)
		}
		if c.BatchPauseMinSec < 0 || c.BatchPauseMaxSec < c.BatchPauseMinSec {
			return fmt.Errorf("%w: batch pause bounds out of order", ErrValidation)
		}
	}
	if p := c.AutomaticPause; p != nil {
		if _, err := ParseClock(p.PauseAt); err != nil {
			return fmt.Errorf("automatic pause: %w", err)
		}
		if _, ok := p.ResumeInstant(c.StartTime.Location()); !ok {
			return fmt.Errorf("%w: invalid automatic pause resume date/time", ErrValidation)
		}
	}
	return nil
}

// AverageInterval is the deterministic per-message advance used by the
// schedule projection.
func (c *ScheduleConfig) AverageInterval() time.Duration {
	return time.Duration(c.MinIntervalSec+c.MaxIntervalSec) * time.Second / 2
}

// AverageBatchPause is the deterministic batch pause used by the projection.
func (c *ScheduleConfig) AverageBatchPause() time.Duration {
	return time.Duration(c.BatchPauseMinSec+c.BatchPauseMaxSec) * time.Second / 2
}

// Value implements driver.Valuer for JSONB persistence.
func (c ScheduleConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule config: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB persistence.
func (c *ScheduleConfig) Scan(value any) error {
	if value == nil {
		*c = ScheduleConfig{}
		c.Normalize()
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported schedule config source type %T", value)
	}

	if err := json.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to unmarshal schedule config: %w", err)
	}
	c.Normalize()
	return nil
}

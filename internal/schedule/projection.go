// Package schedule implements the deterministic send-time projection and the
// campaign overlap guard. Nothing in this package performs I/O; the dispatch
// engine shares its pause rules but paces against real queries and real time.
package schedule

import (
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
)

// ScheduledMessage is one projected send slot. It is never persisted; it only
// feeds preview display and conflict math.
type ScheduledMessage struct {
	Index    int
	SendTime time.Time
}

// Project computes the estimated send instant of every message in a campaign.
// It is pure and deterministic: per-message advancement uses the average of
// the jitter bounds rather than a random draw, trading delivery-time accuracy
// for restartable, repeatable output.
func Project(cfg domain.ScheduleConfig, count int) []ScheduledMessage {
	cfg.Normalize()

	result := make([]ScheduledMessage, 0, count)
	clock := cfg.StartTime
	resume, hasResume := cfg.AutomaticPause.ResumeInstant(clock.Location())

	for i := 0; i < count; i++ {
		if i > 0 {
			clock = clock.Add(cfg.AverageInterval())
			if cfg.UseBatching && i%cfg.BatchSize == 0 {
				clock = clock.Add(cfg.AverageBatchPause())
			}
		}

		clock = applyOneShotPause(cfg, clock, resume, hasResume)
		clock = applyBusinessHours(cfg, clock, resume, hasResume)

		result = append(result, ScheduledMessage{Index: i, SendTime: clock})
	}

	return result
}

// ProjectedEnd returns the last projected send instant, or the configured
// start when the campaign has no messages.
func ProjectedEnd(cfg domain.ScheduleConfig, count int) time.Time {
	cfg.Normalize()
	if count <= 0 {
		return cfg.StartTime
	}
	projected := Project(cfg, count)
	return projected[len(projected)-1].SendTime
}

// EvaluatePause reports whether dispatching at the given instant is blocked by
// the one-shot automatic pause or the recurring business-hours rule. The
// dispatch engine calls this with wall-clock time before every campaign pass.
func EvaluatePause(cfg domain.ScheduleConfig, now time.Time) bool {
	cfg.Normalize()
	resume, hasResume := cfg.AutomaticPause.ResumeInstant(now.Location())
	if oneShotPauseActive(cfg, now, resume, hasResume) {
		return true
	}
	return businessHoursPauseActive(cfg, now)
}

// applyOneShotPause snaps the clock forward to the one-shot resume instant
// when the clock sits inside the pause window. Past the resume instant the
// rule is spent and never fires again.
func applyOneShotPause(cfg domain.ScheduleConfig, clock, resume time.Time, hasResume bool) time.Time {
	if oneShotPauseActive(cfg, clock, resume, hasResume) {
		return resume
	}
	return clock
}

func oneShotPauseActive(cfg domain.ScheduleConfig, clock, resume time.Time, hasResume bool) bool {
	if !hasResume || !clock.Before(resume) {
		return false
	}
	pauseAt, err := domain.ParseClock(cfg.AutomaticPause.PauseAt)
	if err != nil {
		return false
	}
	return minutesOfDay(clock) >= pauseAt.Minutes() || dateAfter(clock, cfg.StartTime)
}

// applyBusinessHours advances the clock to the next daily resume time when it
// falls inside the nightly pause window, then re-applies the one-shot rule:
// the jump may land back inside or past the one-shot window.
func applyBusinessHours(cfg domain.ScheduleConfig, clock, resume time.Time, hasResume bool) time.Time {
	if !businessHoursPauseActive(cfg, clock) {
		return clock
	}

	resumeClock, err := domain.ParseClock(cfg.ResumeTime)
	if err != nil {
		return clock
	}
	pauseClock, err := domain.ParseClock(cfg.PauseTime)
	if err != nil {
		return clock
	}

	if minutesOfDay(clock) >= pauseClock.Minutes() {
		// Crossed the pause boundary forward; resume is tomorrow morning.
		clock = resumeClock.OnDay(clock.AddDate(0, 0, 1))
	} else {
		clock = resumeClock.OnDay(clock)
	}

	return applyOneShotPause(cfg, clock, resume, hasResume)
}

func businessHoursPauseActive(cfg domain.ScheduleConfig, clock time.Time) bool {
	if cfg.BusinessHoursStrategy != domain.BusinessHoursPause {
		return false
	}
	pauseClock, err := domain.ParseClock(cfg.PauseTime)
	if err != nil {
		return false
	}
	resumeClock, err := domain.ParseClock(cfg.ResumeTime)
	if err != nil {
		return false
	}

	tod := minutesOfDay(clock)
	return tod >= pauseClock.Minutes() || tod < resumeClock.Minutes()
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func dateAfter(t, ref time.Time) bool {
	ty, tm, td := t.Date()
	ry, rm, rd := ref.Date()
	if ty != ry {
		return ty > ry
	}
	if tm != rm {
		return tm > rm
	}
	return td > rd
}

package schedule

import (
	"testing"
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatalf("failed to parse time %q: %v", value, err)
	}
	return parsed
}

func TestProjectUniformSpacing(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2026-03-02 10:00:00")
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        20,
		MaxIntervalSec:        40,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		StartTime:             start,
	}

	got := Project(cfg, 3)
	if len(got) != 3 {
		t.Fatalf("Project() returned %d slots, want 3", len(got))
	}

	want := []time.Time{
		start,
		start.Add(30 * time.Second),
		start.Add(60 * time.Second),
	}
	for i, slot := range got {
		if slot.Index != i {
			t.Fatalf("slot %d index = %d", i, slot.Index)
		}
		if !slot.SendTime.Equal(want[i]) {
			t.Fatalf("slot %d send time = %s, want %s", i, slot.SendTime, want[i])
		}
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	t.Parallel()

	cfg := domain.ScheduleConfig{
		MinIntervalSec:        10,
		MaxIntervalSec:        50,
		UseBatching:           true,
		BatchSize:             3,
		BatchPauseMinSec:      60,
		BatchPauseMaxSec:      120,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		StartTime:             mustTime(t, "2026-03-02 10:00:00"),
	}

	first := Project(cfg, 20)
	second := Project(cfg, 20)
	for i := range first {
		if !first[i].SendTime.Equal(second[i].SendTime) {
			t.Fatalf("slot %d differs between runs: %s vs %s", i, first[i].SendTime, second[i].SendTime)
		}
	}
}

func TestProjectMonotonicNonDecreasing(t *testing.T) {
	t.Parallel()

	cfg := domain.ScheduleConfig{
		MinIntervalSec:        30,
		MaxIntervalSec:        30,
		UseBatching:           true,
		BatchSize:             5,
		BatchPauseMinSec:      300,
		BatchPauseMaxSec:      300,
		BusinessHoursStrategy: domain.BusinessHoursPause,
		PauseTime:             "18:00",
		ResumeTime:            "08:00",
		StartTime:             mustTime(t, "2026-03-02 16:00:00"),
	}

	got := Project(cfg, 300)
	for i := 1; i < len(got); i++ {
		if got[i].SendTime.Before(got[i-1].SendTime) {
			t.Fatalf("slot %d (%s) precedes slot %d (%s)", i, got[i].SendTime, i-1, got[i-1].SendTime)
		}
	}
}

func TestProjectBatchPause(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2026-03-02 10:00:00")
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        30,
		MaxIntervalSec:        30,
		UseBatching:           true,
		BatchSize:             2,
		BatchPauseMinSec:      60,
		BatchPauseMaxSec:      60,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		StartTime:             start,
	}

	got := Project(cfg, 5)
	want := []time.Time{
		start,
		start.Add(30 * time.Second),
		start.Add(120 * time.Second), // interval plus batch pause after the second message
		start.Add(150 * time.Second),
		start.Add(240 * time.Second),
	}
	for i := range want {
		if !got[i].SendTime.Equal(want[i]) {
			t.Fatalf("slot %d send time = %s, want %s", i, got[i].SendTime, want[i])
		}
	}
}

func TestProjectBusinessHoursJumpToNextMorning(t *testing.T) {
	t.Parallel()

	cfg := domain.ScheduleConfig{
		MinIntervalSec:        30,
		MaxIntervalSec:        30,
		BusinessHoursStrategy: domain.BusinessHoursPause,
		PauseTime:             "18:00",
		ResumeTime:            "08:00",
		StartTime:             mustTime(t, "2026-03-02 17:59:50"),
	}

	got := Project(cfg, 3)

	// 17:59:50 is still inside business hours at minute granularity.
	if !got[0].SendTime.Equal(cfg.StartTime) {
		t.Fatalf("slot 0 = %s, want %s", got[0].SendTime, cfg.StartTime)
	}
	// 18:00:20 crosses the boundary and snaps to the next morning.
	wantResume := mustTime(t, "2026-03-03 08:00:00")
	if !got[1].SendTime.Equal(wantResume) {
		t.Fatalf("slot 1 = %s, want %s", got[1].SendTime, wantResume)
	}
	if !got[2].SendTime.Equal(wantResume.Add(30 * time.Second)) {
		t.Fatalf("slot 2 = %s, want %s", got[2].SendTime, wantResume.Add(30*time.Second))
	}
}

func TestProjectBusinessHoursContainment(t *testing.T) {
	t.Parallel()

	cfg := domain.ScheduleConfig{
		MinIntervalSec:        600,
		MaxIntervalSec:        600,
		BusinessHoursStrategy: domain.BusinessHoursPause,
		PauseTime:             "18:00",
		ResumeTime:            "08:00",
		StartTime:             mustTime(t, "2026-03-02 09:00:00"),
	}

	for _, slot := range Project(cfg, 200) {
		tod := slot.SendTime.Hour()*60 + slot.SendTime.Minute()
		if tod >= 18*60 || tod < 8*60 {
			t.Fatalf("slot %d at %s falls outside business hours", slot.Index, slot.SendTime)
		}
	}
}

func TestProjectBusinessHoursIgnoreNeverJumps(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2026-03-02 23:50:00")
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        60,
		MaxIntervalSec:        60,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		StartTime:             start,
	}

	got := Project(cfg, 4)
	for i, slot := range got {
		want := start.Add(time.Duration(i) * time.Minute)
		if !slot.SendTime.Equal(want) {
			t.Fatalf("slot %d = %s, want %s", i, slot.SendTime, want)
		}
	}
}

func TestProjectOneShotPause(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2026-03-02 21:00:00")
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        1800,
		MaxIntervalSec:        1800,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		AutomaticPause: &domain.AutomaticPause{
			PauseAt:    "22:00",
			ResumeDate: "2026-03-03",
			ResumeTime: "09:00",
		},
		StartTime: start,
	}

	got := Project(cfg, 4)
	resume := mustTime(t, "2026-03-03 09:00:00")
	want := []time.Time{
		start,
		start.Add(30 * time.Minute),
		resume, // 22:00 crosses pauseAt and snaps to the resume instant
		resume.Add(30 * time.Minute),
	}
	for i := range want {
		if !got[i].SendTime.Equal(want[i]) {
			t.Fatalf("slot %d = %s, want %s", i, got[i].SendTime, want[i])
		}
	}
}

func TestProjectOneShotSpentAfterResume(t *testing.T) {
	t.Parallel()

	// Start after the resume instant: the rule must never fire.
	start := mustTime(t, "2026-03-04 23:00:00")
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        60,
		MaxIntervalSec:        60,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		AutomaticPause: &domain.AutomaticPause{
			PauseAt:    "22:00",
			ResumeDate: "2026-03-03",
			ResumeTime: "09:00",
		},
		StartTime: start,
	}

	got := Project(cfg, 3)
	for i, slot := range got {
		want := start.Add(time.Duration(i) * time.Minute)
		if !slot.SendTime.Equal(want) {
			t.Fatalf("slot %d = %s, want %s", i, slot.SendTime, want)
		}
	}
}

func TestProjectOneShotReappliedAfterBusinessHoursJump(t *testing.T) {
	t.Parallel()

	// The nightly jump lands at 08:00, but the one-shot window is still open
	// until 09:00 that day, so the slot must land on the one-shot resume.
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        30,
		MaxIntervalSec:        30,
		BusinessHoursStrategy: domain.BusinessHoursPause,
		PauseTime:             "18:00",
		ResumeTime:            "08:00",
		AutomaticPause: &domain.AutomaticPause{
			PauseAt:    "23:00",
			ResumeDate: "2026-03-03",
			ResumeTime: "09:00",
		},
		StartTime: mustTime(t, "2026-03-02 17:59:50"),
	}

	got := Project(cfg, 2)
	wantResume := mustTime(t, "2026-03-03 09:00:00")
	if !got[1].SendTime.Equal(wantResume) {
		t.Fatalf("slot 1 = %s, want one-shot resume %s", got[1].SendTime, wantResume)
	}
}

func TestProjectedEnd(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2026-03-02 10:00:00")
	cfg := domain.ScheduleConfig{
		MinIntervalSec:        30,
		MaxIntervalSec:        30,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		StartTime:             start,
	}

	if got := ProjectedEnd(cfg, 0); !got.Equal(start) {
		t.Fatalf("ProjectedEnd(0) = %s, want start %s", got, start)
	}
	if got := ProjectedEnd(cfg, 5); !got.Equal(start.Add(2 * time.Minute)) {
		t.Fatalf("ProjectedEnd(5) = %s, want %s", got, start.Add(2*time.Minute))
	}
}

func TestEvaluatePause(t *testing.T) {
	t.Parallel()

	businessHours := domain.ScheduleConfig{
		MinIntervalSec:        10,
		MaxIntervalSec:        30,
		BusinessHoursStrategy: domain.BusinessHoursPause,
		PauseTime:             "18:00",
		ResumeTime:            "08:00",
		StartTime:             mustTime(t, "2026-03-02 09:00:00"),
	}
	oneShot := domain.ScheduleConfig{
		MinIntervalSec:        10,
		MaxIntervalSec:        30,
		BusinessHoursStrategy: domain.BusinessHoursIgnore,
		AutomaticPause: &domain.AutomaticPause{
			PauseAt:    "22:00",
			ResumeDate: "2026-03-03",
			ResumeTime: "09:00",
		},
		StartTime: mustTime(t, "2026-03-02 20:00:00"),
	}

	tests := []struct {
		name string
		cfg  domain.ScheduleConfig
		now  string
		want bool
	}{
		{name: "inside business hours", cfg: businessHours, now: "2026-03-02 12:00:00", want: false},
		{name: "evening pause", cfg: businessHours, now: "2026-03-02 23:00:00", want: true},
		{name: "early morning pause", cfg: businessHours, now: "2026-03-03 06:30:00", want: true},
		{name: "exactly at resume", cfg: businessHours, now: "2026-03-03 08:00:00", want: false},
		{name: "one-shot before pauseAt", cfg: oneShot, now: "2026-03-02 21:00:00", want: false},
		{name: "one-shot window open", cfg: oneShot, now: "2026-03-02 23:00:00", want: true},
		{name: "one-shot next day before resume", cfg: oneShot, now: "2026-03-03 08:00:00", want: true},
		{name: "one-shot spent", cfg: oneShot, now: "2026-03-03 10:00:00", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := EvaluatePause(tt.cfg, mustTime(t, tt.now)); got != tt.want {
				t.Fatalf("EvaluatePause() = %v, want %v", got, tt.want)
			}
		})
	}
}

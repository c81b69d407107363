package schedule

import (
	"time"

	"github.com/pacedrop/campaign-scheduler/internal/domain"
)

// Campaigns from the same owner share one outbound channel; overlapping
// schedules would interleave pacing and defeat the jitter, so windows must be
// serialized with a safety margin on both sides.
const (
	ConflictBuffer   = 60 * time.Minute
	suggestedTimeGap = 5 * time.Minute
)

// Conflict is the outcome of an overlap check against an owner's existing
// campaigns.
type Conflict struct {
	HasConflict   bool
	CampaignID    string
	CampaignName  string
	SuggestedTime *time.Time
}

// CheckConflict projects the new campaign's window and tests it against every
// non-terminal existing campaign, buffered by ConflictBuffer on both sides.
// The first overlapping campaign wins; candidates are not ranked by proximity.
// The suggested start clears the conflicting window plus a small gap.
func CheckConflict(newCfg domain.ScheduleConfig, newCount int, existing []domain.Campaign) Conflict {
	newCfg.Normalize()
	newStart := newCfg.StartTime
	newEnd := ProjectedEnd(newCfg, newCount)

	for i := range existing {
		c := &existing[i]
		if c.Status.IsTerminal() {
			continue
		}

		cfg := c.Config
		cfg.Normalize()
		cfg.StartTime = c.StartReference()

		existingStart := cfg.StartTime
		existingEnd := ProjectedEnd(cfg, c.TotalMessages)

		if newEnd.After(existingStart.Add(-ConflictBuffer)) && newStart.Before(existingEnd.Add(ConflictBuffer)) {
			suggested := existingEnd.Add(ConflictBuffer + suggestedTimeGap)
			return Conflict{
				HasConflict:   true,
				CampaignID:    c.ID,
				CampaignName:  c.Name,
				SuggestedTime: &suggested,
			}
		}
	}

	return Conflict{}
}

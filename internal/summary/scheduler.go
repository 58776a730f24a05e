// Package summary schedules periodic conversation digests.
package summary

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/toran-bot/engage/internal/model"
)

// Config controls where period boundaries fall.
type Config struct {
	// WeeklyBoundaryDay is the weekday a new weekly window opens.
	WeeklyBoundaryDay time.Weekday
	// WeeklyBoundaryHour is the hour (0-23) the weekly window opens.
	WeeklyBoundaryHour int
	// Location resolves boundary wall-clock times. Defaults to UTC.
	Location *time.Location
}

// Scheduler decides when summary jobs are due for a chat. Boundaries are
// fixed wall-clock instants, so a job's window is identical no matter how
// late the tick that produces it fires.
type Scheduler struct {
	day  time.Weekday
	hour int
	loc  *time.Location
}

// NewScheduler creates a scheduler. The zero Config means weekly windows
// open Sunday 00:00 UTC; pass time.Monday for Monday boundaries.
func NewScheduler(cfg Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{day: cfg.WeeklyBoundaryDay, hour: cfg.WeeklyBoundaryHour, loc: loc}
}

// Due returns the summary jobs due for the chat at now and advances the
// chat's summary cursors to the crossed boundaries. Calling Due again at
// the same instant returns nothing. The caller owns persisting state.
//
// A chat seen for the first time has its cursors initialized to the
// current boundaries without emitting, so history from before tracking
// began is never summarized.
func (s *Scheduler) Due(state *model.ConversationState, now time.Time) []model.SummaryJob {
	var jobs []model.SummaryJob

	wb := s.lastWeeklyBoundary(now)
	switch {
	case state.LastWeeklySummaryAt.IsZero():
		state.LastWeeklySummaryAt = wb
	case state.LastWeeklySummaryAt.Before(wb):
		jobs = append(jobs, s.newJob(state, model.PeriodWeekly, wb.AddDate(0, 0, -7), wb, false))
		state.LastWeeklySummaryAt = wb
	}

	mb := s.lastMonthlyBoundary(now)
	switch {
	case state.LastMonthlySummaryAt.IsZero():
		state.LastMonthlySummaryAt = mb
	case state.LastMonthlySummaryAt.Before(mb):
		jobs = append(jobs, s.newJob(state, model.PeriodMonthly, mb.AddDate(0, -1, 0), mb, false))
		state.LastMonthlySummaryAt = mb
	}

	return jobs
}

// Manual returns an on-demand job covering the trailing period up to now.
// Manual jobs never move the periodic cursors.
func (s *Scheduler) Manual(state *model.ConversationState, period model.Period, now time.Time) model.SummaryJob {
	start := now.AddDate(0, 0, -7)
	if period == model.PeriodMonthly {
		start = now.AddDate(0, -1, 0)
	}
	return s.newJob(state, period, start, now, true)
}

func (s *Scheduler) newJob(state *model.ConversationState, period model.Period, start, end time.Time, manual bool) model.SummaryJob {
	var excluded []string
	for u := range state.OptedOutUsers {
		excluded = append(excluded, u)
	}
	sort.Strings(excluded)

	return model.SummaryJob{
		ID:            uuid.NewString(),
		ChatID:        state.ChatID,
		Period:        period,
		WindowStart:   start,
		WindowEnd:     end,
		ExcludedUsers: excluded,
		Manual:        manual,
	}
}

// lastWeeklyBoundary returns the most recent weekly boundary at or
// before now.
func (s *Scheduler) lastWeeklyBoundary(now time.Time) time.Time {
	now = now.In(s.loc)
	b := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, s.loc)
	for b.After(now) || b.Weekday() != s.day {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

// lastMonthlyBoundary returns midnight on the first of the current month.
func (s *Scheduler) lastMonthlyBoundary(now time.Time) time.Time {
	now = now.In(s.loc)
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
}

package model

import (
	"time"
)

// Period is the summary cadence.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ValidPeriod reports whether p is a recognized period.
func ValidPeriod(p Period) bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// SummaryJob is a request for a digest of one chat over one window.
// ExcludedUsers is a snapshot of the chat's opt-outs at trigger time.
type SummaryJob struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chat_id"`
	Period        Period    `json:"period"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	ExcludedUsers []string  `json:"excluded_users,omitempty"`
	Manual        bool      `json:"manual,omitempty"`
}

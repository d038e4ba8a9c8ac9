package dto

import (
	"time"

	"github.com/customeros/mailtriage/internal/enum"
)

type SyncReport struct {
	Status     enum.SyncStatus `json:"status"`
	FetchCalls int             `json:"fetchCalls"`
	Batches    int             `json:"batches"`
	Fetched    int             `json:"fetched"`
	Inserted   int             `json:"inserted"`
	Updated    int             `json:"updated"`
	Unchanged  int             `json:"unchanged"`
	Mailboxes  int             `json:"mailboxes"`
	Cursor     Cursor          `json:"cursor"`
	Truncated  bool            `json:"truncated"`
	Error      string          `json:"error,omitempty"`
}

type ClassifyReport struct {
	Status            enum.ClassifyStatus `json:"status"`
	Selected          int                 `json:"selected"`
	Classified        int                 `json:"classified"`
	RulesClassified   int                 `json:"rulesClassified"`
	TransientFailures int                 `json:"transientFailures"`
	PermanentFailures int                 `json:"permanentFailures"`
	ExternalCalls     int                 `json:"externalCalls"`
	BudgetExceeded    bool                `json:"budgetExceeded"`
	DailyRemaining    *float64            `json:"dailyRemaining,omitempty"`
	MonthlyRemaining  *float64            `json:"monthlyRemaining,omitempty"`
	Error             string              `json:"error,omitempty"`
}

type CycleReport struct {
	CycleID    string           `json:"cycleId"`
	Tenant     string           `json:"tenant"`
	Status     enum.CycleStatus `json:"status"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Sync       *SyncReport      `json:"sync,omitempty"`
	Classify   *ClassifyReport  `json:"classify,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type SchedulerStatus struct {
	State               enum.SchedulerState `json:"state"`
	LastCycle           *CycleReport        `json:"lastCycle,omitempty"`
	ConsecutiveFailures int                 `json:"consecutiveFailures"`
	SkippedTicks        int64               `json:"skippedTicks"`
}

type BudgetStatus struct {
	DailySpent       float64  `json:"dailySpent"`
	MonthlySpent     float64  `json:"monthlySpent"`
	DailyRemaining   *float64 `json:"dailyRemaining,omitempty"`
	MonthlyRemaining *float64 `json:"monthlyRemaining,omitempty"`
}

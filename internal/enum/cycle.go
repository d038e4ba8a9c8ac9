package enum

type SchedulerState string

const (
	StateIdle            SchedulerState = "IDLE"
	StateRunningSync     SchedulerState = "RUNNING_SYNC"
	StateRunningClassify SchedulerState = "RUNNING_CLASSIFY"
	StateStopped         SchedulerState = "STOPPED"
)

func (t SchedulerState) String() string {
	return string(t)
}

type SyncStatus string

const (
	SyncStatusOK             SyncStatus = "ok"
	SyncStatusSourceNotFound SyncStatus = "source_not_found"
	SyncStatusTruncated      SyncStatus = "truncated"
	SyncStatusFailed         SyncStatus = "failed"
)

func (t SyncStatus) String() string {
	return string(t)
}

type ClassifyStatus string

const (
	ClassifyStatusOK             ClassifyStatus = "ok"
	ClassifyStatusBudgetExceeded ClassifyStatus = "budget_exceeded"
	ClassifyStatusInterrupted    ClassifyStatus = "interrupted"
	ClassifyStatusFailed         ClassifyStatus = "failed"
)

func (t ClassifyStatus) String() string {
	return string(t)
}

type CycleStatus string

const (
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusFailed    CycleStatus = "failed"
	CycleStatusSkipped   CycleStatus = "skipped"
)

func (t CycleStatus) String() string {
	return string(t)
}

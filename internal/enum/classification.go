package enum

type ClassificationStatus string

const (
	ClassificationPending         ClassificationStatus = "pending"
	ClassificationDone            ClassificationStatus = "classified"
	ClassificationFailedPermanent ClassificationStatus = "failed_permanent"
)

func (t ClassificationStatus) String() string {
	return string(t)
}

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

func (t Urgency) String() string {
	return string(t)
}

// ModelRules marks classifications produced locally without an external call
const ModelRules = "rules"

type BudgetPeriod string

const (
	BudgetPeriodDay   BudgetPeriod = "day"
	BudgetPeriodMonth BudgetPeriod = "month"
)

func (t BudgetPeriod) String() string {
	return string(t)
}

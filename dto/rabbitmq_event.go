package dto

import "github.com/customeros/mailtriage/internal/enum"

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string          `json:"id"`
	Tenant     string          `json:"tenant"`
	EntityId   string          `json:"entityId"`
	EntityType enum.EntityType `json:"entityType"`
	EventType  string          `json:"eventType"`
	Data       interface{}     `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	CycleId     string `json:"cycleId,omitempty"`
	Timestamp   string `json:"timestamp"`
}

type CycleCompleted struct {
	Report *CycleReport `json:"report"`
}

type MessageClassified struct {
	MessageID   string  `json:"messageId"`
	SourceRowID int64   `json:"sourceRowId"`
	Label       string  `json:"label"`
	Urgency     string  `json:"urgency"`
	Confidence  float64 `json:"confidence"`
	ModelUsed   string  `json:"modelUsed"`
}

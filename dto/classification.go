package dto

type ClassificationRequest struct {
	Subject        string `json:"subject"`
	ContentSnippet string `json:"content_snippet"`
	Model          string `json:"model,omitempty"`
}

// ClassificationResponse is validated strictly; a missing field is a permanent failure
type ClassificationResponse struct {
	Label      string   `json:"label" validate:"required,max=100"`
	Urgency    string   `json:"urgency" validate:"required,oneof=low medium high critical"`
	Confidence *float64 `json:"confidence" validate:"required,gte=0,lte=1"`
	Model      string   `json:"model,omitempty" validate:"max=100"`
	Reason     string   `json:"reason,omitempty"`
}

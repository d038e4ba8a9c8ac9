package interfaces

import (
	"context"

	"github.com/customeros/mailtriage/dto"
)

type AIService interface {
	ClassifyEmail(ctx context.Context, request dto.ClassificationRequest) (*dto.ClassificationResponse, error)
	Model() string
}

package interfaces

import (
	"context"

	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/internal/models"
)

// EmailFilterService classifies messages locally when rules are conclusive.
// A nil response means the message needs the external classifier.
type EmailFilterService interface {
	ScanMessage(ctx context.Context, message *models.Message) (*dto.ClassificationResponse, error)
}

package email_filter

import (
	"context"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/enum"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
)

const (
	LabelBounce       = "bounce"
	LabelAutoResponse = "auto_reply"
	LabelNotification = "notification"

	rulesConfidence = 0.95
)

type emailFilterService struct{}

func NewEmailFilterService() interfaces.EmailFilterService {
	return &emailFilterService{}
}

// ScanMessage classifies machine-generated mail from the envelope alone.
// Returns nil when the message should go to the external classifier.
func (s *emailFilterService) ScanMessage(ctx context.Context, message *models.Message) (*dto.ClassificationResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailFilterService.ScanMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, message.ID)

	from := message.SenderEmail()
	subject := message.SubjectText()

	if isBounce, reason := s.isBounceNotification(subject, from); isBounce {
		return s.result(span, LabelBounce, reason), nil
	}

	if isAutoresponder, reason := s.isAutoresponder(subject); isAutoresponder {
		return s.result(span, LabelAutoResponse, reason), nil
	}

	if isGenerated, reason := s.mailsherpaChecks(from); isGenerated {
		return s.result(span, LabelNotification, reason), nil
	}

	span.SetTag("rules.matched", false)
	return nil, nil
}

func (s *emailFilterService) result(span opentracing.Span, label, reason string) *dto.ClassificationResponse {
	span.SetTag("rules.matched", true)
	span.SetTag("rules.label", label)
	confidence := rulesConfidence
	return &dto.ClassificationResponse{
		Label:      label,
		Urgency:    enum.UrgencyLow.String(),
		Confidence: &confidence,
		Model:      enum.ModelRules,
		Reason:     reason,
	}
}

// mailsherpaChecks only trusts flags derived from the address itself; no
// network lookups happen here
func (s *emailFilterService) mailsherpaChecks(from string) (bool, string) {
	if from == "" {
		return false, ""
	}
	syntaxValidation := mailvalidate.ValidateEmailSyntax(from)
	if !syntaxValidation.IsValid {
		return false, ""
	}
	if syntaxValidation.IsSystemGenerated {
		return true, "FROM is system generated"
	}
	if s.isNoReply(from) {
		return true, "FROM is a no-reply address"
	}
	return false, ""
}

func (s *emailFilterService) isNoReply(from string) bool {
	local := strings.ToLower(from)
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	local = strings.NewReplacer("-", "", "_", "", ".", "").Replace(local)
	return strings.HasPrefix(local, "noreply") || strings.HasPrefix(local, "donotreply")
}

func (s *emailFilterService) isAutoresponder(subject string) (bool, string) {
	lowerSubject := strings.ToLower(subject)
	prefixes := []string{
		"automatic reply",
		"auto reply",
		"auto-reply",
		"autoreply",
		"out of office",
		"out of the office",
		"abwesenheitsnotiz",
		"réponse automatique",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(lowerSubject, prefix) {
			return true, "SUBJECT marks an automatic reply"
		}
	}
	return false, ""
}

func (s *emailFilterService) isBounceNotification(subject, from string) (bool, string) {
	switch {
	case s.hasBounceKeywords(from):
		return true, "FROM contains bounce keywords"
	case s.isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func (s *emailFilterService) hasBounceKeywords(str string) bool {
	lower := strings.ToLower(str)
	return strings.Contains(lower, "mailer-daemon") || strings.HasPrefix(lower, "postmaster@")
}

func (s *emailFilterService) isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	keywords := []string{
		"mail delivery failure",
		"undelivered mail returned to sender",
		"delivery status notification",
		"undeliverable",
		"undelivered",
		"delivery failure",
		"failure notice",
		"returned mail",
		"returned to sender",
	}
	for _, phrase := range keywords {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/tracing"
)

const maxErrorBodyChars = 300

type aiService struct {
	ClassifierAPIConfig *config.ClassifierAPIConfig
	client              *http.Client
	validate            *validator.Validate
}

func NewAIService(config *config.ClassifierAPIConfig) interfaces.AIService {
	return &aiService{
		ClassifierAPIConfig: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		validate: validator.New(),
	}
}

func (s *aiService) Model() string {
	return s.ClassifierAPIConfig.Model
}

// ClassifyEmail calls the external classifier once. Returned errors wrap
// ErrClassificationTransient or ErrClassificationPermanent.
func (s *aiService) ClassifyEmail(ctx context.Context, request dto.ClassificationRequest) (*dto.ClassificationResponse, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "aiService.ClassifyEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if request.Model == "" {
		request.Model = s.ClassifierAPIConfig.Model
	}
	tracing.LogObjectAsJson(span, "request", request)

	payload, err := json.Marshal(request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(mterrors.ErrClassificationPermanent, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.ClassifierAPIConfig.Url, bytes.NewBuffer(payload))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrClassificationPermanent, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.ClassifierAPIConfig.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.ClassifierAPIConfig.ApiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrClassificationTransient, "request failed: %v", err)
	}
	defer resp.Body.Close()
	span.SetTag("http.status_code", resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrClassificationTransient, "unable to read response body: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = errors.Wrapf(statusError(resp.StatusCode), "status code %d: %s", resp.StatusCode, truncate(string(body)))
		tracing.TraceErr(span, err)
		return nil, err
	}

	var response dto.ClassificationResponse
	if err = json.Unmarshal(body, &response); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrClassificationPermanent, "failed to unmarshal response: %v", err)
	}

	response.Urgency = strings.ToLower(strings.TrimSpace(response.Urgency))
	response.Label = strings.TrimSpace(response.Label)
	if err = s.validate.Struct(response); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(mterrors.ErrClassificationPermanent, "invalid response: %v", err)
	}
	if response.Model == "" {
		response.Model = request.Model
	}
	tracing.LogObjectAsJson(span, "response", response)

	return &response, nil
}

// statusError maps a non-2xx status to the retry class
func statusError(statusCode int) error {
	switch {
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return mterrors.ErrClassificationTransient
	default:
		return mterrors.ErrClassificationPermanent
	}
}

func truncate(s string) string {
	if len(s) <= maxErrorBodyChars {
		return s
	}
	return fmt.Sprintf("%s...", s[:maxErrorBodyChars])
}

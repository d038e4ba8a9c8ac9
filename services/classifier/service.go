package classifier

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/enum"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/repository"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/internal/utils"
)

type outcome int

const (
	outcomeClassified outcome = iota
	outcomeRulesClassified
	outcomeTransient
	outcomePermanent
	outcomeBudgetRefused
	outcomeAlreadyClassified
	outcomeInterrupted
	outcomeReplicaError
)

type classifierService struct {
	cfg       *config.Config
	log       logger.Logger
	repos     *repository.Repositories
	ai        interfaces.AIService
	filter    interfaces.EmailFilterService
	publisher interfaces.EventPublisher
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewClassifierService wires the worker. filter and publisher may be nil.
func NewClassifierService(cfg *config.Config, log logger.Logger, repos *repository.Repositories, ai interfaces.AIService,
	filter interfaces.EmailFilterService, publisher interfaces.EventPublisher) interfaces.ClassifierService {
	if !cfg.ClassifyConfig.PrefilterEnabled {
		filter = nil
	}
	perMinute := cfg.ClassifyConfig.RateLimitPerMin
	if perMinute <= 0 {
		perMinute = 1
	}
	return &classifierService{
		cfg:       cfg,
		log:       log,
		repos:     repos,
		ai:        ai,
		filter:    filter,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type passState struct {
	mu          sync.Mutex
	report      *dto.ClassifyReport
	replicaErr  error
	interrupted bool
}

func (p *passState) record(result outcome, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch result {
	case outcomeClassified:
		p.report.Classified++
	case outcomeRulesClassified:
		p.report.Classified++
		p.report.RulesClassified++
	case outcomeTransient:
		p.report.TransientFailures++
	case outcomePermanent:
		p.report.PermanentFailures++
	case outcomeBudgetRefused:
		p.report.BudgetExceeded = true
	case outcomeInterrupted:
		p.interrupted = true
	case outcomeReplicaError:
		if p.replicaErr == nil {
			p.replicaErr = err
		}
	}
}

func (p *passState) countExternalCall() {
	p.mu.Lock()
	p.report.ExternalCalls++
	p.mu.Unlock()
}

// RunClassification annotates up to CLASSIFY_BATCH_LIMIT pending messages.
// Each message ends classified, still pending (transient failure) or
// failed_permanent; no failure affects another message.
func (s *classifierService) RunClassification(ctx context.Context) (*dto.ClassifyReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classifierService.RunClassification")
	defer span.Finish()
	tenant := s.cfg.AppConfig.Tenant
	ctx = utils.SetTenantInContext(ctx, tenant)
	tracing.SetDefaultServiceSpanTags(ctx, span)

	dbCtx := context.WithoutCancel(ctx)
	state := &passState{report: &dto.ClassifyReport{Status: enum.ClassifyStatusOK}}

	messages, err := s.repos.MessageRepository.SelectUnclassified(dbCtx, tenant, s.cfg.ClassifyConfig.BatchLimit)
	if err != nil {
		tracing.TraceErr(span, err)
		state.report.Status = enum.ClassifyStatusFailed
		state.report.Error = err.Error()
		return state.report, errors.Wrap(mterrors.ErrReplicaUnavailable, err.Error())
	}
	state.report.Selected = len(messages)
	span.SetTag("selected", len(messages))

	gate := &budgetGate{
		repo:       s.repos.BudgetRepository,
		tenant:     tenant,
		cost:       utils.ToMicros(s.cfg.ClassifyConfig.CostPerCall),
		dailyCap:   utils.ToMicros(s.cfg.ClassifyConfig.DailyBudget),
		monthlyCap: utils.ToMicros(s.cfg.ClassifyConfig.MonthlyBudget),
		now:        s.now,
	}

	concurrency := s.cfg.ClassifyConfig.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, message := range messages {
		if ctx.Err() != nil {
			state.record(outcomeInterrupted, nil)
			break
		}
		if gate.isExhausted() {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(message *models.Message) {
			defer func() {
				<-sem
				wg.Done()
			}()
			result, err := s.classifyMessage(ctx, dbCtx, gate, state, message)
			state.record(result, err)
		}(message)
	}
	wg.Wait()

	report := state.report
	s.fillRemaining(dbCtx, tenant, report)

	switch {
	case state.replicaErr != nil:
		report.Status = enum.ClassifyStatusFailed
		report.Error = state.replicaErr.Error()
	case report.BudgetExceeded:
		report.Status = enum.ClassifyStatusBudgetExceeded
	case state.interrupted:
		report.Status = enum.ClassifyStatusInterrupted
	}

	span.SetTag("classified", report.Classified)
	span.SetTag("status", report.Status.String())
	s.log.Infof("classification finished: status=%s selected=%d classified=%d rules=%d transient=%d permanent=%d calls=%d daily_remaining=%s monthly_remaining=%s",
		report.Status, report.Selected, report.Classified, report.RulesClassified, report.TransientFailures,
		report.PermanentFailures, report.ExternalCalls, formatRemaining(report.DailyRemaining), formatRemaining(report.MonthlyRemaining))

	if state.replicaErr != nil {
		tracing.TraceErr(span, state.replicaErr)
		return report, errors.Wrap(mterrors.ErrReplicaWriteFailure, state.replicaErr.Error())
	}
	return report, nil
}

// RetryFailed moves failed_permanent messages back to pending
func (s *classifierService) RetryFailed(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classifierService.RetryFailed")
	defer span.Finish()
	tenant := s.cfg.AppConfig.Tenant
	ctx = utils.SetTenantInContext(ctx, tenant)
	tracing.SetDefaultServiceSpanTags(ctx, span)

	count, err := s.repos.MessageRepository.ResetFailedPermanent(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(mterrors.ErrReplicaWriteFailure, err.Error())
	}
	s.log.Infof("reset %d permanently failed messages to pending", count)
	return count, nil
}

func (s *classifierService) classifyMessage(ctx, dbCtx context.Context, gate *budgetGate, state *passState, message *models.Message) (outcome, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classifierService.classifyMessage")
	defer span.Finish()
	tracing.SetDefaultWorkerSpanTags(ctx, span)
	tracing.TagEntity(span, message.ID)

	if s.filter != nil {
		local, err := s.filter.ScanMessage(ctx, message)
		if err != nil {
			s.log.Warnf("rules prefilter failed for message %s: %v", message.ID, err)
		} else if local != nil {
			result, err := s.persist(dbCtx, message, local, 0)
			if result == outcomeClassified {
				result = outcomeRulesClassified
			}
			return result, err
		}
	}

	// wait before reserving so a cancelled wait never records spend
	if err := s.limiter.Wait(ctx); err != nil {
		return outcomeInterrupted, nil
	}

	reserved, err := gate.reserve(dbCtx)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("budget reservation failed: %v", err)
		return outcomeReplicaError, err
	}
	if !reserved {
		span.SetTag("budget.exceeded", true)
		return outcomeBudgetRefused, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ClassifierAPIConfig.Timeout)
	defer cancel()
	state.countExternalCall()
	response, err := s.ai.ClassifyEmail(callCtx, dto.ClassificationRequest{
		Subject:        message.SubjectText(),
		ContentSnippet: message.ContentSnippet,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return s.recordFailure(dbCtx, message, err)
	}

	return s.persist(dbCtx, message, response, gate.cost)
}

func (s *classifierService) recordFailure(ctx context.Context, message *models.Message, callErr error) (outcome, error) {
	if errors.Is(callErr, mterrors.ErrClassificationPermanent) {
		s.log.Warnf("permanent classification failure for message %s: %v", message.ID, callErr)
		if err := s.repos.MessageRepository.MarkFailedPermanent(ctx, message.ID, callErr.Error()); err != nil {
			return outcomeReplicaError, err
		}
		return outcomePermanent, nil
	}

	s.log.Infof("transient classification failure for message %s, retrying next cycle: %v", message.ID, callErr)
	if err := s.repos.MessageRepository.RecordTransientFailure(ctx, message.ID, callErr.Error()); err != nil {
		return outcomeReplicaError, err
	}
	return outcomeTransient, nil
}

// persist writes the classification row and flips the message in one
// transaction, so classified=true always has exactly one row behind it
func (s *classifierService) persist(ctx context.Context, message *models.Message, response *dto.ClassificationResponse, costMicros int64) (outcome, error) {
	modelUsed := response.Model
	if modelUsed == "" {
		modelUsed = s.ai.Model()
	}
	classification := &models.Classification{
		Tenant:            message.Tenant,
		MessageID:         message.ID,
		Label:             response.Label,
		Urgency:           response.Urgency,
		Confidence:        utils.GetOrDefault(response.Confidence, 0),
		ModelUsed:         modelUsed,
		CostEstimateMicro: costMicros,
		Reason:            response.Reason,
	}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.MessageRepository.MarkClassified(ctx, message.ID); err != nil {
			return err
		}
		return tx.ClassificationRepository.Create(ctx, classification)
	})
	if errors.Is(err, repository.ErrAlreadyClassified) {
		s.log.Warnf("message %s was classified concurrently, result discarded", message.ID)
		return outcomeAlreadyClassified, nil
	}
	if err != nil {
		return outcomeReplicaError, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessageClassified(ctx, message.Tenant, dto.MessageClassified{
			MessageID:   message.ID,
			SourceRowID: message.SourceRowID,
			Label:       classification.Label,
			Urgency:     classification.Urgency,
			Confidence:  classification.Confidence,
			ModelUsed:   classification.ModelUsed,
		}); err != nil {
			s.log.Warnf("failed to publish classification event for message %s: %v", message.ID, err)
		}
	}
	return outcomeClassified, nil
}

func (s *classifierService) fillRemaining(ctx context.Context, tenant string, report *dto.ClassifyReport) {
	day, month, err := s.repos.BudgetRepository.GetSpend(ctx, tenant, s.now())
	if err != nil {
		s.log.Warnf("failed to read budget spend: %v", err)
		return
	}
	report.DailyRemaining = remaining(utils.ToMicros(s.cfg.ClassifyConfig.DailyBudget), day)
	report.MonthlyRemaining = remaining(utils.ToMicros(s.cfg.ClassifyConfig.MonthlyBudget), month)
}

// BudgetStatus reports today's and this month's spend against the caps
func (s *classifierService) BudgetStatus(ctx context.Context) (*dto.BudgetStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classifierService.BudgetStatus")
	defer span.Finish()
	tenant := s.cfg.AppConfig.Tenant
	ctx = utils.SetTenantInContext(ctx, tenant)
	tracing.SetDefaultServiceSpanTags(ctx, span)

	day, month, err := s.repos.BudgetRepository.GetSpend(ctx, tenant, s.now())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &dto.BudgetStatus{
		DailySpent:       utils.FromMicros(day),
		MonthlySpent:     utils.FromMicros(month),
		DailyRemaining:   remaining(utils.ToMicros(s.cfg.ClassifyConfig.DailyBudget), day),
		MonthlyRemaining: remaining(utils.ToMicros(s.cfg.ClassifyConfig.MonthlyBudget), month),
	}, nil
}

// remaining is nil for a disabled cap
func remaining(capMicros, spentMicros int64) *float64 {
	if capMicros <= 0 {
		return nil
	}
	left := capMicros - spentMicros
	if left < 0 {
		left = 0
	}
	value := utils.FromMicros(left)
	return &value
}

func formatRemaining(value *float64) string {
	if value == nil {
		return "unlimited"
	}
	return strconv.FormatFloat(*value, 'f', 6, 64)
}

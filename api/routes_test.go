package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailtriage/api/middleware"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/internal/enum"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/utils"
)

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) TriggerNow(ctx context.Context) (*dto.CycleReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*dto.CycleReport)
	return report, args.Error(1)
}

func (m *mockScheduler) Status() dto.SchedulerStatus {
	args := m.Called()
	return args.Get(0).(dto.SchedulerStatus)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) RunClassification(ctx context.Context) (*dto.ClassifyReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*dto.ClassifyReport)
	return report, args.Error(1)
}

func (m *mockClassifier) RetryFailed(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockClassifier) BudgetStatus(ctx context.Context) (*dto.BudgetStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*dto.BudgetStatus)
	return status, args.Error(1)
}

type statusBody struct {
	Scheduler   dto.SchedulerStatus `json:"scheduler"`
	Budget      *dto.BudgetStatus   `json:"budget"`
	BudgetError string              `json:"budgetError"`
}

func newRouter(scheduler *mockScheduler, classifier *mockClassifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, scheduler, classifier, RouteConfig{APIKey: "secret", Tenant: "acme"})
	return r
}

func serve(r *gin.Engine, method, path, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if apiKey != "" {
		req.Header.Set(middleware.APIKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newRouter(&mockScheduler{}, &mockClassifier{})

	w := serve(r, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatus_IncludesSchedulerAndBudget(t *testing.T) {
	scheduler := &mockScheduler{}
	classifier := &mockClassifier{}
	remaining := 0.5
	scheduler.On("Status").Return(dto.SchedulerStatus{State: enum.StateIdle, SkippedTicks: 3})
	classifier.On("BudgetStatus", mock.Anything).Return(&dto.BudgetStatus{DailySpent: 0.5, DailyRemaining: &remaining}, nil)
	r := newRouter(scheduler, classifier)

	w := serve(r, http.MethodGet, "/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, enum.StateIdle, body.Scheduler.State)
	assert.Equal(t, int64(3), body.Scheduler.SkippedTicks)
	require.NotNil(t, body.Budget)
	require.NotNil(t, body.Budget.DailyRemaining)
	assert.InDelta(t, 0.5, *body.Budget.DailyRemaining, 0.000001)
	assert.Nil(t, body.Budget.MonthlyRemaining)
}

func TestStatus_BudgetErrorStillAnswers(t *testing.T) {
	scheduler := &mockScheduler{}
	classifier := &mockClassifier{}
	scheduler.On("Status").Return(dto.SchedulerStatus{State: enum.StateRunningSync})
	classifier.On("BudgetStatus", mock.Anything).Return(nil, mterrors.ErrReplicaUnavailable)
	r := newRouter(scheduler, classifier)

	w := serve(r, http.MethodGet, "/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body statusBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, enum.StateRunningSync, body.Scheduler.State)
	assert.Contains(t, body.BudgetError, "replica store unavailable")
}

func TestTrigger_RequiresAPIKey(t *testing.T) {
	scheduler := &mockScheduler{}
	r := newRouter(scheduler, &mockClassifier{})

	missing := serve(r, http.MethodPost, "/v1/sync/trigger", "")
	wrong := serve(r, http.MethodPost, "/v1/sync/trigger", "nope")

	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	scheduler.AssertNotCalled(t, "TriggerNow", mock.Anything)
}

func TestTrigger_Accepted(t *testing.T) {
	scheduler := &mockScheduler{}
	report := &dto.CycleReport{CycleID: "c-1", Tenant: "acme", Status: enum.CycleStatusCompleted}
	scheduler.On("TriggerNow", mock.MatchedBy(func(ctx context.Context) bool {
		return utils.GetTenantFromContext(ctx) == "acme" && utils.GetAppSourceFromContext(ctx) == AppSource
	})).Return(report, nil)
	r := newRouter(scheduler, &mockClassifier{})

	w := serve(r, http.MethodPost, "/v1/sync/trigger", "secret")

	require.Equal(t, http.StatusAccepted, w.Code)
	var body dto.CycleReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "c-1", body.CycleID)
	scheduler.AssertExpectations(t)
}

func TestTrigger_FailedCycleStillReturnsReport(t *testing.T) {
	scheduler := &mockScheduler{}
	report := &dto.CycleReport{CycleID: "c-2", Status: enum.CycleStatusFailed, Error: "source store query failed"}
	scheduler.On("TriggerNow", mock.Anything).Return(report, mterrors.ErrSourceCorrupt)
	r := newRouter(scheduler, &mockClassifier{})

	w := serve(r, http.MethodPost, "/v1/sync/trigger", "secret")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)
}

func TestTrigger_ConflictWhenCycleRunning(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("TriggerNow", mock.Anything).Return(nil, mterrors.ErrCycleInProgress)
	r := newRouter(scheduler, &mockClassifier{})

	w := serve(r, http.MethodPost, "/v1/sync/trigger", "secret")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTrigger_NoReport(t *testing.T) {
	scheduler := &mockScheduler{}
	scheduler.On("TriggerNow", mock.Anything).Return(nil, errors.New("boom"))
	r := newRouter(scheduler, &mockClassifier{})

	w := serve(r, http.MethodPost, "/v1/sync/trigger", "secret")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "boom")
}

package cron

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	cron_config "github.com/customeros/mailtriage/internal/cron/config"
	"github.com/customeros/mailtriage/internal/enum"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/utils"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

type fakeSync struct {
	calls   atomic.Int32
	status  enum.SyncStatus
	err     error
	release chan struct{}
	started chan struct{}
	cycleID atomic.Value

	mu      sync.Mutex
	lastCtx context.Context
}

func (f *fakeSync) RunSync(ctx context.Context) (*dto.SyncReport, error) {
	f.calls.Add(1)
	f.cycleID.Store(utils.GetCycleIdFromContext(ctx))
	f.mu.Lock()
	f.lastCtx = ctx
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	status := f.status
	if status == "" {
		status = enum.SyncStatusOK
	}
	return &dto.SyncReport{Status: status}, f.err
}

func (f *fakeSync) runContext() context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCtx
}

func (f *fakeSync) ResetCursor(ctx context.Context) error {
	return nil
}

type fakeClassifier struct {
	calls atomic.Int32
	err   error
}

func (f *fakeClassifier) RunClassification(ctx context.Context) (*dto.ClassifyReport, error) {
	f.calls.Add(1)
	return &dto.ClassifyReport{Status: enum.ClassifyStatusOK, Classified: 2}, f.err
}

func (f *fakeClassifier) RetryFailed(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeClassifier) BudgetStatus(ctx context.Context) (*dto.BudgetStatus, error) {
	return &dto.BudgetStatus{}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	cycles []*dto.CycleReport
}

func (p *recordingPublisher) PublishCycleCompleted(ctx context.Context, report *dto.CycleReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cycles = append(p.cycles, report)
	return nil
}

func (p *recordingPublisher) PublishMessageClassified(ctx context.Context, tenant string, event dto.MessageClassified) error {
	return nil
}

func (p *recordingPublisher) Close() error {
	return nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func testConfig() *config.Config {
	return &config.Config{
		AppConfig: &config.AppConfig{Tenant: "acme"},
		SchedulerConfig: &cron_config.Config{
			SyncIntervalMs:     1000,
			MaxReplicaFailures: 3,
			LeaseName:          "test-lease",
		},
	}
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := testConfig()
	log := getLogger()
	k8s := &mockKubernetesInterface{}

	// Act
	cm := NewCronManager(cfg, log, k8s, &fakeSync{}, &fakeClassifier{}, nil, nil)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
	assert.Equal(t, enum.StateIdle, cm.Status().State)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.SchedulerConfig.CronScheduleHeartbeat = "0 * * * * *"
	cm := NewCronManager(cfg, getLogger(), nil, &fakeSync{}, &fakeClassifier{}, nil, nil)
	c := cronv3.New(cronv3.WithSeconds())

	// Act
	err := cm.registerJobs(c)

	// Assert
	require.NoError(t, err)
	assert.Contains(t, cm.jobIDs, "heartbeat")
	assert.Contains(t, cm.jobIDs, "cycle")
	assert.Len(t, c.Entries(), 2)
	assert.Equal(t, "@every 1s", cfg.SchedulerConfig.CycleSpec())
}

func TestCronManager_StartAndStopLocal(t *testing.T) {
	// Arrange
	cm := NewCronManager(testConfig(), getLogger(), nil, &fakeSync{}, &fakeClassifier{}, nil, nil)

	// Act
	require.NoError(t, cm.Start("pod", "default"))
	cm.Stop()

	// Assert
	select {
	case <-cm.Done():
	default:
		t.Fatal("stop channel not closed")
	}
	assert.Equal(t, enum.StateStopped, cm.Status().State)
}

func TestRunCycle_SyncThenClassify(t *testing.T) {
	// Arrange
	syncer := &fakeSync{}
	classifier := &fakeClassifier{}
	publisher := &recordingPublisher{}
	cm := NewCronManager(testConfig(), getLogger(), nil, syncer, classifier, publisher, func(ctx context.Context) error { return nil })

	// Act
	report, err := cm.RunCycle(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.CycleStatusCompleted, report.Status)
	assert.Equal(t, "acme", report.Tenant)
	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, report.CycleID, syncer.cycleID.Load())
	assert.Equal(t, int32(1), classifier.calls.Load())
	assert.Len(t, publisher.cycles, 1)

	status := cm.Status()
	assert.Equal(t, enum.StateIdle, status.State)
	assert.Equal(t, report, status.LastCycle)
}

func TestRunCycle_SourceNotFoundStillClassifies(t *testing.T) {
	// Arrange
	syncer := &fakeSync{status: enum.SyncStatusSourceNotFound}
	classifier := &fakeClassifier{}
	cm := NewCronManager(testConfig(), getLogger(), nil, syncer, classifier, nil, nil)

	// Act
	report, err := cm.RunCycle(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, enum.CycleStatusCompleted, report.Status)
	assert.Equal(t, int32(1), classifier.calls.Load())
}

func TestRunCycle_SyncFailureEndsCycle(t *testing.T) {
	// Arrange
	syncer := &fakeSync{status: enum.SyncStatusFailed, err: mterrors.ErrSourceCorrupt}
	classifier := &fakeClassifier{}
	publisher := &recordingPublisher{}
	cm := NewCronManager(testConfig(), getLogger(), nil, syncer, classifier, publisher, nil)

	// Act
	report, err := cm.RunCycle(context.Background())

	// Assert
	require.ErrorIs(t, err, mterrors.ErrSourceCorrupt)
	assert.Equal(t, enum.CycleStatusFailed, report.Status)
	assert.Equal(t, int32(0), classifier.calls.Load())
	assert.Equal(t, enum.StateIdle, cm.Status().State)
	assert.Len(t, publisher.cycles, 1)

	// next cycle runs normally
	syncer.err = nil
	syncer.status = enum.SyncStatusOK
	_, err = cm.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), classifier.calls.Load())
}

func TestRunCycle_SkipsWhileRunning(t *testing.T) {
	// Arrange
	syncer := &fakeSync{release: make(chan struct{}), started: make(chan struct{}, 1)}
	cm := NewCronManager(testConfig(), getLogger(), nil, syncer, &fakeClassifier{}, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := cm.RunCycle(context.Background())
		done <- err
	}()
	<-syncer.started

	// Act
	_, tickErr := cm.RunCycle(context.Background())
	_, triggerErr := cm.TriggerNow(context.Background())
	status := cm.Status()
	close(syncer.release)

	// Assert
	assert.ErrorIs(t, tickErr, mterrors.ErrCycleInProgress)
	assert.ErrorIs(t, triggerErr, mterrors.ErrCycleInProgress)
	assert.Equal(t, enum.StateRunningSync, status.State)
	assert.Equal(t, int64(2), status.SkippedTicks)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), syncer.calls.Load())
	assert.Equal(t, enum.StateIdle, cm.Status().State)
}

func TestRunCycle_ReplicaFailuresStopScheduler(t *testing.T) {
	// Arrange
	pingErr := errors.New("connection refused")
	var healthy atomic.Bool
	syncer := &fakeSync{}
	cm := NewCronManager(testConfig(), getLogger(), nil, syncer, &fakeClassifier{}, nil, func(ctx context.Context) error {
		if healthy.Load() {
			return nil
		}
		return pingErr
	})

	// Act
	for i := 0; i < 2; i++ {
		_, err := cm.RunCycle(context.Background())
		require.ErrorIs(t, err, pingErr)
	}
	assert.Equal(t, 2, cm.Status().ConsecutiveFailures)

	healthy.Store(true)
	_, err := cm.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, cm.Status().ConsecutiveFailures)

	healthy.Store(false)
	for i := 0; i < 3; i++ {
		_, _ = cm.RunCycle(context.Background())
	}

	// Assert
	select {
	case fatal := <-cm.Fatal():
		assert.ErrorIs(t, fatal, pingErr)
	case <-time.After(time.Second):
		t.Fatal("expected fatal signal")
	}
	assert.Equal(t, enum.StateStopped, cm.Status().State)
	assert.Equal(t, int32(1), syncer.calls.Load())

	_, err = cm.TriggerNow(context.Background())
	assert.ErrorIs(t, err, mterrors.ErrCycleInProgress)
}

func TestTriggerNow_OutlivesCallerButStopsWithScheduler(t *testing.T) {
	// Arrange
	syncer := &fakeSync{release: make(chan struct{}), started: make(chan struct{}, 1)}
	cm := NewCronManager(testConfig(), getLogger(), nil, syncer, &fakeClassifier{}, nil, nil)
	callerCtx, cancelCaller := context.WithCancel(utils.WithCustomContext(context.Background(), &utils.CustomContext{AppSource: "api"}))

	done := make(chan error, 1)
	go func() {
		_, err := cm.TriggerNow(callerCtx)
		done <- err
	}()
	<-syncer.started
	runCtx := syncer.runContext()

	// Act
	cancelCaller()
	afterCaller := runCtx.Err()
	cm.Stop()

	// Assert
	assert.NoError(t, afterCaller)
	assert.ErrorIs(t, runCtx.Err(), context.Canceled)
	assert.Equal(t, "api", utils.GetAppSourceFromContext(runCtx))
	close(syncer.release)
	<-done
}

func TestCronManager_StartCronRacingStop(t *testing.T) {
	// Arrange
	cm := NewCronManager(testConfig(), getLogger(), nil, &fakeSync{}, &fakeClassifier{}, nil, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, cm.StartCron())
	}()
	go func() {
		defer wg.Done()
		cm.Stop()
	}()
	wg.Wait()
	before := cm.currentCron()

	// Act
	require.NoError(t, cm.StartCron())

	// Assert
	assert.True(t, before == cm.currentCron(), "a stopped scheduler must not start a new cron")
	assert.Equal(t, enum.StateStopped, cm.Status().State)
}

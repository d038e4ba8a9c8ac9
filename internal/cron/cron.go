package cron

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	cron_config "github.com/customeros/mailtriage/internal/cron/config"
	"github.com/customeros/mailtriage/internal/enum"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/internal/utils"
)

const (
	stateIdle int32 = iota
	stateRunningSync
	stateRunningClassify
	stateStopped
)

var stateNames = map[int32]enum.SchedulerState{
	stateIdle:            enum.StateIdle,
	stateRunningSync:     enum.StateRunningSync,
	stateRunningClassify: enum.StateRunningClassify,
	stateStopped:         enum.StateStopped,
}

// ReplicaPinger reports whether the replica store is reachable
type ReplicaPinger func(ctx context.Context) error

type CronManager struct {
	cfg        *config.Config
	cronConfig *cron_config.Config
	log        logger.Logger
	cron       *cronv3.Cron
	k8s        kubernetes.Interface
	stopCh     chan struct{}
	stopOnce   sync.Once
	fatalCh    chan error
	jobIDs     map[string]cronv3.EntryID

	syncService       interfaces.SyncService
	classifierService interfaces.ClassifierService
	publisher         interfaces.EventPublisher
	pingReplica       ReplicaPinger

	runCtx    context.Context
	cancelRun context.CancelFunc

	state        atomic.Int32
	skippedTicks atomic.Int64

	mu                  sync.Mutex
	lastCycle           *dto.CycleReport
	consecutiveFailures int
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface,
	syncService interfaces.SyncService, classifierService interfaces.ClassifierService,
	publisher interfaces.EventPublisher, pingReplica ReplicaPinger) *CronManager {

	cronConfig := cfg.SchedulerConfig
	if cronConfig == nil {
		cronConfig = &cron_config.Config{SyncIntervalMs: 60000, MaxReplicaFailures: 5}
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &CronManager{
		cfg:               cfg,
		cronConfig:        cronConfig,
		log:               log,
		k8s:               k8s,
		stopCh:            make(chan struct{}),
		fatalCh:           make(chan error, 1),
		jobIDs:            make(map[string]cronv3.EntryID),
		syncService:       syncService,
		classifierService: classifierService,
		publisher:         publisher,
		pingReplica:       pingReplica,
		runCtx:            runCtx,
		cancelRun:         cancel,
	}
}

// Start initializes and starts the cron manager with leader election
// If k8s is nil, it will start in local mode without leader election
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting scheduler in local mode")
		return cm.StartCron()
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cm.cronConfig.LeaseName,
			Namespace: namespace,
		},
		Client: cm.k8s.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: podName,
		},
	}

	errCh := make(chan error, 1)

	go func() {
		le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   time.Duration(cm.cronConfig.LeaseDurationSec) * time.Second,
			RenewDeadline:   time.Duration(cm.cronConfig.LeaseRenewDeadline) * time.Second,
			RetryPeriod:     time.Duration(cm.cronConfig.LeaseRetryPeriod) * time.Second,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(ctx context.Context) {
					if err := cm.StartCron(); err != nil {
						cm.log.Errorf("Could not start scheduler after winning lease: %v", err)
					}
				},
				OnStoppedLeading: func() {
					cm.log.Info("Leader lost - stopping scheduler")
					cm.Stop()
				},
				OnNewLeader: func(identity string) {
					cm.log.Infof("New leader elected: %s", identity)
				},
			},
		})
		if err != nil {
			errCh <- err
			return
		}
		le.Run(cm.runCtx)
	}()

	// Wait briefly to see if leader election fails immediately
	select {
	case err := <-errCh:
		cm.log.Warnf("Leader election failed, falling back to local mode: %v", err)
		return cm.StartCron()
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Stop halts the ticker, lets the running cycle finish its current batch or message and waits for it
func (cm *CronManager) Stop() {
	cm.stopOnce.Do(func() {
		cm.log.Info("Stopping scheduler")
		cm.cancelRun()
		if c := cm.currentCron(); c != nil {
			<-c.Stop().Done()
		}
		cm.state.Store(stateStopped)
		close(cm.stopCh)
	})
}

// Fatal delivers an error when the scheduler gave up on the replica store
func (cm *CronManager) Fatal() <-chan error {
	return cm.fatalCh
}

// Done is closed once Stop has completed
func (cm *CronManager) Done() <-chan struct{} {
	return cm.stopCh
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Infof("Starting scheduler with interval %s", cm.cronConfig.SyncInterval())
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger),
			cronv3.Recover(cronv3.DefaultLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.runCtx.Err() != nil {
		cm.log.Info("Scheduler already stopped, cron not started")
		return nil
	}
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) currentCron() *cronv3.Cron {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.cron
}

func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cronConfig.CronScheduleHeartbeat != "" {
		podName := os.Getenv("POD_NAME")
		if podName == "" {
			podName = "local"
		}
		id, err := c.AddFunc(cm.cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Scheduler heartbeat from pod: %s, state: %s", podName, cm.Status().State)
		})
		if err != nil {
			return err
		}
		cm.jobIDs["heartbeat"] = id
	}

	id, err := c.AddFunc(cm.cronConfig.CycleSpec(), func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		cm.tick()
	})
	if err != nil {
		return err
	}
	cm.jobIDs["cycle"] = id
	cm.log.Infof("Registered cycle job with schedule: %s", cm.cronConfig.CycleSpec())
	return nil
}

func (cm *CronManager) tick() {
	_, err := cm.RunCycle(cm.runCtx)
	if errors.Is(err, mterrors.ErrCycleInProgress) {
		cm.log.Debug("Previous cycle still running, tick skipped")
	}
}

// TriggerNow runs one cycle immediately through the same gate as the timer.
// The cycle keeps the caller's values but not its cancellation; it stops
// with the scheduler instead.
func (cm *CronManager) TriggerNow(ctx context.Context) (*dto.CycleReport, error) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(cm.runCtx, cancel)
	defer stop()
	return cm.RunCycle(ctx)
}

// Status returns a snapshot; safe to call while a cycle runs
func (cm *CronManager) Status() dto.SchedulerStatus {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return dto.SchedulerStatus{
		State:               stateNames[cm.state.Load()],
		LastCycle:           cm.lastCycle,
		ConsecutiveFailures: cm.consecutiveFailures,
		SkippedTicks:        cm.skippedTicks.Load(),
	}
}

// RunCycle runs sync then classification once; a cycle that finds the scheduler busy is skipped, not queued
func (cm *CronManager) RunCycle(ctx context.Context) (*dto.CycleReport, error) {
	if !cm.state.CompareAndSwap(stateIdle, stateRunningSync) {
		if cm.state.Load() != stateStopped {
			cm.skippedTicks.Add(1)
		}
		return nil, mterrors.ErrCycleInProgress
	}
	defer cm.state.CompareAndSwap(stateRunningSync, stateIdle)
	defer cm.state.CompareAndSwap(stateRunningClassify, stateIdle)

	cycleID := uuid.NewString()
	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{
		AppSource: utils.GetAppSourceFromContext(ctx),
		Tenant:    cm.cfg.AppConfig.Tenant,
		CycleId:   cycleID,
	})

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.RunCycle")
	defer span.Finish()
	tracing.TagComponentCronJob(span)
	tracing.TagTenant(span, cm.cfg.AppConfig.Tenant)
	span.SetTag("cycle.id", cycleID)

	report := &dto.CycleReport{
		CycleID:   cycleID,
		Tenant:    cm.cfg.AppConfig.Tenant,
		StartedAt: time.Now().UTC(),
	}
	log := cm.log.With("cycleId", cycleID)

	if err := utils.ValidateTenant(ctx); err != nil {
		return cm.finish(ctx, log, report, err), err
	}

	if err := cm.checkReplica(ctx, log); err != nil {
		tracing.TraceErr(span, err)
		return cm.finish(ctx, log, report, err), err
	}

	syncReport, err := cm.syncService.RunSync(ctx)
	report.Sync = syncReport
	if err != nil {
		tracing.TraceErr(span, err)
		return cm.finish(ctx, log, report, err), err
	}
	if syncReport != nil && syncReport.Status == enum.SyncStatusSourceNotFound {
		log.Warn("Source store not found, classifying existing replica data")
	}

	cm.state.CompareAndSwap(stateRunningSync, stateRunningClassify)

	classifyReport, err := cm.classifierService.RunClassification(ctx)
	report.Classify = classifyReport
	if err != nil {
		tracing.TraceErr(span, err)
		return cm.finish(ctx, log, report, err), err
	}

	return cm.finish(ctx, log, report, nil), nil
}

// checkReplica counts consecutive unreachable cycles and stops the scheduler at the threshold
func (cm *CronManager) checkReplica(ctx context.Context, log logger.Logger) error {
	if cm.pingReplica == nil {
		return nil
	}
	err := cm.pingReplica(ctx)

	cm.mu.Lock()
	if err == nil {
		cm.consecutiveFailures = 0
		cm.mu.Unlock()
		return nil
	}
	cm.consecutiveFailures++
	failures := cm.consecutiveFailures
	cm.mu.Unlock()

	log.Errorf("Replica store unreachable (%d/%d): %v", failures, cm.cronConfig.MaxReplicaFailures, err)
	if failures >= cm.cronConfig.MaxReplicaFailures {
		cm.halt(err)
	}
	return err
}

// halt stops ticking from inside a running cycle; waiting on the cron here would deadlock
func (cm *CronManager) halt(cause error) {
	cm.state.Store(stateStopped)
	cm.cancelRun()
	if c := cm.currentCron(); c != nil {
		c.Stop()
	}
	select {
	case cm.fatalCh <- cause:
	default:
	}
}

func (cm *CronManager) finish(ctx context.Context, log logger.Logger, report *dto.CycleReport, err error) *dto.CycleReport {
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Status = enum.CycleStatusFailed
		report.Error = err.Error()
		log.Errorf("Cycle failed: %v", err)
	} else {
		report.Status = enum.CycleStatusCompleted
		cm.logCycle(log, report)
	}

	cm.mu.Lock()
	cm.lastCycle = report
	cm.mu.Unlock()

	if cm.publisher != nil {
		if pubErr := cm.publisher.PublishCycleCompleted(context.WithoutCancel(ctx), report); pubErr != nil {
			log.Warnf("Could not publish cycle completed event: %v", pubErr)
		}
	}
	return report
}

func (cm *CronManager) logCycle(log logger.Logger, report *dto.CycleReport) {
	fields := []interface{}{"duration", report.FinishedAt.Sub(report.StartedAt).String()}
	if s := report.Sync; s != nil {
		fields = append(fields, "syncStatus", s.Status, "fetched", s.Fetched, "inserted", s.Inserted, "updated", s.Updated)
	}
	if c := report.Classify; c != nil {
		fields = append(fields,
			"classifyStatus", c.Status,
			"classified", c.Classified,
			"transientFailures", c.TransientFailures,
			"permanentFailures", c.PermanentFailures,
		)
		if c.DailyRemaining != nil {
			fields = append(fields, "dailyRemaining", *c.DailyRemaining)
		}
		if c.MonthlyRemaining != nil {
			fields = append(fields, "monthlyRemaining", *c.MonthlyRemaining)
		}
	}
	log.With(fields...).Info("Cycle completed")
}

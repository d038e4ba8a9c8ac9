package cron_config

import "time"

type Config struct {
	// Sync + classify cycle interval
	SyncIntervalMs int `env:"SYNC_INTERVAL_MS" envDefault:"60000" validate:"gt=0"`
	// Consecutive replica failures before the scheduler stops itself
	MaxReplicaFailures int `env:"SCHEDULER_MAX_REPLICA_FAILURES" envDefault:"5" validate:"gt=0"`
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Lease settings for leader election when running in k8s
	LeaseName          string `env:"SCHEDULER_LEASE_NAME" envDefault:"mailtriage-scheduler-leader"`
	LeaseDurationSec   int    `env:"SCHEDULER_LEASE_DURATION_SEC" envDefault:"15"`
	LeaseRenewDeadline int    `env:"SCHEDULER_LEASE_RENEW_DEADLINE_SEC" envDefault:"10"`
	LeaseRetryPeriod   int    `env:"SCHEDULER_LEASE_RETRY_PERIOD_SEC" envDefault:"2"`
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}

// CycleSpec is the robfig descriptor for the sync interval
func (c *Config) CycleSpec() string {
	return "@every " + c.SyncInterval().String()
}

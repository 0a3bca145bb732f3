package config

import "time"

// AdmissionConfig contains the admission queue and worker pool
// configuration. These values control how trigger events are polled,
// claimed, and handed to the scheduler: a single FIFO message group
// bounded by MaxConcurrentExperiments.
type AdmissionConfig struct {
	// WorkerCount is the number of worker goroutines per process. Each
	// worker independently polls and admits experiments.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentExperiments is the global limit of experiments running
	// concurrently across all processes, enforced by a database COUNT(*)
	// check before a new experiment is claimed.
	MaxConcurrentExperiments int `yaml:"max_concurrent_experiments"`

	// PollInterval is the base interval for checking the ingress queue.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// GracefulShutdownTimeout is loaded from configuration but is not read
	// by any component: admission.Pool.Stop waits for in-flight
	// experiments without a time limit.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for experiments left
	// RUNNING without a recent heartbeat.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long an experiment can go without a
	// heartbeat before it is reported as orphaned.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultAdmissionConfig returns the built-in admission defaults.
func DefaultAdmissionConfig() *AdmissionConfig {
	return &AdmissionConfig{
		WorkerCount:              3,
		MaxConcurrentExperiments: 5,
		PollInterval:             1 * time.Second,
		PollIntervalJitter:       250 * time.Millisecond,
		GracefulShutdownTimeout:  2 * time.Minute,
		OrphanDetectionInterval:  5 * time.Minute,
		OrphanThreshold:          5 * time.Minute,
	}
}

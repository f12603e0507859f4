package executor

import "oss.nandlabs.io/golly/config"

// Config sizes the three priority queues and the worker pool draining
// them. QueueCapacity applies independently to each of the three queues.
type Config struct {
	Workers       int
	QueueCapacity int
	// TickIntervalMs is how often, in milliseconds, the delay heap is
	// polled for due tasks.
	TickIntervalMs int
}

// DefaultConfig returns conservative defaults suitable for a single
// lifecycle-helper instance: enough workers to keep extend/claim calls
// from queueing behind a slow handler, without oversubscribing.
func DefaultConfig() Config {
	return Config{
		Workers:        8,
		QueueCapacity:  256,
		TickIntervalMs: 50,
	}
}

// ConfigFromEnv loads a Config from environment variables, falling back
// to DefaultConfig for anything unset or unparseable.
//
//	CPIO_EXECUTOR_WORKERS
//	CPIO_EXECUTOR_QUEUE_CAPACITY
//	CPIO_EXECUTOR_TICK_INTERVAL_MS
func ConfigFromEnv() Config {
	def := DefaultConfig()
	workers, err := config.GetEnvAsInt("CPIO_EXECUTOR_WORKERS", def.Workers)
	if err != nil {
		workers = def.Workers
	}
	queue, err := config.GetEnvAsInt("CPIO_EXECUTOR_QUEUE_CAPACITY", def.QueueCapacity)
	if err != nil {
		queue = def.QueueCapacity
	}
	tick, err := config.GetEnvAsInt("CPIO_EXECUTOR_TICK_INTERVAL_MS", def.TickIntervalMs)
	if err != nil {
		tick = def.TickIntervalMs
	}
	return Config{Workers: workers, QueueCapacity: queue, TickIntervalMs: tick}
}

package lifecycle

import (
	"time"

	"oss.nandlabs.io/golly/config"
)

// Config collects the helper's tunables.
type Config struct {
	RetryLimit uint32

	VisibilityTimeoutExtendTime time.Duration
	JobProcessingTimeout        time.Duration
	ExtenderSleepTime           time.Duration

	CurrentInstanceResourceName string
	ScaleInHookName             string

	EnableMetricsRecording bool
	MetricNamespace        string

	// DispatchRetryBase, DispatchRetryMultiplier and DispatchRetryMax
	// parameterize the backoff applied to transient queue/table failures
	// inside every helper operation. DispatchMaxAttempts bounds how many
	// attempts run before the operation fails as exhausted.
	DispatchRetryBase       time.Duration
	DispatchRetryMultiplier float64
	DispatchRetryMax        time.Duration
	DispatchMaxAttempts     uint32
}

// DefaultConfig returns the conservative defaults used when an
// environment variable is unset.
func DefaultConfig() Config {
	return Config{
		RetryLimit:                  3,
		VisibilityTimeoutExtendTime: 30 * time.Second,
		JobProcessingTimeout:        120 * time.Second,
		ExtenderSleepTime:           10 * time.Second,
		CurrentInstanceResourceName: "",
		ScaleInHookName:             "",
		EnableMetricsRecording:      true,
		MetricNamespace:             "cpio",
		DispatchRetryBase:           200 * time.Millisecond,
		DispatchRetryMultiplier:     2,
		DispatchRetryMax:            30 * time.Second,
		DispatchMaxAttempts:         5,
	}
}

// ConfigFromEnv loads a Config from environment variables, falling back
// to DefaultConfig for anything unset or unparseable.
//
//	CPIO_RETRY_LIMIT
//	CPIO_VISIBILITY_TIMEOUT_EXTEND_TIME_SECONDS
//	CPIO_JOB_PROCESSING_TIMEOUT_SECONDS
//	CPIO_JOB_EXTENDING_WORKER_SLEEP_TIME_SECONDS
//	CPIO_CURRENT_INSTANCE_RESOURCE_NAME
//	CPIO_SCALE_IN_HOOK_NAME
//	CPIO_ENABLE_METRICS_RECORDING
//	CPIO_METRIC_NAMESPACE
//	CPIO_DISPATCH_RETRY_BASE_MS
//	CPIO_DISPATCH_RETRY_MULTIPLIER
//	CPIO_DISPATCH_RETRY_MAX_MS
//	CPIO_DISPATCH_MAX_ATTEMPTS
func ConfigFromEnv() Config {
	def := DefaultConfig()

	retryLimit, err := config.GetEnvAsInt("CPIO_RETRY_LIMIT", int(def.RetryLimit))
	if err != nil {
		retryLimit = int(def.RetryLimit)
	}
	extend, err := config.GetEnvAsInt("CPIO_VISIBILITY_TIMEOUT_EXTEND_TIME_SECONDS", int(def.VisibilityTimeoutExtendTime/time.Second))
	if err != nil {
		extend = int(def.VisibilityTimeoutExtendTime / time.Second)
	}
	processingTimeout, err := config.GetEnvAsInt("CPIO_JOB_PROCESSING_TIMEOUT_SECONDS", int(def.JobProcessingTimeout/time.Second))
	if err != nil {
		processingTimeout = int(def.JobProcessingTimeout / time.Second)
	}
	sleepTime, err := config.GetEnvAsInt("CPIO_JOB_EXTENDING_WORKER_SLEEP_TIME_SECONDS", int(def.ExtenderSleepTime/time.Second))
	if err != nil {
		sleepTime = int(def.ExtenderSleepTime / time.Second)
	}
	instanceName := config.GetEnvAsString("CPIO_CURRENT_INSTANCE_RESOURCE_NAME", def.CurrentInstanceResourceName)
	hookName := config.GetEnvAsString("CPIO_SCALE_IN_HOOK_NAME", def.ScaleInHookName)
	enableMetrics, err := config.GetEnvAsBool("CPIO_ENABLE_METRICS_RECORDING", def.EnableMetricsRecording)
	if err != nil {
		enableMetrics = def.EnableMetricsRecording
	}
	namespace := config.GetEnvAsString("CPIO_METRIC_NAMESPACE", def.MetricNamespace)

	dispatchBase, err := config.GetEnvAsInt64("CPIO_DISPATCH_RETRY_BASE_MS", def.DispatchRetryBase.Milliseconds())
	if err != nil {
		dispatchBase = def.DispatchRetryBase.Milliseconds()
	}
	dispatchMultiplier, err := config.GetEnvAsDecimal("CPIO_DISPATCH_RETRY_MULTIPLIER", def.DispatchRetryMultiplier)
	if err != nil {
		dispatchMultiplier = def.DispatchRetryMultiplier
	}
	dispatchMax, err := config.GetEnvAsInt64("CPIO_DISPATCH_RETRY_MAX_MS", def.DispatchRetryMax.Milliseconds())
	if err != nil {
		dispatchMax = def.DispatchRetryMax.Milliseconds()
	}
	dispatchMaxAttempts, err := config.GetEnvAsInt("CPIO_DISPATCH_MAX_ATTEMPTS", int(def.DispatchMaxAttempts))
	if err != nil {
		dispatchMaxAttempts = int(def.DispatchMaxAttempts)
	}

	return Config{
		RetryLimit:                  uint32(retryLimit),
		VisibilityTimeoutExtendTime: time.Duration(extend) * time.Second,
		JobProcessingTimeout:        time.Duration(processingTimeout) * time.Second,
		ExtenderSleepTime:           time.Duration(sleepTime) * time.Second,
		CurrentInstanceResourceName: instanceName,
		ScaleInHookName:             hookName,
		EnableMetricsRecording:      enableMetrics,
		MetricNamespace:             namespace,
		DispatchRetryBase:           time.Duration(dispatchBase) * time.Millisecond,
		DispatchRetryMultiplier:     dispatchMultiplier,
		DispatchRetryMax:            time.Duration(dispatchMax) * time.Millisecond,
		DispatchMaxAttempts:         uint32(dispatchMaxAttempts),
	}
}

// Package cpio provides the shared async-execution substrate for a
// cloud-portable operational runtime: a one-shot context that carries a
// request, a response, a typed result and a completion callback across
// goroutine boundaries, plus the start/stop lifecycle base reused by the
// executor and the job lifecycle helper.
//
// # Overview
//
// A worker process pulls jobs from a cloud queue, processes them under
// timing and retry discipline, and coordinates with an autoscaler so
// instances are never terminated mid-job. cpio is the set of subsystems
// that make that discipline correct and observable under concurrency:
//
//	cpio        — async Context, typed Result, start/stop lifecycle base
//	executor    — bounded priority worker pool
//	retry       — exponential/linear backoff dispatcher over Context
//	expirymap   — concurrent TTL cache with eviction veto
//	token       — credential cache fronting an HTTP metadata endpoint
//	clientpool  — per-identity cloud-SDK client cache
//	job         — the Job data model and its status state machine
//	jobclient   — queue+table adapter consumed by the lifecycle helper
//	autoscaler  — the termination gate consumed by the lifecycle helper
//	lifecycle   — the job lifecycle helper: claim, extend, complete, retry
//	metrics     — processing/waiting time instrumentation
//	blob        — streaming object storage contracts
//
// # Result Shape
//
// Every operation that participates in the job lifecycle produces a
// Result: success, a retriable failure carrying a code, or a fatal failure
// carrying a code. Only retry explicitly deals in retriable results;
// everything else treats them as any other failure once they propagate
// past the retry dispatcher.
//
// # Concurrency Model
//
// cpio assumes parallel goroutines. Suspension points (network calls) are
// modeled explicitly: an async operation submits work and returns
// immediately, resolving its Context later via a callback invoked from
// some executor goroutine. Blocking callers use the synchronous wrappers
// built on top, which must never run on an executor goroutine themselves.
package cpio

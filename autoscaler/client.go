// Package autoscaler defines the termination-gate collaborator the job
// lifecycle helper consults before claiming new work. The transport
// behind it is vendor-specific and lives with the deployment; only the
// interface and a StaticClient test double are provided here.
package autoscaler

import "context"

// Client is the one operation the lifecycle helper needs from the
// autoscaler: whether this instance has been scheduled for drain.
type Client interface {
	// TryFinishInstanceTermination reports whether the autoscaler has
	// decided to drain instanceResourceName. A true terminationScheduled
	// means the core must not claim new work.
	TryFinishInstanceTermination(ctx context.Context, instanceResourceName, hookName string) (terminationScheduled bool, err error)
}

// StaticClient is an in-memory Client returning a constant answer.
// Intended for tests, not production.
type StaticClient struct {
	TerminationScheduled bool
	Err                  error
}

// TryFinishInstanceTermination implements Client.
func (c StaticClient) TryFinishInstanceTermination(context.Context, string, string) (bool, error) {
	return c.TerminationScheduled, c.Err
}

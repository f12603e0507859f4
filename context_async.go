package cpio

import (
	"sync"

	"github.com/google/uuid"
)

// Callback is invoked exactly once when a Context resolves.
type Callback[Req, Resp any] func(*Context[Req, Resp])

// Context is the universal one-shot carrier of a request, an optional
// response, a Result and a completion callback across goroutine
// boundaries. Exactly one producer path resolves a given Context: once
// Resolve has been called, the producer must not read or write it again.
//
// Req is owned by the caller until the callback fires. Resp is populated
// by the producer only on success.
type Context[Req, Resp any] struct {
	mu sync.Mutex

	request  Req
	response Resp
	result   Result
	resolved bool
	callback Callback[Req, Resp]

	// ParentID and ID together form the correlation identifier pair used
	// solely for log grouping; they have no semantic effect on resolution.
	ParentID uuid.UUID
	ID       uuid.UUID
}

// NewContext creates a Context carrying req, to be resolved by calling
// Resolve (directly, or via Then-chained follow-up work). parentID may be
// the zero UUID if this Context has no logical parent.
func NewContext[Req, Resp any](req Req, parentID uuid.UUID, cb Callback[Req, Resp]) *Context[Req, Resp] {
	return &Context[Req, Resp]{
		request:  req,
		callback: cb,
		ParentID: parentID,
		ID:       uuid.New(),
	}
}

// Request returns the request value the Context was created with.
func (c *Context[Req, Resp]) Request() Req {
	return c.request
}

// Response returns the response value, valid only once the Context has
// resolved with a successful Result.
func (c *Context[Req, Resp]) Response() Resp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response
}

// Result returns the Context's resolved Result. Before resolution it
// returns the zero Result (success); callers should gate on Resolved.
func (c *Context[Req, Resp]) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Resolved reports whether Resolve has already been called.
func (c *Context[Req, Resp]) Resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Resolve sets the Context's result (and response, on success), then
// invokes the completion callback exactly once. Calling Resolve a second
// time is a no-op: the producer must guarantee it resolves a given
// Context at most once, but Resolve itself stays defensive so a
// programming mistake surfaces as a dropped second resolution rather than
// a double-invoked callback or a data race on response.
func (c *Context[Req, Resp]) Resolve(result Result, resp Resp) {
	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return
	}
	c.resolved = true
	c.result = result
	if result.IsSuccess() {
		c.response = resp
	}
	cb := c.callback
	c.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

// ResolveSuccess is a convenience wrapper for Resolve(Success(), resp).
func (c *Context[Req, Resp]) ResolveSuccess(resp Resp) {
	c.Resolve(Success(), resp)
}

// ResolveFailure is a convenience wrapper that resolves with a failure
// Result and the zero Resp value.
func (c *Context[Req, Resp]) ResolveFailure(result Result) {
	var zero Resp
	c.Resolve(result, zero)
}

// Then schedules cb to run after this Context resolves. If the Context has
// already resolved, cb runs immediately (on the calling goroutine). This
// is how multi-step flows (prepare -> fetch -> insert -> emit) are
// composed: each step's producer resolves its own Context and chains the
// next step via Then rather than nesting callbacks by hand.
func (c *Context[Req, Resp]) Then(cb Callback[Req, Resp]) {
	c.mu.Lock()
	if !c.resolved {
		prev := c.callback
		c.callback = func(ctx *Context[Req, Resp]) {
			if prev != nil {
				prev(ctx)
			}
			cb(ctx)
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	cb(c)
}

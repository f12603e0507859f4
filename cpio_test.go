package cpio

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestContextResolveInvokesCallbackOnce(t *testing.T) {
	var calls int
	ctx := NewContext[string, int]("req", uuid.Nil, func(c *Context[string, int]) {
		calls++
	})

	ctx.ResolveSuccess(42)
	ctx.ResolveSuccess(43) // second call must be a no-op

	if calls != 1 {
		t.Fatalf("callback invoked %d times, want 1", calls)
	}
	if ctx.Response() != 42 {
		t.Fatalf("response = %d, want 42", ctx.Response())
	}
	if !ctx.Result().IsSuccess() {
		t.Fatalf("result = %v, want success", ctx.Result())
	}
}

func TestContextThenAfterResolveRunsImmediately(t *testing.T) {
	ctx := NewContext[string, int]("req", uuid.Nil, nil)
	ctx.ResolveFailure(Failure(CodeMissingJobID, nil))

	var ran bool
	ctx.Then(func(c *Context[string, int]) {
		ran = true
	})

	if !ran {
		t.Fatal("Then should run immediately on an already-resolved Context")
	}
}

func TestContextThenChainsBeforeResolve(t *testing.T) {
	ctx := NewContext[string, int]("req", uuid.Nil, nil)

	var order []int
	ctx.Then(func(c *Context[string, int]) { order = append(order, 1) })
	ctx.Then(func(c *Context[string, int]) { order = append(order, 2) })
	ctx.ResolveSuccess(1)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}

func TestResultErrWrapsCode(t *testing.T) {
	r := Retriable(CodeJobBeingProcessed, nil)
	if err := r.Err(); err == nil || err.Error() != string(CodeJobBeingProcessed) {
		t.Fatalf("err = %v, want %q", err, CodeJobBeingProcessed)
	}
	if Success().Err() != nil {
		t.Fatal("a successful Result must adapt to a nil error")
	}
}

func TestResultErrWithoutCodeReturnsUnderlying(t *testing.T) {
	underlying := errors.New("transport broke")
	r := Retriable(CodeNone, underlying)
	if err := r.Err(); !errors.Is(err, underlying) || err.Error() != "transport broke" {
		t.Fatalf("err = %v, want the underlying error unadorned", err)
	}
	if err := Failure(CodeNone, nil).Err(); err == nil {
		t.Fatal("a codeless failure must still adapt to a non-nil error")
	}
}

func TestResultOutcomeClassification(t *testing.T) {
	if !Success().IsSuccess() || Success().IsFailure() {
		t.Fatal("Success() misclassified")
	}
	if !Retriable(CodeNone, nil).IsRetriable() || !Retriable(CodeNone, nil).IsFailure() {
		t.Fatal("Retriable() misclassified")
	}
	if Failure(CodeNone, nil).IsRetriable() || !Failure(CodeNone, nil).IsFailure() {
		t.Fatal("Failure() misclassified")
	}
}

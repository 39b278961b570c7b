// Package executor provides the generic retry, timeout, and parallel
// fan-out primitive shared by the orchestrator nodes and the scheduler.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultRetryDelay is the constant delay between step retries.
const DefaultRetryDelay = 5 * time.Second

// StepStatus is the outcome classification of a step execution.
type StepStatus string

const (
	StepSuccess StepStatus = "SUCCESS"
	StepFailed  StepStatus = "FAILED"
)

// CapabilityStatus is the outcome classification of a single-attempt
// capability execution.
type CapabilityStatus string

const (
	CapabilitySuccess CapabilityStatus = "SUCCESS"
	CapabilityTimeout CapabilityStatus = "TIMEOUT"
	CapabilityError   CapabilityStatus = "ERROR"
)

// Func is the unit of work driven by the executor.
type Func func(ctx context.Context) (any, error)

// StepResult reports the outcome of ExecuteStep.
type StepResult struct {
	Step     string
	Status   StepStatus
	Attempts int
	Result   any
	Err      error
}

// CapabilityResult reports the outcome of ExecuteCapability.
type CapabilityResult struct {
	Name   string
	Status CapabilityStatus
	Result any
	Err    error
}

// ParallelResult reports the outcome of ExecuteParallel. Individual
// failures appear as items in Results; Status is FAILED only when the
// outer timeout or context cancelled the fan-out.
type ParallelResult struct {
	Name    string
	Status  StepStatus
	Results map[string]CapabilityResult
}

// Executor runs named units of work under timeouts with constant-delay
// retries. Failures from the unit are classified only as errors; the
// executor never interprets error types.
type Executor struct {
	logger *slog.Logger

	// MaxParallel bounds concurrent tasks in ExecuteParallel. Zero means
	// unbounded.
	maxParallel int64
}

// Option configures the executor.
type Option func(*Executor)

// WithLogger configures the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxParallel bounds concurrency for ExecuteParallel.
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = int64(n)
		}
	}
}

// New creates an executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.Default().With("component", "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteStep invokes fn under the timeout, retrying up to maxRetries
// times with a constant retryDelay between attempts. A retryDelay of
// zero or less uses DefaultRetryDelay.
func (e *Executor) ExecuteStep(ctx context.Context, name string, fn Func, timeout time.Duration, maxRetries int, retryDelay time.Duration) StepResult {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	result := StepResult{Step: name, Status: StepFailed}
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		value, err := e.runOnce(ctx, name, fn, timeout)
		if err == nil {
			result.Status = StepSuccess
			result.Result = value
			result.Err = nil
			return result
		}
		result.Err = err

		if attempt < maxRetries {
			e.logger.Warn("step failed, retrying",
				"step", name,
				"attempt", attempt+1,
				"max_retries", maxRetries,
				"error", err)
			select {
			case <-ctx.Done():
				result.Err = ctx.Err()
				return result
			case <-time.After(retryDelay):
			}
		}
	}
	return result
}

// ExecuteCapability invokes fn once under the timeout and classifies the
// outcome as SUCCESS, TIMEOUT, or ERROR.
func (e *Executor) ExecuteCapability(ctx context.Context, name string, fn Func, timeout time.Duration) CapabilityResult {
	value, err := e.runOnce(ctx, name, fn, timeout)
	result := CapabilityResult{Name: name, Result: value, Err: err}
	switch {
	case err == nil:
		result.Status = CapabilitySuccess
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = CapabilityTimeout
	default:
		result.Status = CapabilityError
	}
	return result
}

// ExecuteParallel fans out the named tasks, gathers every outcome, and
// honors a single outer timeout across the whole fan-out.
func (e *Executor) ExecuteParallel(ctx context.Context, name string, tasks map[string]Func, timeout time.Duration) ParallelResult {
	result := ParallelResult{
		Name:    name,
		Status:  StepSuccess,
		Results: make(map[string]CapabilityResult, len(tasks)),
	}
	if len(tasks) == 0 {
		return result
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var sem *semaphore.Weighted
	if e.maxParallel > 0 {
		sem = semaphore.NewWeighted(e.maxParallel)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for taskName, fn := range tasks {
		wg.Add(1)
		go func(taskName string, fn Func) {
			defer wg.Done()
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					mu.Lock()
					result.Results[taskName] = CapabilityResult{Name: taskName, Status: CapabilityTimeout, Err: err}
					mu.Unlock()
					return
				}
				defer sem.Release(1)
			}
			// Each task gets the remaining slice of the outer deadline.
			item := e.ExecuteCapability(ctx, taskName, fn, 0)
			mu.Lock()
			result.Results[taskName] = item
			mu.Unlock()
		}(taskName, fn)
	}
	wg.Wait()

	if ctx.Err() != nil {
		result.Status = StepFailed
	}
	return result
}

// runOnce executes fn under an optional timeout and recovers panics into
// errors so callers always observe a plain error return.
func (e *Executor) runOnce(ctx context.Context, name string, fn Func, timeout time.Duration) (value any, err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("panic in executor task",
					"task", name,
					"panic", r,
					"stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.value, out.err
	}
}

// Package forge enforces suite-level resource limits on the self-repair
// loop. Quest budgets bound agent behavior inside one challenge; this
// governor bounds the cost of the infrastructure that drives reflection
// across an entire suite run. The two are deliberately orthogonal.
package forge

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/agentdojo/internal/schema"
)

// Defaults are conservative but not restrictive for normal use.
const (
	DefaultReflectionTimeout = 60 * time.Second
	DefaultMaxReflections    = 10
	DefaultMaxSuiteSeconds   = 30 * time.Minute
)

// ErrBudgetExceeded is the root condition for every forge-level limit.
var ErrBudgetExceeded = errors.New("forge budget exceeded")

// ErrReflectionTimeout is raised when a single reflection call exceeds its
// time limit. It wraps ErrBudgetExceeded, so errors.Is(err,
// ErrBudgetExceeded) holds for timeouts as well.
var ErrReflectionTimeout = fmt.Errorf("%w: reflection timeout", ErrBudgetExceeded)

// Handler is the reflection-handler contract: it receives a structured
// request and returns a structured response, or an error.
type Handler func(*schema.ReflectionRequest) (*schema.ReflectionResponse, error)

// Budget tracks and enforces forge-level resource limits across a suite run.
type Budget struct {
	MaxReflectionSeconds time.Duration
	MaxReflections       int
	MaxSuiteSeconds      time.Duration

	suiteStart  time.Time
	started     bool
	reflections int
}

// NewBudget returns a Budget with the default limits.
func NewBudget() *Budget {
	return &Budget{
		MaxReflectionSeconds: DefaultReflectionTimeout,
		MaxReflections:       DefaultMaxReflections,
		MaxSuiteSeconds:      DefaultMaxSuiteSeconds,
	}
}

// StartSuite resets the suite clock and the reflection counter.
func (b *Budget) StartSuite() {
	b.suiteStart = time.Now()
	b.started = true
	b.reflections = 0
}

// ElapsedSuite returns the wall-clock time since StartSuite, or zero when
// the suite has not started.
func (b *Budget) ElapsedSuite() time.Duration {
	if !b.started {
		return 0
	}
	return time.Since(b.suiteStart)
}

// CheckSuiteTime fails once elapsed suite time exceeds MaxSuiteSeconds.
func (b *Budget) CheckSuiteTime() error {
	elapsed := b.ElapsedSuite()
	if elapsed > b.MaxSuiteSeconds {
		return fmt.Errorf("%w: suite time limit reached: %.0fs elapsed (max %.0fs), halting forge mode",
			ErrBudgetExceeded, elapsed.Seconds(), b.MaxSuiteSeconds.Seconds())
	}
	return nil
}

// CheckReflectionCount fails once the counter reaches MaxReflections.
func (b *Budget) CheckReflectionCount() error {
	if b.reflections >= b.MaxReflections {
		return fmt.Errorf("%w: reflection call limit reached: %d used (max %d), remaining quests will not reflect",
			ErrBudgetExceeded, b.reflections, b.MaxReflections)
	}
	return nil
}

// RecordReflection increments the reflection counter after a completed call.
func (b *Budget) RecordReflection() {
	b.reflections++
}

// CallWithTimeout executes handler(req) on an auxiliary goroutine so a hung
// handler never blocks the governing process, and waits up to
// MaxReflectionSeconds for it. On deadline it returns ErrReflectionTimeout
// and abandons the in-flight call: no cancellation is delivered, the
// goroutine completes into a buffered channel and exits on its own. A
// handler error within the deadline propagates unchanged.
func (b *Budget) CallWithTimeout(handler Handler, req *schema.ReflectionRequest) (*schema.ReflectionResponse, error) {
	type outcome struct {
		resp *schema.ReflectionResponse
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := handler(req)
		done <- outcome{resp, err}
	}()

	select {
	case o := <-done:
		return o.resp, o.err
	case <-time.After(b.MaxReflectionSeconds):
		return nil, fmt.Errorf("reflection handler timed out after %.0fs, quest marked as failed: %w",
			b.MaxReflectionSeconds.Seconds(), ErrReflectionTimeout)
	}
}

// Summary returns a short line for the session report.
func (b *Budget) Summary() string {
	return fmt.Sprintf("Forge budget: %d/%d reflections used, %.0fs elapsed",
		b.reflections, b.MaxReflections, b.ElapsedSuite().Seconds())
}

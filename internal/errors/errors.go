package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// BuildFailure aggregates the failures of a build. It is returned by the
// build orchestrator after every task has finished.
type BuildFailure struct {
	// Failed lists the failed task names in the order passed to
	// Collector.Failure.
	Failed []string
	Causes map[string]error
}

// Error lists the failed tasks.
func (bf *BuildFailure) Error() string {
	return fmt.Sprintf("build failed: %d task(s) failed: %s", len(bf.Failed), strings.Join(bf.Failed, ", "))
}

// Unwrap exposes every cause so errors.Is and errors.As see through the
// aggregate.
func (bf *BuildFailure) Unwrap() []error {
	errs := make([]error, 0, len(bf.Failed))
	for _, name := range bf.Failed {
		errs = append(errs, bf.Causes[name])
	}
	return errs
}

// Collector collects per-task errors from concurrently running tasks.
type Collector struct {
	errors map[string]error
	mutex  sync.Mutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{errors: make(map[string]error)}
}

// Add records the error of a task. Nil errors are ignored.
func (c *Collector) Add(task string, err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.errors[task] = err
}

// HasErrors returns true if any task failed.
func (c *Collector) HasErrors() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.errors) > 0
}

// Failure returns a BuildFailure for the recorded errors, or nil when no
// task failed. order fixes the reporting order; tasks missing from it are
// appended alphabetically.
func (c *Collector) Failure(order []string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.errors) == 0 {
		return nil
	}

	failure := &BuildFailure{Causes: make(map[string]error, len(c.errors))}
	seen := make(map[string]bool, len(c.errors))
	for _, name := range order {
		if err, ok := c.errors[name]; ok {
			failure.Failed = append(failure.Failed, name)
			failure.Causes[name] = err
			seen[name] = true
		}
	}

	var rest []string
	for name := range c.errors {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		failure.Failed = append(failure.Failed, name)
		failure.Causes[name] = c.errors[name]
	}

	return failure
}

package runner

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// Result is the outcome of running one node. Composite results carry the results of
// the children that actually ran; series children after a failure are absent.
type Result struct {
	RunID    string
	Node     string
	Mode     pipeline.Mode
	Task     string
	Outputs  []string
	Err      error
	Children []Result
	Started  time.Time
	Duration time.Duration
}

// OK reports whether the node and everything below it succeeded.
func (r Result) OK() bool { return r.Err == nil }

// OutputCount returns the number of files written by the node.
func (r Result) OutputCount() int { return len(r.Outputs) }

// Leaves returns the leaf results in execution-tree order.
func (r Result) Leaves() []Result {
	if r.Mode == pipeline.ModeLeaf {
		return []Result{r}
	}
	var out []Result
	for _, c := range r.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// Failures returns every leaf failure in the tree.
func (r Result) Failures() []*TaskError {
	var out []*TaskError
	for _, leaf := range r.Leaves() {
		if te, ok := leaf.Err.(*TaskError); ok {
			out = append(out, te)
		}
	}
	return out
}

// TaskError is a leaf failure. The transform's own error is kept verbatim as the cause.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }

func (e *TaskError) Unwrap() error { return e.Err }

// ParallelError aggregates the failed children of a parallel composite.
type ParallelError struct {
	Node     string
	Failures []error
}

func (e *ParallelError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("%s: %d of the parallel tasks failed: %s", e.Node, len(e.Failures), strings.Join(msgs, "; "))
}

func (e *ParallelError) Unwrap() []error { return slices.Clone(e.Failures) }

// FailedTasks returns the names of the failed leaves below the composite.
func (e *ParallelError) FailedTasks() []string {
	var names []string
	for _, f := range e.Failures {
		switch v := f.(type) {
		case *TaskError:
			names = append(names, v.Task)
		case *ParallelError:
			names = append(names, v.FailedTasks()...)
		}
	}
	return names
}

package pipeline

// Spec is the declarative form of a task graph. Exactly one of Task, Pipeline,
// Series or Parallel must be set.
type Spec struct {
	// Task names a registered task.
	Task string
	// Pipeline references another named pipeline.
	Pipeline string
	Series   []Spec
	Parallel []Spec
	// Clean asks for the output root to be cleaned before the graph runs. Only
	// honoured on the root spec of the entry pipeline.
	Clean bool
}

// TaskSpec is shorthand for a spec naming a single task.
func TaskSpec(name string) Spec { return Spec{Task: name} }

// Ref is shorthand for a spec referencing a named pipeline.
func Ref(name string) Spec { return Spec{Pipeline: name} }

// SeriesOf is shorthand for a series spec.
func SeriesOf(children ...Spec) Spec {
	if children == nil {
		children = []Spec{}
	}
	return Spec{Series: children}
}

// ParallelOf is shorthand for a parallel spec.
func ParallelOf(children ...Spec) Spec {
	if children == nil {
		children = []Spec{}
	}
	return Spec{Parallel: children}
}

func (s Spec) kinds() int {
	n := 0
	if s.Task != "" {
		n++
	}
	if s.Pipeline != "" {
		n++
	}
	if s.Series != nil {
		n++
	}
	if s.Parallel != nil {
		n++
	}
	return n
}

// Plan is a resolved entry point: an optional clean of the output root followed by
// an optional graph.
type Plan struct {
	Name  string
	Clean bool
	Node  *Node
}

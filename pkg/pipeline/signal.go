package pipeline

// Signal is the tagged result a stage returns. A nil Signal means continue
// to the next stage.
type Signal interface {
	signal()
}

// Stop halts the run. Metadata is merged into the run result.
type Stop struct {
	Reason   string
	Metadata map[string]any
}

func (Stop) signal() {}

// DeclareAction queues a deferred side effect. Declaring an action does not
// by itself halt or advance the run; the stage implicitly continues.
type DeclareAction struct {
	Name string
	Data map[string]any
}

func (DeclareAction) signal() {}

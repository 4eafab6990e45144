package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionState_TransitionFailed_ShouldCascadeSkipDownstream(t *testing.T) {
	g := linearGraph()
	es := NewExecutionState("exec-1", g, map[string]any{})

	es.TransitionReady("A")
	es.TransitionRunning("A")
	es.TransitionComplete("A", map[string]any{})
	<-waitFor(es)

	es.TransitionReady("B")
	es.TransitionRunning("B")
	es.TransitionFailed("B", assertErr())
	<-waitFor(es)

	assert.Equal(t, StatusComplete, es.Status("A"))
	assert.Equal(t, StatusFailed, es.Status("B"))
	assert.Equal(t, StatusSkipped, es.Status("C"))
	assert.Equal(t, StatusSkipped, es.Status("D"))
	assert.Equal(t, StatusSkipped, es.Status("E"))
}

func TestExecutionState_Output_ShouldOnlyBeReadable_WhenComplete(t *testing.T) {
	g := linearGraph()
	es := NewExecutionState("exec-2", g, map[string]any{})

	_, ok := es.Output("A")
	assert.False(t, ok)

	es.TransitionReady("A")
	es.TransitionRunning("A")
	es.TransitionComplete("A", map[string]any{"ok": true})
	<-waitFor(es)

	out, ok := es.Output("A")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestExecutionState_HasWork_ShouldBeFalse_WhenAllTerminal(t *testing.T) {
	g := &Graph{Nodes: []Node{{ID: "A", Handler: "noop"}}}
	es := NewExecutionState("exec-3", g, map[string]any{})
	assert.True(t, es.HasWork())

	es.TransitionReady("A")
	es.TransitionRunning("A")
	es.TransitionComplete("A", nil)
	<-waitFor(es)

	assert.False(t, es.HasWork())
}

// waitFor drains the single completion signal produced by the test's own
// transition call from the buffered completions channel, standing in for
// the scheduler's AwaitCompletion.
func waitFor(es *ExecutionState) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		<-es.completions
		close(ch)
	}()
	return ch
}

func assertErr() error { return &EngineError{Kind: KindHandlerFailed, NodeID: "B"} }

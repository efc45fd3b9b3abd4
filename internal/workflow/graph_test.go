package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkrenev/supportflow/internal/workflow"
)

func noop(ctx context.Context, state workflow.State) (*workflow.Command, error) {
	return &workflow.Command{GoTo: workflow.End}, nil
}

func TestCompileRejectsMissingEntryPoint(t *testing.T) {
	_, err := workflow.NewGraphBuilder().
		AddNode("a", noop, workflow.End).
		Compile()
	require.Error(t, err)
}

func TestCompileRejectsUnknownEntryPoint(t *testing.T) {
	_, err := workflow.NewGraphBuilder().
		AddNode("a", noop, workflow.End).
		SetEntryPoint("nope").
		Compile()
	require.Error(t, err)
}

func TestCompileRejectsUnknownTarget(t *testing.T) {
	_, err := workflow.NewGraphBuilder().
		AddNode("a", noop, "ghost").
		SetEntryPoint("a").
		Compile()
	require.Error(t, err)
}

func TestCompileRejectsUnknownInterrupt(t *testing.T) {
	_, err := workflow.NewGraphBuilder().
		AddNode("a", noop, workflow.End).
		SetEntryPoint("a").
		InterruptBefore("ghost").
		Compile()
	require.Error(t, err)
}

func TestInterruptsBefore(t *testing.T) {
	graph, err := workflow.NewGraphBuilder().
		AddNode("a", noop, "b").
		AddNode("b", noop, workflow.End).
		SetEntryPoint("a").
		InterruptBefore("b").
		Compile()
	require.NoError(t, err)

	require.True(t, graph.InterruptsBefore("b"))
	require.False(t, graph.InterruptsBefore("a"))
	require.Equal(t, "a", graph.EntryPoint())
}

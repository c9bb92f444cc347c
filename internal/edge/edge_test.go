package edge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/velesdb/velesdb/internal/vlog"
)

func TestAddGetRemoveEdge(t *testing.T) {
	s := New(16, vlog.Nop())
	id, err := s.AddEdge(Edge{Source: 1, Target: 2, Label: "knows"})
	require.NoError(t, err)

	e, ok := s.GetEdge(id)
	require.True(t, ok)
	require.Equal(t, uint64(1), e.Source)
	require.Equal(t, uint64(2), e.Target)

	require.True(t, s.RemoveEdge(id))
	_, ok = s.GetEdge(id)
	require.False(t, ok)
}

func TestNeighborsByLabel(t *testing.T) {
	s := New(16, vlog.Nop())
	_, _ = s.AddEdge(Edge{Source: 1, Target: 2, Label: "knows"})
	_, _ = s.AddEdge(Edge{Source: 1, Target: 3, Label: "blocks"})

	knows := s.Neighbors(1, "knows")
	require.Len(t, knows, 1)
	require.Equal(t, uint64(2), knows[0].Target)

	all := s.Neighbors(1, "")
	require.Len(t, all, 2)
}

func TestBFSOmitsStartNode(t *testing.T) {
	s := New(16, vlog.Nop())
	_, _ = s.AddEdge(Edge{Source: 1, Target: 2, Label: "e"})
	_, _ = s.AddEdge(Edge{Source: 2, Target: 3, Label: "e"})

	edges := NewBFS(s, 1, 5).Collect()
	var touchesStartAsTarget bool
	for _, e := range edges {
		if e.Target == 1 {
			touchesStartAsTarget = true
		}
	}
	require.False(t, touchesStartAsTarget)
	require.Len(t, edges, 2)
}

func TestBFSRespectsMaxDepth(t *testing.T) {
	s := New(16, vlog.Nop())
	_, _ = s.AddEdge(Edge{Source: 1, Target: 2, Label: "e"})
	_, _ = s.AddEdge(Edge{Source: 2, Target: 3, Label: "e"})

	edges := NewBFS(s, 1, 1).Collect()
	require.Len(t, edges, 1)
}

func TestShortestPath(t *testing.T) {
	s := New(16, vlog.Nop())
	_, _ = s.AddEdge(Edge{Source: 1, Target: 2})
	_, _ = s.AddEdge(Edge{Source: 2, Target: 3})
	_, _ = s.AddEdge(Edge{Source: 1, Target: 3})

	path, ok := ShortestPath(s, 1, 3)
	require.True(t, ok)
	require.Len(t, path, 1)
}

func TestConnectedComponents(t *testing.T) {
	s := New(16, vlog.Nop())
	_, _ = s.AddEdge(Edge{Source: 1, Target: 2})
	_, _ = s.AddEdge(Edge{Source: 3, Target: 4})

	comps := ConnectedComponents(s)
	require.Len(t, comps, 2)
}

func TestAddEdgeRejectsOversizedNodeID(t *testing.T) {
	s := New(16, vlog.Nop())
	_, err := s.AddEdge(Edge{Source: uint64(1) << 40, Target: 2})
	require.Error(t, err)
}

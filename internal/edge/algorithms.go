// Supplemented from the teacher's pkg/graph/graph_algorithms.go: shortest
// path and connected components, additive per SPEC_FULL.md §9 (the spec's
// Non-goals exclude a cost-based join optimizer, not graph algorithms).
package edge

// ShortestPath runs unweighted BFS shortest path from start to target,
// returning the edge sequence of the path, or ok=false if unreachable.
func ShortestPath(store *Store, start, target uint64) ([]Edge, bool) {
	if start == target {
		return nil, true
	}
	parent := make(map[uint64]uint64)
	viaEdge := make(map[uint64]Edge)
	visited := map[uint64]bool{start: true}
	queue := []uint64{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range store.Neighbors(cur, "") {
			next := e.Target
			if next == cur {
				next = e.Source
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = cur
			viaEdge[next] = e
			if next == target {
				return reconstructPath(parent, viaEdge, start, target), true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

func reconstructPath(parent map[uint64]uint64, viaEdge map[uint64]Edge, start, target uint64) []Edge {
	var path []Edge
	for cur := target; cur != start; cur = parent[cur] {
		path = append([]Edge{viaEdge[cur]}, path...)
	}
	return path
}

// ConnectedComponents partitions every node touched by an edge into
// connected components (treating edges as undirected for this purpose),
// returning one slice of node ids per component.
func ConnectedComponents(store *Store) [][]uint64 {
	nodes := store.NodeIDSet()
	visited := make(map[uint64]bool)
	var components [][]uint64

	it := nodes.Iterator()
	for it.HasNext() {
		start := uint64(it.Next())
		if visited[start] {
			continue
		}
		var component []uint64
		queue := []uint64{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, e := range store.Neighbors(cur, "") {
				next := e.Target
				if next == cur {
					next = e.Source
				}
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		components = append(components, component)
	}
	return components
}

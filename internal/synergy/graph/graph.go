package graph

import (
	"github.com/pgvector/pgvector-go"
)

// DeviceGraph is the node/edge view of the home built for one scoring or
// training cycle. It is immutable after Build returns; concurrent readers
// need no locking.
type DeviceGraph struct {
	// Nodes holds entity ids in first-seen order.
	Nodes []string

	// NodeIndex maps entity_id to its dense index in Nodes.
	NodeIndex map[string]int

	// NodeFeatures holds one fixed-width feature vector per node.
	NodeFeatures [][]float32

	// Edges holds undirected pairs of node indices, lower index first.
	Edges [][2]int

	edgeSet map[[2]int]struct{}
}

// NodeCount returns the number of nodes in the graph.
func (g *DeviceGraph) NodeCount() int {
	return len(g.Nodes)
}

// EdgeCount returns the number of undirected edges in the graph.
func (g *DeviceGraph) EdgeCount() int {
	return len(g.Edges)
}

// Contains reports whether the entity is a node in the graph.
func (g *DeviceGraph) Contains(entityID string) bool {
	_, ok := g.NodeIndex[entityID]
	return ok
}

// HasEdge reports whether two entities are connected, in either order.
func (g *DeviceGraph) HasEdge(a, b string) bool {
	ia, ok := g.NodeIndex[a]
	if !ok {
		return false
	}
	ib, ok := g.NodeIndex[b]
	if !ok {
		return false
	}
	_, ok = g.edgeSet[edgeKey(ia, ib)]
	return ok
}

// Degree returns the number of edges touching the entity.
func (g *DeviceGraph) Degree(entityID string) int {
	idx, ok := g.NodeIndex[entityID]
	if !ok {
		return 0
	}

	degree := 0
	for _, edge := range g.Edges {
		if edge[0] == idx || edge[1] == idx {
			degree++
		}
	}
	return degree
}

// Features returns the feature vector for an entity.
func (g *DeviceGraph) Features(entityID string) ([]float32, bool) {
	idx, ok := g.NodeIndex[entityID]
	if !ok {
		return nil, false
	}
	return g.NodeFeatures[idx], true
}

// NodeVector returns the entity's feature vector as a pgvector value,
// ready to persist for similarity search.
func (g *DeviceGraph) NodeVector(entityID string) (pgvector.Vector, bool) {
	features, ok := g.Features(entityID)
	if !ok {
		return pgvector.Vector{}, false
	}
	return pgvector.NewVector(features), true
}

// addEdge records an undirected edge once, ignoring self-loops.
func (g *DeviceGraph) addEdge(a, b int) {
	if a == b {
		return
	}
	key := edgeKey(a, b)
	if _, exists := g.edgeSet[key]; exists {
		return
	}
	g.edgeSet[key] = struct{}{}
	g.Edges = append(g.Edges, key)
}

// edgeKey canonicalizes an undirected pair, lower index first.
func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

func testEntities() []ontology.Entity {
	return []ontology.Entity{
		{EntityID: "light.bedroom", Domain: "light", AreaID: "bedroom"},
		{EntityID: "binary_sensor.motion_bedroom", Domain: "binary_sensor", AreaID: "bedroom"},
		{EntityID: "light.kitchen", Domain: "light", AreaID: "kitchen"},
		{EntityID: "sensor.temp_kitchen", Domain: "sensor", AreaID: "kitchen"},
	}
}

func TestBuildAssignsDenseIndicesInFirstSeenOrder(t *testing.T) {
	builder := NewBuilder(nil)
	g := builder.Build(testEntities(), nil)

	require.Equal(t, 4, g.NodeCount())
	assert.Equal(t, []string{
		"light.bedroom",
		"binary_sensor.motion_bedroom",
		"light.kitchen",
		"sensor.temp_kitchen",
	}, g.Nodes)

	for i, id := range g.Nodes {
		assert.Equal(t, i, g.NodeIndex[id])
	}
	assert.Len(t, g.NodeFeatures, g.NodeCount())
}

func TestBuildSkipsEntitiesWithoutID(t *testing.T) {
	builder := NewBuilder(nil)
	entities := append(testEntities(), ontology.Entity{Domain: "light", AreaID: "hall"})

	g := builder.Build(entities, nil)

	assert.Equal(t, 4, g.NodeCount())
}

func TestBuildIgnoresDuplicateEntities(t *testing.T) {
	builder := NewBuilder(nil)
	entities := append(testEntities(), testEntities()[0])

	g := builder.Build(entities, nil)

	assert.Equal(t, 4, g.NodeCount())
}

func TestBuildSynergyEdges(t *testing.T) {
	builder := NewBuilder(nil)
	synergies := []ontology.Synergy{
		{ID: "syn-1", DeviceIDs: []string{"light.bedroom", "light.kitchen"}, Confidence: 0.9},
	}

	g := builder.Build(testEntities(), synergies)

	assert.True(t, g.HasEdge("light.bedroom", "light.kitchen"))
	assert.True(t, g.HasEdge("light.kitchen", "light.bedroom"), "edges are undirected")
}

func TestBuildSynergyEdgesForAllCombinations(t *testing.T) {
	builder := NewBuilder(nil)
	synergies := []ontology.Synergy{
		{ID: "syn-1", DeviceIDs: []string{"light.bedroom", "light.kitchen", "sensor.temp_kitchen"}},
	}

	g := builder.Build(testEntities(), synergies)

	// 3 devices give 3 unordered combinations.
	assert.True(t, g.HasEdge("light.bedroom", "light.kitchen"))
	assert.True(t, g.HasEdge("light.bedroom", "sensor.temp_kitchen"))
	assert.True(t, g.HasEdge("light.kitchen", "sensor.temp_kitchen"))
}

func TestBuildColocationEdges(t *testing.T) {
	builder := NewBuilder(nil)
	g := builder.Build(testEntities(), nil)

	// Same area, affinity domain pair.
	assert.True(t, g.HasEdge("light.bedroom", "binary_sensor.motion_bedroom"))
	assert.True(t, g.HasEdge("light.kitchen", "sensor.temp_kitchen"))

	// Different areas never get a co-location edge.
	assert.False(t, g.HasEdge("light.bedroom", "light.kitchen"))
	assert.False(t, g.HasEdge("binary_sensor.motion_bedroom", "sensor.temp_kitchen"))
}

func TestBuildSkipsSynergyWithUnknownDevice(t *testing.T) {
	builder := NewBuilder(nil)
	synergies := []ontology.Synergy{
		{ID: "syn-1", DeviceIDs: []string{"light.bedroom", "light.garage"}},
	}

	g := builder.Build(testEntities(), synergies)

	assert.False(t, g.HasEdge("light.bedroom", "light.garage"))
	assert.False(t, g.Contains("light.garage"))
}

func TestBuildDeterminism(t *testing.T) {
	builder := NewBuilder(nil)
	synergies := []ontology.Synergy{
		{ID: "syn-1", DeviceIDs: []string{"light.bedroom", "binary_sensor.motion_bedroom"}, Confidence: 0.9},
	}

	g1 := builder.Build(testEntities(), synergies)
	g2 := builder.Build(testEntities(), synergies)

	assert.Equal(t, g1.Nodes, g2.Nodes)
	assert.Equal(t, g1.Edges, g2.Edges)
	assert.Equal(t, g1.NodeFeatures, g2.NodeFeatures)
}

func TestAffinityPair(t *testing.T) {
	motion := ontology.Entity{EntityID: "binary_sensor.motion", Domain: "binary_sensor", AreaID: "hall"}
	light := ontology.Entity{EntityID: "light.hall", Domain: "light", AreaID: "hall"}
	lightElsewhere := ontology.Entity{EntityID: "light.porch", Domain: "light", AreaID: "porch"}
	lock := ontology.Entity{EntityID: "lock.front", Domain: "lock", AreaID: "hall"}

	assert.True(t, AffinityPair(motion, light))
	assert.True(t, AffinityPair(light, motion), "affinity is symmetric")
	assert.False(t, AffinityPair(motion, lightElsewhere), "different areas never pair")
	assert.True(t, AffinityPair(motion, lock))
	assert.False(t, AffinityPair(light, lock), "light/lock is not an affinity pair")

	unassigned := ontology.Entity{EntityID: "light.spare", Domain: "light"}
	motionUnassigned := ontology.Entity{EntityID: "binary_sensor.spare", Domain: "binary_sensor"}
	assert.False(t, AffinityPair(unassigned, motionUnassigned), "empty areas never pair")
}

func TestDegree(t *testing.T) {
	builder := NewBuilder(nil)
	g := builder.Build(testEntities(), nil)

	assert.Equal(t, 1, g.Degree("light.bedroom"))
	assert.Equal(t, 0, g.Degree("light.unknown"))
}

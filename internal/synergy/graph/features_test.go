package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtthornton/HomeIQ-sub015/pkg/ontology"
)

func TestComputeNodeFeaturesWidth(t *testing.T) {
	entity := ontology.Entity{EntityID: "light.bedroom", Domain: "light", AreaID: "bedroom"}

	features := ComputeNodeFeatures(entity, 0)

	assert.Len(t, features, FeatureDim)
}

func TestDomainOneHot(t *testing.T) {
	light := ComputeNodeFeatures(ontology.Entity{EntityID: "light.a", Domain: "light"}, 0)
	sensor := ComputeNodeFeatures(ontology.Entity{EntityID: "sensor.a", Domain: "sensor"}, 0)

	assert.Equal(t, float32(1.0), light[0])
	assert.Equal(t, float32(0.0), light[2])
	assert.Equal(t, float32(1.0), sensor[2])

	// Unknown domains share the overflow slot.
	exotic := ComputeNodeFeatures(ontology.Entity{EntityID: "valve.a", Domain: "valve"}, 0)
	assert.Equal(t, float32(1.0), exotic[otherDomainSlot])
}

func TestDomainInferredFromEntityID(t *testing.T) {
	features := ComputeNodeFeatures(ontology.Entity{EntityID: "light.bedroom"}, 0)

	assert.Equal(t, float32(1.0), features[0], "domain falls back to the entity_id prefix")
}

func TestAreaEncodingDeterminism(t *testing.T) {
	vec1 := encodeArea("kitchen")
	vec2 := encodeArea("kitchen")
	assert.Equal(t, vec1, vec2)

	vecBedroom := encodeArea("bedroom")
	assert.NotEqual(t, vec1, vecBedroom)
}

func TestEmptyAreaEncodesToZero(t *testing.T) {
	vec := encodeArea("")
	for _, v := range vec {
		assert.Equal(t, float32(0.0), v)
	}
}

func TestUsageBuckets(t *testing.T) {
	tests := []struct {
		count  int
		bucket int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{10, 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.bucket, usageBucket(tt.count), "count %d", tt.count)
	}
}

func TestUsageBucketInFeatures(t *testing.T) {
	entity := ontology.Entity{EntityID: "light.a", Domain: "light"}

	unused := ComputeNodeFeatures(entity, 0)
	heavy := ComputeNodeFeatures(entity, 5)

	assert.Equal(t, float32(1.0), unused[28])
	assert.Equal(t, float32(0.0), unused[31])
	assert.Equal(t, float32(1.0), heavy[31])
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(a, c), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{1, 2}), "length mismatch")
	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{0, 0, 0}), "zero vector")
}

func TestNodeVectorRoundTrip(t *testing.T) {
	builder := NewBuilder(nil)
	g := builder.Build(testEntities(), nil)

	vec, ok := g.NodeVector("light.bedroom")
	require.True(t, ok)
	assert.Len(t, vec.Slice(), FeatureDim)

	features, _ := g.Features("light.bedroom")
	assert.Equal(t, features, vec.Slice())

	_, ok = g.NodeVector("light.unknown")
	assert.False(t, ok)
}

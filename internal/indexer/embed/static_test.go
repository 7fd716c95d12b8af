package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestStatic_Embed_ReturnsCorrectDimension(t *testing.T) {
	e := NewStatic()
	vecs, err := e.Embed(context.Background(), []string{"func main() {}"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Len(t, vecs[0], StaticDimensions)
	assert.Equal(t, StaticDimensions, e.Dimension())
}

func TestStatic_Embed_VectorIsNormalized(t *testing.T) {
	e := NewStatic()
	vecs, err := e.Embed(context.Background(), []string{"func main() {}"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vectorMagnitude(vecs[0]), 0.001)
}

func TestStatic_Embed_EmptyTextIsZeroVector(t *testing.T) {
	e := NewStatic()
	vecs, err := e.Embed(context.Background(), []string{"   "})
	require.NoError(t, err)
	assert.Equal(t, 0.0, vectorMagnitude(vecs[0]))
}

func TestStatic_Embed_IsDeterministic(t *testing.T) {
	e := NewStatic()
	text := "func add(a, b int) int { return a + b }"
	emb1, err1 := e.Embed(context.Background(), []string{text})
	emb2, err2 := e.Embed(context.Background(), []string{text})
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, emb1, emb2)
}

func TestStatic_Embed_DeterministicAcrossInstances(t *testing.T) {
	e1, e2 := NewStatic(), NewStatic()
	text := "func getUserByID(id string) (*User, error)"
	emb1, _ := e1.Embed(context.Background(), []string{text})
	emb2, _ := e2.Embed(context.Background(), []string{text})
	assert.Equal(t, emb1, emb2)
}

func TestStatic_Embed_DifferentTextDiffers(t *testing.T) {
	e := NewStatic()
	emb1, _ := e.Embed(context.Background(), []string{"func add(a, b int) int { return a + b }"})
	emb2, _ := e.Embed(context.Background(), []string{"class User implements Serializable {}"})
	assert.NotEqual(t, emb1[0], emb2[0])
}

func TestStatic_Embed_BatchMatchesSingleCalls(t *testing.T) {
	e := NewStatic()
	texts := []string{"func a() {}", "func b() {}", "func c() {}"}
	batch, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))
	for i, text := range texts {
		single, err := e.Embed(context.Background(), []string{text})
		require.NoError(t, err)
		assert.Equal(t, single[0], batch[i])
	}
}

package emb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	cases := [][]float32{
		{},
		{0},
		{1.5, -2.25, 0.000125},
		{3.14159, -0.5, 42, 1e-7, -1e7},
	}
	for _, vec := range cases {
		blob := EncodeVector(vec)
		got, err := DecodeVector(blob)
		require.NoError(t, err)
		assert.Equal(t, vec, got)
	}
}

func TestDecodeVectorRejectsMalformedBlobs(t *testing.T) {
	_, err := DecodeVector(nil)
	assert.Error(t, err)

	_, err = DecodeVector([]byte{1, 2})
	assert.Error(t, err)

	// Header claims two floats but payload carries one.
	blob := EncodeVector([]float32{1, 2})
	_, err = DecodeVector(blob[:len(blob)-4])
	assert.Error(t, err)
}

func TestEmbedTextServesFromCaches(t *testing.T) {
	dir := t.TempDir()
	e := &Embedder{
		cfg:      EmbedderConfig{CacheDir: dir, ModelID: "test-model"},
		memCache: make(map[string][]float32),
	}
	want := []float32{0.25, -0.5, 1}
	require.NoError(t, e.saveToDisk(e.cacheKey("hello"), want))

	// Disk hit hydrates the memory cache without touching the encoder.
	got, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Callers get a copy, not the cached slice.
	got[0] = 99
	again, err := e.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, want, again)

	// A cache miss with no encoder surfaces an error.
	_, err = e.EmbedText(context.Background(), "unseen text")
	assert.Error(t, err)
}

func TestSqrt32(t *testing.T) {
	assert.Equal(t, float32(3), sqrt32(9))
	assert.Equal(t, float32(0), sqrt32(0))
	assert.InDelta(t, 1.41421356, float64(sqrt32(2)), 1e-6)
}

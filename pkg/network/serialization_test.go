package network

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRoundTrip(t *testing.T) {
	bias := 1.0
	nn, err := Build([]int{3, 4, 2}, &BuildConfig{
		Bias:    &bias,
		Weights: Uniform(rand.NewPCG(9, 9)),
		Hidden:  TanhActivation,
	})
	require.NoError(t, err)
	input := []float64{0.1, -0.4, 0.7}
	want, err := nn.Feed(input)
	require.NoError(t, err)

	model := nn.Snapshot()
	require.Len(t, model.Layers, 3)
	assert.Equal(t, LayerModel{Kind: KindOutput, Size: 2, Activation: "sigmoid"}, model.Layers[2])
	assert.Equal(t, "tanh", model.Layers[1].Activation)
	assert.Len(t, model.Layers[0].Weights, 4)
	assert.Len(t, model.Layers[0].Weights[0], 4)

	data, err := EncodeModel(nn)
	require.NoError(t, err)
	decoded, err := DecodeFromBase64(EncodeToBase64(data))
	require.NoError(t, err)
	restored, err := DecodeModel(decoded)
	require.NoError(t, err)

	changes, err := nn.Diff(restored)
	require.NoError(t, err)
	assert.Empty(t, changes)
	got, err := restored.Feed(input)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, model, restored.Snapshot())

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, SaveModel(nn, path))
	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, model, loaded.Snapshot())

	_, err = LoadModel(filepath.Join(t.TempDir(), "missing.gob"))
	assert.Error(t, err)
	_, err = DecodeModel([]byte("not gob"))
	assert.Error(t, err)
}

func TestFromModelRejects(t *testing.T) {
	_, err := FromModel(Model{Layers: []LayerModel{{Kind: KindOutput, Size: 1}}})
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = FromModel(Model{Layers: []LayerModel{
		{Kind: KindInput, Size: 1, Weights: [][]float64{{1}}},
		{Kind: KindHidden, Size: 1, Weights: [][]float64{{1}}},
	}})
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = FromModel(Model{Layers: []LayerModel{
		{Kind: KindInput, Size: 2, Weights: [][]float64{{1}}},
		{Kind: KindOutput, Size: 1},
	}})
	assert.True(t, errors.Is(err, ErrConfiguration), "too few weights")

	_, err = FromModel(Model{Layers: []LayerModel{
		{Kind: KindInput, Size: 1, Weights: [][]float64{{1}}},
		{Kind: KindOutput, Size: 1, Activation: "softplus"},
	}})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

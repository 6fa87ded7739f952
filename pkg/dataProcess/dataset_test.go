package dataProcess

import (
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"BackpropDev/pkg/network"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const glyphs = "\n1\n* *\n * \n\n2\n **\n***\n"

func TestParseGlyph(t *testing.T) {
	assert.Equal(t, []float64{0, 1, 1, 0, 0}, ParseGlyph([]string{"* ", " *\r\n", "*"}))
	assert.Empty(t, ParseGlyph(nil))
}

func TestReadDataset(t *testing.T) {
	ds, err := ReadDataset(strings.NewReader(glyphs))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ds.Labels)
	assert.Equal(t, [][]float64{
		{0, 1, 0, 1, 0, 1},
		{1, 0, 0, 0, 0, 0},
	}, ds.Images)
	assert.Equal(t, 2, ds.Len())
	assert.NoError(t, ds.Validate(6))
	assert.True(t, errors.Is(ds.Validate(9), network.ErrShapeMismatch))
}

func TestReadDatasetKeepsEdgeSpaces(t *testing.T) {
	ds, err := ReadDataset(strings.NewReader("3\n *  \r\n  *\n\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0, 1, 1, 1, 1, 0}}, ds.Images)
}

func TestReadDatasetMissingGlyph(t *testing.T) {
	_, err := ReadDataset(strings.NewReader("7\n\n"))
	assert.Error(t, err)
}

func TestLoadDatasetGzip(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "glyphs.txt")
	require.NoError(t, os.WriteFile(plain, []byte(glyphs), 0o644))

	zipped := filepath.Join(dir, "glyphs.txt.gz")
	f, err := os.Create(zipped)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	_, err = w.Write([]byte(glyphs))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	a, err := LoadDataset(plain)
	require.NoError(t, err)
	b, err := LoadDataset(zipped)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = LoadDataset(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func writeIDX(t *testing.T, path string, header []int32, body []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := gzip.NewWriter(f)
	require.NoError(t, binary.Write(w, binary.BigEndian, header))
	_, err = w.Write(body)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func TestLoadIDX(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "images-idx3-ubyte.gz")
	labels := filepath.Join(dir, "labels-idx1-ubyte.gz")
	writeIDX(t, images, []int32{2051, 2, 1, 2}, []byte{0, 255, 51, 0})
	writeIDX(t, labels, []int32{2049, 2}, []byte{3, 8})

	ds, err := LoadIDX(images, labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "8"}, ds.Labels)
	assert.Equal(t, [][]float64{{0, 1}, {0.2, 0}}, ds.Images)

	_, err = LoadIDX(labels, images)
	assert.Error(t, err)
}

func TestLoadIDXRejectsNegativeCounts(t *testing.T) {
	dir := t.TempDir()
	cases := map[string][]int32{
		"images": {2051, -1, 1, 2},
		"rows":   {2051, 1, -3, 2},
		"cols":   {2051, 1, 1, -2},
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".gz")
			writeIDX(t, path, header, nil)
			_, err := LoadImages(path)
			assert.Error(t, err)
		})
	}

	labels := filepath.Join(dir, "labels.gz")
	writeIDX(t, labels, []int32{2049, -5}, nil)
	_, err := LoadLabels(labels)
	assert.Error(t, err)
}

func TestClassIndex(t *testing.T) {
	class, err := ClassIndex(" 4", 10)
	require.NoError(t, err)
	assert.Equal(t, 4, class)

	_, err = ClassIndex("x", 10)
	assert.True(t, errors.Is(err, network.ErrConfiguration))
	_, err = ClassIndex("10", 10)
	assert.True(t, errors.Is(err, network.ErrShapeMismatch))
}

func TestXOR(t *testing.T) {
	xor := XOR()
	require.Equal(t, 4, xor.Len())
	for i := 0; i < xor.Len(); i++ {
		in, out := xor.Sample(i)
		want := 0.0
		if in[0] != in[1] {
			want = 1
		}
		assert.Equal(t, []float64{want}, out)
	}
}

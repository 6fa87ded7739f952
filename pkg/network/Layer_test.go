package network

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// affine a*x+b 激活，导数恒为 a
func affine(a, b float64) Activation {
	return Activation{
		Name:       "affine",
		Func:       func(x float64) (float64, error) { return a*x + b, nil },
		Derivative: func(float64) (float64, error) { return a, nil },
	}
}

func seq(from, to int) Initializer {
	values := make([]float64, 0, to-from+1)
	for v := from; v <= to; v++ {
		values = append(values, float64(v))
	}
	return Sequence(values...)
}

func outputs(l Layer) []float64 {
	return append([]float64(nil), l.Outputs().RawVector().Data...)
}

func TestSigmoid(t *testing.T) {
	y, err := Sigmoid(0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, y)

	// 截断后的输出不会恰好为0或1
	y, err = Sigmoid(1e6)
	require.NoError(t, err)
	assert.Less(t, y, 1.0)
	y, err = Sigmoid(-1e6)
	require.NoError(t, err)
	assert.Greater(t, y, 0.0)

	_, err = Sigmoid(math.NaN())
	assert.True(t, errors.Is(err, ErrNumericDegeneracy))

	d, err := SigmoidDerivative(0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.25, d)
	for _, y := range []float64{0, 1, math.NaN()} {
		_, err = SigmoidDerivative(y)
		assert.True(t, errors.Is(err, ErrNumericDegeneracy), "y=%v", y)
	}
}

func TestTanhAndIdentity(t *testing.T) {
	_, err := Tanh(1000)
	assert.True(t, errors.Is(err, ErrNumericDegeneracy))
	y, err := Tanh(0.5)
	require.NoError(t, err)
	d, err := TanhDerivative(y)
	require.NoError(t, err)
	assert.InDelta(t, 1-y*y, d, 1e-15)
	_, err = TanhDerivative(1)
	assert.True(t, errors.Is(err, ErrNumericDegeneracy))

	y, err = Identity(-3)
	require.NoError(t, err)
	assert.Equal(t, -3.0, y)
	d, err = IdentityDerivative(y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, d)
}

func TestActivationByName(t *testing.T) {
	act, err := ActivationByName("")
	require.NoError(t, err)
	assert.Equal(t, "sigmoid", act.Name)
	act, err = ActivationByName("identity")
	require.NoError(t, err)
	assert.Equal(t, "identity", act.Name)
	_, err = ActivationByName("softmax")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestInitializers(t *testing.T) {
	fill := func(init Initializer, r, c int) (*mat.Dense, error) {
		m := mat.NewDense(r, c, nil)
		return m, init.Fill(m)
	}

	a, err := fill(Uniform(rand.NewPCG(1, 2)), 3, 4)
	require.NoError(t, err)
	b, err := fill(Uniform(rand.NewPCG(1, 2)), 3, 4)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a, b))
	assert.LessOrEqual(t, mat.Max(a), 1.0)
	assert.GreaterOrEqual(t, mat.Min(a), -1.0)
	// 每个权重独立抽样
	assert.NotEqual(t, a.At(0, 0), a.At(0, 1))

	m, err := fill(Constant(0.25), 2, 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{0.25, 0.25, 0.25, 0.25}), m))

	m, err = fill(Range(rand.NewPCG(3, 4), 2, 3), 5, 5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mat.Min(m), 2.0)
	assert.LessOrEqual(t, mat.Max(m), 3.0)

	_, err = fill(Range(nil, 1), 1, 1)
	assert.True(t, errors.Is(err, ErrConfiguration))
	_, err = fill(Range(nil, 1, 2, 3), 1, 1)
	assert.True(t, errors.Is(err, ErrConfiguration))
	_, err = fill(Range(nil, 3, 2), 1, 1)
	assert.True(t, errors.Is(err, ErrConfiguration))

	calls := 0
	m, err = fill(Generator(func() float64 { calls++; return float64(calls) }), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	assert.Equal(t, []float64{4, 5, 6}, m.RawRowView(1))
	_, err = fill(Generator(nil), 1, 1)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestSequenceCursor(t *testing.T) {
	init := Sequence(1, 2, 3, 4, 5, 6, 7)
	a := mat.NewDense(2, 2, nil)
	require.NoError(t, init.Fill(a))
	assert.Equal(t, []float64{1, 2, 3, 4}, a.RawMatrix().Data)

	b := mat.NewDense(1, 3, nil)
	require.NoError(t, init.Fill(b))
	assert.Equal(t, []float64{5, 6, 7}, b.RawMatrix().Data)

	err := init.Fill(mat.NewDense(1, 1, nil))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestInputLayer(t *testing.T) {
	i, err := NewInputLayer(3, 4, seq(1, 12))
	require.NoError(t, err)
	require.NoError(t, i.Activate([]float64{10, 20, 30}))
	assert.Equal(t, 3, i.Len())
	assert.Equal(t, []float64{10, 20, 30}, outputs(i))
	assert.Equal(t, 4, i.NextSize())

	row, err := i.WeightsTo(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, row.Values())
	col, err := i.WeightsAt(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 6, 9, 12}, col.Values())

	ib, err := NewInputLayer(2, 3, seq(1, 9), WithBias(1))
	require.NoError(t, err)
	require.NoError(t, ib.Activate([]float64{10, 20}))
	assert.Equal(t, 3, ib.Len())
	assert.Equal(t, 2, ib.InputSize())
	assert.Equal(t, []float64{1, 10, 20}, outputs(ib))

	assert.True(t, errors.Is(ib.Activate([]float64{10}), ErrShapeMismatch))
	assert.True(t, errors.Is(ib.Activate([]float64{10, 20, 30}), ErrShapeMismatch))

	it, err := NewInputLayer(2, 1, nil, WithTransform(func(x float64) float64 { return x / 2 }))
	require.NoError(t, err)
	require.NoError(t, it.Activate([]float64{4, 8}))
	assert.Equal(t, []float64{2, 4}, outputs(it))

	_, err = NewInputLayer(0, 1, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))
	_, err = NewInputLayer(2, 2, Sequence(1, 2))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestHiddenLayerActivate(t *testing.T) {
	prev, err := NewInputLayer(4, 3, Sequence(100, 200, 300, 400, 500, 600, 700, 800, 900, 1000, 1100, 1200))
	require.NoError(t, err)
	require.NoError(t, prev.Activate([]float64{10, 20, 30, 40}))

	h, err := NewHiddenLayer(3, 2, seq(1, 6), affine(11, 12))
	require.NoError(t, err)
	require.NoError(t, h.Activate(prev))
	assert.Equal(t, []float64{
		11*(10*100+20*200+30*300+40*400) + 12,
		11*(10*500+20*600+30*700+40*800) + 12,
		11*(10*900+20*1000+30*1100+40*1200) + 12,
	}, outputs(h))

	prevb, err := NewInputLayer(2, 2, Sequence(8, 9, 10, 11))
	require.NoError(t, err)
	require.NoError(t, prevb.Activate([]float64{6, 7}))
	hb, err := NewHiddenLayer(2, 1, seq(1, 3), affine(4, 5), WithBias(1))
	require.NoError(t, err)
	require.NoError(t, hb.Activate(prevb))
	assert.Equal(t, []float64{1, 4*(6*8+7*9) + 5, 4*(6*10+7*11) + 5}, outputs(hb))

	// 偏置位不会被本层的激活覆盖
	require.NoError(t, prevb.Activate([]float64{0, 0}))
	require.NoError(t, hb.Activate(prevb))
	assert.Equal(t, []float64{1, 5, 5}, outputs(hb))

	assert.True(t, errors.Is(hb.Activate(prev), ErrShapeMismatch))
	_, err = NewHiddenLayer(2, 1, nil, Activation{Name: "broken"})
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestOutputLayer(t *testing.T) {
	prev, err := NewInputLayer(2, 3, seq(4, 9))
	require.NoError(t, err)
	require.NoError(t, prev.Activate([]float64{1, 2}))

	o, err := NewOutputLayer(3, affine(1000, 100000))
	require.NoError(t, err)
	require.NoError(t, o.Activate(prev))
	assert.Equal(t, 3, o.Len())
	assert.Equal(t, []float64{
		(4*1+5*2)*1000 + 100000,
		(6*1+7*2)*1000 + 100000,
		(8*1+9*2)*1000 + 100000,
	}, outputs(o))
	assert.Equal(t, KindOutput, o.Kind())
	assert.Equal(t, "output", o.Kind().String())

	_, err = NewOutputLayer(0, SigmoidActivation)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

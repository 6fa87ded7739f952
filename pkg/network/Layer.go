package network

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

/*
该文件包含神经网络层的封装和该层的前向传播
输入层和隐藏层持有到下一层的权重矩阵（Outbound），隐藏层和输出层持有激活函数（Inbound）
偏置单元（如果有）固定存放在本层输出的第0位，其输出值在构造时确定，激活时不会被覆盖
*/

// Kind 层的种类
type Kind int

const (
	KindInput Kind = iota
	KindHidden
	KindOutput
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindHidden:
		return "hidden"
	case KindOutput:
		return "output"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Layer 一组有序的标量输出
type Layer interface {
	Kind() Kind
	Len() int
	Output(i int) float64
	Outputs() *mat.VecDense
	String() string
}

// Outbound 持有到下一层连接权重的层
type Outbound interface {
	Layer
	HasBias() bool
	BiasValue() float64
	// InputSize 有输入连接的神经元数量（不含偏置）
	InputSize() int
	NextSize() int
	// Weights 行主序矩阵 [下一层神经元][本层神经元(+偏置)]
	Weights() *MatrixView
	// WeightsTo 流入下一层第 next 个神经元的权重（矩阵的行）
	WeightsTo(next int) (*Line, error)
	// WeightsAt 从本层第 index 个神经元流出的权重（矩阵的列）
	WeightsAt(index int) (*Line, error)
}

// Inbound 带激活函数、由上一层驱动的层
type Inbound interface {
	Layer
	InputSize() int
	Activation() Activation
	Derivative() DerivativeFunc
	Activate(prev Outbound) error
}

// Option 层的可选配置
type Option func(*options)

type options struct {
	bias      bool
	biasValue float64
	transform func(float64) float64
}

// WithBias 在第0位加入输出恒为 v 的偏置单元
func WithBias(v float64) Option {
	return func(o *options) {
		o.bias = true
		o.biasValue = v
	}
}

// WithTransform 输入层对每个外部输入先做变换（默认原样传递）
func WithTransform(f func(float64) float64) Option {
	return func(o *options) {
		o.transform = f
	}
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base 所有层共有的输出存储
type base struct {
	outputs *mat.VecDense
}

func (b *base) Len() int               { return b.outputs.Len() }
func (b *base) Output(i int) float64   { return b.outputs.AtVec(i) }
func (b *base) Outputs() *mat.VecDense { return b.outputs }

// outbound 输入层和隐藏层共有的权重存储
type outbound struct {
	bias      bool
	biasValue float64
	weights   *MatrixView
	weightsAt *MatrixView
}

func newOutbound(count, next int, init Initializer, o options) (base, outbound, error) {
	if count < 1 || next < 1 {
		return base{}, outbound{}, errors.Wrapf(ErrConfiguration, "层大小必须为正数，得到 %d -> %d", count, next)
	}
	if o.bias {
		count++
	}
	if init == nil {
		init = Uniform(nil)
	}
	weights := mat.NewDense(next, count, nil)
	if err := init.Fill(weights); err != nil {
		return base{}, outbound{}, err
	}
	outputs := mat.NewVecDense(count, nil)
	if o.bias {
		outputs.SetVec(0, o.biasValue)
	}
	view := NewMatrixView(weights)
	return base{outputs: outputs}, outbound{
		bias:      o.bias,
		biasValue: o.biasValue,
		weights:   view,
		weightsAt: view.Transpose(),
	}, nil
}

func (w *outbound) HasBias() bool        { return w.bias }
func (w *outbound) BiasValue() float64   { return w.biasValue }
func (w *outbound) Weights() *MatrixView { return w.weights }

func (w *outbound) NextSize() int {
	r, _ := w.weights.Dims()
	return r
}

func (w *outbound) shift() int {
	if w.bias {
		return 1
	}
	return 0
}

func (w *outbound) WeightsTo(next int) (*Line, error) {
	return w.weights.Row(next)
}

func (w *outbound) WeightsAt(index int) (*Line, error) {
	return w.weightsAt.Row(index)
}

// activate 计算 count 个神经元的输出，写入 out[shift:shift+count]
func activate(prev Outbound, out *mat.VecDense, count, shift int, f ActivationFunc) error {
	if prev.NextSize() != count {
		return errors.Wrapf(ErrShapeMismatch, "上一层连接到 %d 个神经元，本层有 %d 个", prev.NextSize(), count)
	}
	inputs := prev.Outputs()
	for o := 0; o < count; o++ {
		row, err := prev.WeightsTo(o)
		if err != nil {
			return err
		}
		y, err := f(mat.Dot(inputs, row))
		if err != nil {
			return errors.Wrapf(err, "激活第 %d 个神经元失败", o)
		}
		out.SetVec(o+shift, y)
	}
	return nil
}

// InputLayer 输入层
type InputLayer struct {
	base
	outbound
	transform func(float64) float64
}

// NewInputLayer 创建输入层
// count: 本层神经元数（不含偏置）；next: 下一层神经元数；init 为 nil 时权重在 [-1, 1] 内随机
func NewInputLayer(count, next int, init Initializer, opts ...Option) (*InputLayer, error) {
	o := collect(opts)
	b, w, err := newOutbound(count, next, init, o)
	if err != nil {
		return nil, err
	}
	return &InputLayer{base: b, outbound: w, transform: o.transform}, nil
}

func (l *InputLayer) Kind() Kind { return KindInput }

func (l *InputLayer) InputSize() int { return l.Len() - l.shift() }

// Activate 把外部输入写入本层输出，偏置位保持不变
func (l *InputLayer) Activate(input []float64) error {
	if len(input) != l.InputSize() {
		return errors.Wrapf(ErrShapeMismatch, "输入长度 %d，输入层需要 %d", len(input), l.InputSize())
	}
	shift := l.shift()
	for i, x := range input {
		if l.transform != nil {
			x = l.transform(x)
		}
		l.outputs.SetVec(i+shift, x)
	}
	return nil
}

func (l *InputLayer) String() string {
	return fmt.Sprintf("input[%d, bias=%t]", l.Len(), l.bias)
}

// HiddenLayer 隐藏层
type HiddenLayer struct {
	base
	outbound
	activation Activation
}

// NewHiddenLayer 创建隐藏层
func NewHiddenLayer(count, next int, init Initializer, act Activation, opts ...Option) (*HiddenLayer, error) {
	if err := checkActivation(act); err != nil {
		return nil, err
	}
	b, w, err := newOutbound(count, next, init, collect(opts))
	if err != nil {
		return nil, err
	}
	return &HiddenLayer{base: b, outbound: w, activation: act}, nil
}

func (l *HiddenLayer) Kind() Kind                 { return KindHidden }
func (l *HiddenLayer) InputSize() int             { return l.Len() - l.shift() }
func (l *HiddenLayer) Activation() Activation     { return l.activation }
func (l *HiddenLayer) Derivative() DerivativeFunc { return l.activation.Derivative }

// Activate 根据上一层输出计算本层输出，跳过偏置位
func (l *HiddenLayer) Activate(prev Outbound) error {
	return activate(prev, l.outputs, l.InputSize(), l.shift(), l.activation.Func)
}

func (l *HiddenLayer) String() string {
	return fmt.Sprintf("hidden[%d, bias=%t]", l.Len(), l.bias)
}

// OutputLayer 输出层
type OutputLayer struct {
	base
	activation Activation
}

// NewOutputLayer 创建输出层
func NewOutputLayer(count int, act Activation) (*OutputLayer, error) {
	if count < 1 {
		return nil, errors.Wrapf(ErrConfiguration, "输出层大小必须为正数，得到 %d", count)
	}
	if err := checkActivation(act); err != nil {
		return nil, err
	}
	return &OutputLayer{base: base{outputs: mat.NewVecDense(count, nil)}, activation: act}, nil
}

func (l *OutputLayer) Kind() Kind                 { return KindOutput }
func (l *OutputLayer) InputSize() int             { return l.Len() }
func (l *OutputLayer) Activation() Activation     { return l.activation }
func (l *OutputLayer) Derivative() DerivativeFunc { return l.activation.Derivative }

// Activate 根据上一层输出计算本层输出
func (l *OutputLayer) Activate(prev Outbound) error {
	return activate(prev, l.outputs, l.Len(), 0, l.activation.Func)
}

func (l *OutputLayer) String() string {
	return fmt.Sprintf("output[%d] x->%s", l.Len(), l.activation.Name)
}

func checkActivation(act Activation) error {
	if act.Func == nil || act.Derivative == nil {
		return errors.Wrapf(ErrConfiguration, "激活函数 %q 缺少函数或导数", act.Name)
	}
	return nil
}

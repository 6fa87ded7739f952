package network

import (
	"strings"

	"github.com/pkg/errors"
)

/*
该文件包含整个神经网络的初始化方法和前向传播
网络由一个输入层、零个或多个隐藏层和一个输出层按顺序组成，构造后形状不再改变
*/

// NeuronNetwork 前馈神经网络
type NeuronNetwork struct {
	layers []Layer
	input  *InputLayer
	hidden []*HiddenLayer
	output *OutputLayer
	feed   func([]float64) error
}

// stage 前向流水线中的一步：用上一层的输出激活本层，并把本层交给下一步
type stage func(prev Outbound) (Outbound, error)

// NewNeuronNetwork 由已构造的层组成网络
// 第一层必须是输入层，最后一层必须是输出层，中间全部是隐藏层，且相邻层的宽度一致
func NewNeuronNetwork(layers ...Layer) (*NeuronNetwork, error) {
	if len(layers) < 2 {
		return nil, errors.Wrapf(ErrConfiguration, "至少需要两层，得到 %d 层", len(layers))
	}
	input, ok := layers[0].(*InputLayer)
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "第一层必须是输入层，得到 %v", layers[0])
	}
	output, ok := layers[len(layers)-1].(*OutputLayer)
	if !ok {
		return nil, errors.Wrapf(ErrConfiguration, "最后一层必须是输出层，得到 %v", layers[len(layers)-1])
	}
	hidden := make([]*HiddenLayer, 0, len(layers)-2)
	for i, l := range layers[1 : len(layers)-1] {
		h, ok := l.(*HiddenLayer)
		if !ok {
			return nil, errors.Wrapf(ErrConfiguration, "第 %d 层必须是隐藏层，得到 %v", i+1, l)
		}
		hidden = append(hidden, h)
	}
	for i := 0; i < len(layers)-1; i++ {
		prev := layers[i].(Outbound)
		next := layers[i+1].(Inbound)
		if prev.NextSize() != next.InputSize() {
			return nil, errors.Wrapf(ErrConfiguration, "第 %d 层连接到 %d 个神经元，但第 %d 层有 %d 个",
				i, prev.NextSize(), i+1, next.InputSize())
		}
	}

	stages := make([]stage, 0, len(hidden))
	for _, h := range hidden {
		stages = append(stages, func(prev Outbound) (Outbound, error) {
			return h, h.Activate(prev)
		})
	}

	return &NeuronNetwork{
		layers: append([]Layer(nil), layers...),
		input:  input,
		hidden: hidden,
		output: output,
		feed:   compose(input, stages, output),
	}, nil
}

// compose 把各层的激活步骤串成一条前向流水线
func compose(input *InputLayer, stages []stage, output *OutputLayer) func([]float64) error {
	return func(data []float64) error {
		if err := input.Activate(data); err != nil {
			return err
		}
		var prev Outbound = input
		for _, s := range stages {
			next, err := s(prev)
			if err != nil {
				return err
			}
			prev = next
		}
		return output.Activate(prev)
	}
}

// Feed 前向传播，返回输出层的值（副本）
func (nn *NeuronNetwork) Feed(input []float64) ([]float64, error) {
	if err := nn.feed(input); err != nil {
		return nil, err
	}
	out := make([]float64, nn.output.Len())
	for i := range out {
		out[i] = nn.output.Output(i)
	}
	return out, nil
}

// Layers 按顺序返回所有层
func (nn *NeuronNetwork) Layers() []Layer {
	return append([]Layer(nil), nn.layers...)
}

func (nn *NeuronNetwork) Input() *InputLayer { return nn.input }

func (nn *NeuronNetwork) Hidden() []*HiddenLayer {
	return append([]*HiddenLayer(nil), nn.hidden...)
}

func (nn *NeuronNetwork) Output() *OutputLayer { return nn.output }

// Weighted 按顺序返回所有持有权重的层（输入层和隐藏层）
func (nn *NeuronNetwork) Weighted() []Outbound {
	out := make([]Outbound, 0, len(nn.hidden)+1)
	out = append(out, nn.input)
	for _, h := range nn.hidden {
		out = append(out, h)
	}
	return out
}

// Sizes 每层不含偏置的神经元数
func (nn *NeuronNetwork) Sizes() []int {
	sizes := make([]int, 0, len(nn.layers))
	sizes = append(sizes, nn.input.InputSize())
	for _, h := range nn.hidden {
		sizes = append(sizes, h.InputSize())
	}
	return append(sizes, nn.output.InputSize())
}

func (nn *NeuronNetwork) String() string {
	parts := make([]string, len(nn.layers))
	for i, l := range nn.layers {
		parts[i] = l.String()
	}
	return strings.Join(parts, " ")
}

// BuildConfig Build 使用的网络配置
type BuildConfig struct {
	// Bias 为 nil 时不加偏置单元，否则输入层和隐藏层都加入输出为 *Bias 的偏置单元
	Bias *float64
	// Weights 所有权重层共用的初始化器，nil 表示 [-1, 1] 均匀随机
	Weights Initializer
	// Transform 输入层的可选变换
	Transform func(float64) float64
	Hidden    Activation
	Output    Activation
}

// NewBuildConfig 默认配置：无偏置、随机权重、sigmoid激活
func NewBuildConfig() *BuildConfig {
	return &BuildConfig{
		Hidden: SigmoidActivation,
		Output: SigmoidActivation,
	}
}

// Build 根据每层神经元数构造网络
// sizes[0] 为输入层，sizes[len-1] 为输出层，中间为隐藏层
func Build(sizes []int, cfg *BuildConfig) (*NeuronNetwork, error) {
	if len(sizes) < 2 {
		return nil, errors.Wrapf(ErrConfiguration, "至少需要两层，得到 %v", sizes)
	}
	if cfg == nil {
		cfg = NewBuildConfig()
	}
	var opts []Option
	if cfg.Bias != nil {
		opts = append(opts, WithBias(*cfg.Bias))
	}
	inputOpts := opts
	if cfg.Transform != nil {
		inputOpts = append(append([]Option(nil), opts...), WithTransform(cfg.Transform))
	}

	layers := make([]Layer, 0, len(sizes))
	input, err := NewInputLayer(sizes[0], sizes[1], cfg.Weights, inputOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "构造输入层失败")
	}
	layers = append(layers, input)
	for i := 1; i < len(sizes)-1; i++ {
		h, err := NewHiddenLayer(sizes[i], sizes[i+1], cfg.Weights, orSigmoid(cfg.Hidden), opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "构造第 %d 层失败", i)
		}
		layers = append(layers, h)
	}
	output, err := NewOutputLayer(sizes[len(sizes)-1], orSigmoid(cfg.Output))
	if err != nil {
		return nil, errors.Wrap(err, "构造输出层失败")
	}
	layers = append(layers, output)
	return NewNeuronNetwork(layers...)
}

func orSigmoid(act Activation) Activation {
	if act.Func == nil && act.Derivative == nil {
		return SigmoidActivation
	}
	return act
}

// WeightChange 两个网络之间一个不同的权重
type WeightChange struct {
	Layer  int
	Row    int
	Col    int
	Before float64
	After  float64
}

// Diff 比较两个结构相同的网络，返回所有不同的权重
func (nn *NeuronNetwork) Diff(other *NeuronNetwork) ([]WeightChange, error) {
	mine, theirs := nn.Weighted(), other.Weighted()
	if len(mine) != len(theirs) {
		return nil, errors.Wrapf(ErrConfiguration, "网络层数不同：%d 与 %d", len(mine), len(theirs))
	}
	var changes []WeightChange
	for li := range mine {
		a, b := mine[li].Weights(), theirs[li].Weights()
		ar, ac := a.Dims()
		br, bc := b.Dims()
		if ar != br || ac != bc {
			return nil, errors.Wrapf(ErrConfiguration, "第 %d 层权重形状不同：%dx%d 与 %dx%d", li, ar, ac, br, bc)
		}
		for r := 0; r < ar; r++ {
			for c := 0; c < ac; c++ {
				if x, y := a.At(r, c), b.At(r, c); x != y {
					changes = append(changes, WeightChange{Layer: li, Row: r, Col: c, Before: x, After: y})
				}
			}
		}
	}
	return changes, nil
}

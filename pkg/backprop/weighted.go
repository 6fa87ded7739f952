package backprop

import (
	"BackpropDev/pkg/network"

	"github.com/pkg/errors"
)

/*
该文件包含反向传播中每一层的误差计算
Weighted 对应输入层和隐藏层：计算流向上游的 delta 并交给策略更新/累加权重
Output 对应输出层：根据期望输出计算误差和 delta
*/

// Weighted 一个持有权重的层（输入层或隐藏层）的训练状态
type Weighted struct {
	layer    network.Outbound
	strategy Strategy
	deltas   []float64
	// report 把 Σδ*w 转换为上报给上游的 delta，构造时按层类型选定
	report func(i int, o, sum float64) error
}

// NewWeighted 为输入层或隐藏层创建训练状态
// 隐藏层有偏置时，第0位（偏置）没有上游输入，不上报 delta
func NewWeighted(layer network.Outbound, mode Mode) (*Weighted, error) {
	rows, cols := layer.Weights().Dims()
	strategy, err := NewStrategy(mode, rows, cols)
	if err != nil {
		return nil, err
	}
	w := &Weighted{layer: layer, strategy: strategy}

	switch layer.Kind() {
	case network.KindInput:
		w.report = func(int, float64, float64) error { return nil }
	case network.KindHidden:
		inbound, ok := layer.(network.Inbound)
		if !ok {
			return nil, errors.Wrapf(network.ErrConfiguration, "隐藏层 %v 缺少激活函数", layer)
		}
		df := inbound.Derivative()
		w.deltas = make([]float64, layer.InputSize())
		if layer.HasBias() {
			w.report = func(i int, o, sum float64) error {
				if i == 0 {
					return nil
				}
				return w.setDelta(i-1, df, o, sum)
			}
		} else {
			w.report = func(i int, o, sum float64) error {
				return w.setDelta(i, df, o, sum)
			}
		}
	default:
		return nil, errors.Wrapf(network.ErrConfiguration, "%v 层没有出向权重", layer.Kind())
	}
	return w, nil
}

func (w *Weighted) setDelta(index int, df network.DerivativeFunc, o, sum float64) error {
	d, err := df(o)
	if err != nil {
		w.deltas[index] = 0
		return err
	}
	w.deltas[index] = d * sum
	return nil
}

// Update 用下游层的 delta 计算本层 delta，并更新或累加本层的出向权重
// 每个连接先读取旧权重参与 delta 求和，再交给策略修改
func (w *Weighted) Update(odeltas []float64, lr, m float64) error {
	if len(odeltas) != w.layer.NextSize() {
		return errors.Wrapf(network.ErrShapeMismatch, "下游 delta 长度 %d，下一层有 %d 个神经元", len(odeltas), w.layer.NextSize())
	}
	var first error
	for i := 0; i < w.layer.Len(); i++ {
		column, err := w.layer.WeightsAt(i)
		if err != nil {
			return err
		}
		o := w.layer.Output(i)
		sum := 0.0
		for k, d := range odeltas {
			sum += d * column.AtVec(k)
			w.strategy.Connection(column, i, k, o, d, lr, m)
		}
		if err := w.report(i, o, sum); err != nil && first == nil {
			first = errors.Wrapf(err, "%v 第 %d 个神经元", w.layer, i)
		}
	}
	return first
}

// Deltas 上报给上游的 delta，输入层为 nil
func (w *Weighted) Deltas() []float64 {
	return w.deltas
}

// Strategy 返回本层使用的更新策略
func (w *Weighted) Strategy() Strategy {
	return w.strategy
}

// UpdateWeights 应用批量模式下累加的增量
func (w *Weighted) UpdateWeights(lr, m float64) error {
	return w.strategy.Flush(w.layer.Weights(), lr, m)
}

// outputLayer Output 需要的输出层能力
type outputLayer interface {
	Len() int
	Output(i int) float64
	Derivative() network.DerivativeFunc
}

// Output 输出层的误差计算
type Output struct {
	layer  outputLayer
	deltas []float64
}

// NewOutput 为输出层创建误差计算器
func NewOutput(layer outputLayer) *Output {
	return &Output{layer: layer, deltas: make([]float64, layer.Len())}
}

// Propagate 计算 δ_k = f'(y_k)*(e_k - y_k)，返回 Σ(e_k - y_k)^2 / 2
func (o *Output) Propagate(expected []float64) (float64, error) {
	if len(expected) != o.layer.Len() {
		return 0, errors.Wrapf(network.ErrShapeMismatch, "期望输出长度 %d，输出层有 %d 个神经元", len(expected), o.layer.Len())
	}
	df := o.layer.Derivative()
	se := 0.0
	for k, e := range expected {
		y := o.layer.Output(k)
		diff := e - y
		d, err := df(y)
		if err != nil {
			return 0, errors.Wrapf(err, "输出层第 %d 个神经元", k)
		}
		o.deltas[k] = d * diff
		se += diff * diff
	}
	return se / 2, nil
}

// Deltas 最近一次 Propagate 得到的输出层 delta
func (o *Output) Deltas() []float64 {
	return o.deltas
}

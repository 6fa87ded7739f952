// Package backprop 实现带动量的反向传播训练器
//
// 训练器在构造时绑定一个网络，并为每个持有权重的层保存上一次的权重增量（动量）
// 和批量模式下的累加增量。动量状态在训练器的整个生命周期内保留，不同网络之间不能复用同一个训练器。
package backprop

import (
	"fmt"

	"BackpropDev/pkg/network"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset 可重复遍历的有限样本序列
type Dataset interface {
	Len() int
	Sample(i int) (input, expected []float64)
}

// Sample 一个训练样本
type Sample struct {
	Input    []float64 `json:"input"`
	Expected []float64 `json:"expected"`
}

// Samples 切片形式的数据集
type Samples []Sample

func (s Samples) Len() int { return len(s) }

func (s Samples) Sample(i int) ([]float64, []float64) {
	return s[i].Input, s[i].Expected
}

// DegeneracyError 一轮训练中出现数值退化的样本
// 这些样本不计入平均误差，其余样本照常训练
type DegeneracyError struct {
	Examples []int
	Err      error
}

func (e *DegeneracyError) Error() string {
	return fmt.Sprintf("%d 个样本数值退化 %v: %v", len(e.Examples), e.Examples, e.Err)
}

func (e *DegeneracyError) Unwrap() error { return e.Err }

// Algorithm 绑定到一个网络的反向传播训练器
type Algorithm struct {
	net     *network.NeuronNetwork
	mode    Mode
	input   *Weighted
	hiddens []*Weighted
	output  *Output
}

// New 为网络创建训练器
func New(net *network.NeuronNetwork, mode Mode) (*Algorithm, error) {
	if net == nil {
		return nil, errors.Wrap(network.ErrConfiguration, "网络为空")
	}
	input, err := NewWeighted(net.Input(), mode)
	if err != nil {
		return nil, err
	}
	hidden := net.Hidden()
	hiddens := make([]*Weighted, len(hidden))
	for i, h := range hidden {
		if hiddens[i], err = NewWeighted(h, mode); err != nil {
			return nil, err
		}
	}
	return &Algorithm{
		net:     net,
		mode:    mode,
		input:   input,
		hiddens: hiddens,
		output:  NewOutput(net.Output()),
	}, nil
}

func (a *Algorithm) Mode() Mode                      { return a.mode }
func (a *Algorithm) Network() *network.NeuronNetwork { return a.net }

// Propagate 对单个样本做一次前向和反向传播，返回该样本的误差 Σ(e-y)^2/2
func (a *Algorithm) Propagate(input, expected []float64, lr, m float64) (float64, error) {
	if _, err := a.net.Feed(input); err != nil {
		return 0, err
	}
	e, err := a.output.Propagate(expected)
	if err != nil {
		return 0, err
	}
	deltas := a.output.Deltas()
	for i := len(a.hiddens) - 1; i >= 0; i-- {
		h := a.hiddens[i]
		if err := h.Update(deltas, lr, m); err != nil {
			return e, err
		}
		deltas = h.Deltas()
	}
	if err := a.input.Update(deltas, lr, m); err != nil {
		return e, err
	}
	return e, nil
}

// Train 按顺序遍历数据集训练一轮，返回平均误差
// 批量模式在遍历结束后调用一次 UpdateWeights
func (a *Algorithm) Train(ds Dataset, lr, m float64) (float64, error) {
	n := ds.Len()
	if n == 0 {
		return 0, errors.WithStack(network.ErrEmptyDataset)
	}
	if err := a.validate(ds); err != nil {
		return 0, err
	}

	total := 0.0
	var failed []int
	var first error
	for i := 0; i < n; i++ {
		input, expected := ds.Sample(i)
		e, err := a.Propagate(input, expected, lr, m)
		if err != nil {
			if !errors.Is(err, network.ErrNumericDegeneracy) {
				return 0, errors.Wrapf(err, "第 %d 个样本", i)
			}
			if first == nil {
				first = err
			}
			failed = append(failed, i)
			continue
		}
		total += e
	}
	if a.mode == Batch {
		if err := a.UpdateWeights(lr, m); err != nil {
			return 0, err
		}
	}

	healthy := n - len(failed)
	if healthy == 0 {
		return 0, &DegeneracyError{Examples: failed, Err: first}
	}
	mean := total / float64(healthy)
	if len(failed) > 0 {
		return mean, &DegeneracyError{Examples: failed, Err: first}
	}
	return mean, nil
}

func (a *Algorithm) validate(ds Dataset) error {
	inputSize := a.net.Input().InputSize()
	outputSize := a.net.Output().Len()
	for i := 0; i < ds.Len(); i++ {
		input, expected := ds.Sample(i)
		if len(input) != inputSize {
			return errors.Wrapf(network.ErrShapeMismatch, "第 %d 个样本输入长度 %d，需要 %d", i, len(input), inputSize)
		}
		if len(expected) != outputSize {
			return errors.Wrapf(network.ErrShapeMismatch, "第 %d 个样本期望输出长度 %d，需要 %d", i, len(expected), outputSize)
		}
	}
	return nil
}

// UpdateWeights 应用批量模式下累加的增量并清零累加器，在线模式下返回 ErrInvalidState
func (a *Algorithm) UpdateWeights(lr, m float64) error {
	for _, w := range a.weighted() {
		if err := w.UpdateWeights(lr, m); err != nil {
			return err
		}
	}
	return nil
}

// Reset 丢弃批量模式下尚未应用的累加增量，动量保留
func (a *Algorithm) Reset() error {
	for _, w := range a.weighted() {
		if err := w.Strategy().Reset(); err != nil {
			return err
		}
	}
	return nil
}

// weighted 按网络顺序返回输入层和隐藏层的训练状态
func (a *Algorithm) weighted() []*Weighted {
	return append([]*Weighted{a.input}, a.hiddens...)
}

// PreviousDeltas 第 layer 个权重层上一次应用的权重增量（副本）
func (a *Algorithm) PreviousDeltas(layer int) (*mat.Dense, error) {
	w, err := a.at(layer)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(w.Strategy().Previous()), nil
}

// AccumulatedDeltas 第 layer 个权重层尚未应用的累加增量（副本），在线模式下返回 ErrInvalidState
func (a *Algorithm) AccumulatedDeltas(layer int) (*mat.Dense, error) {
	w, err := a.at(layer)
	if err != nil {
		return nil, err
	}
	acc := w.Strategy().Accumulated()
	if acc == nil {
		return nil, errors.Wrap(network.ErrInvalidState, "在线模式没有累加器")
	}
	return mat.DenseCopyOf(acc), nil
}

func (a *Algorithm) at(layer int) (*Weighted, error) {
	all := a.weighted()
	if layer < 0 || layer >= len(all) {
		return nil, errors.Wrapf(network.ErrIndexOutOfRange, "权重层索引 %d 不在 [0, %d) 内", layer, len(all))
	}
	return all[layer], nil
}

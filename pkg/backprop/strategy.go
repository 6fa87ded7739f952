package backprop

import (
	"BackpropDev/pkg/network"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

/*
该文件包含两种权重处理策略，在训练器构造时选定
在线模式：每个样本立即更新权重 Δw = LR*o*δ + M*上次Δw
批量模式：遍历时只累加 o*δ，整轮结束后由 Flush 一次性应用
*/

// Mode 训练模式
type Mode int

const (
	Online Mode = iota
	Batch
)

func (m Mode) String() string {
	if m == Batch {
		return "batch"
	}
	return "online"
}

// Strategy 单个权重层的更新策略
// 矩阵与层的权重矩阵形状一致：[下一层神经元][本层神经元(+偏置)]
type Strategy interface {
	Mode() Mode
	// Connection 处理连接 (本层 i -> 下一层 k)，column 是本层第 i 个神经元流出的权重
	Connection(column *network.Line, i, k int, o, delta, lr, m float64)
	// Flush 应用累加的增量（仅批量模式）
	Flush(weights *network.MatrixView, lr, m float64) error
	// Reset 丢弃尚未应用的累加值（仅批量模式）
	Reset() error
	Previous() *mat.Dense
	Accumulated() *mat.Dense
}

// NewStrategy 为形状 rows x cols 的权重矩阵创建策略
func NewStrategy(mode Mode, rows, cols int) (Strategy, error) {
	switch mode {
	case Online:
		return &onlineStrategy{previous: mat.NewDense(rows, cols, nil)}, nil
	case Batch:
		return &batchStrategy{
			previous:    mat.NewDense(rows, cols, nil),
			accumulated: mat.NewDense(rows, cols, nil),
		}, nil
	}
	return nil, errors.Wrapf(network.ErrConfiguration, "未知的训练模式 %d", int(mode))
}

type onlineStrategy struct {
	previous *mat.Dense
}

func (s *onlineStrategy) Mode() Mode { return Online }

func (s *onlineStrategy) Connection(column *network.Line, i, k int, o, delta, lr, m float64) {
	dw := lr*o*delta + m*s.previous.At(k, i)
	column.SetVec(k, column.AtVec(k)+dw)
	s.previous.Set(k, i, dw)
}

func (s *onlineStrategy) Flush(*network.MatrixView, float64, float64) error {
	return errors.Wrap(network.ErrInvalidState, "在线模式没有待应用的累加增量")
}

func (s *onlineStrategy) Reset() error {
	return errors.Wrap(network.ErrInvalidState, "在线模式没有累加器可以重置")
}

func (s *onlineStrategy) Previous() *mat.Dense    { return s.previous }
func (s *onlineStrategy) Accumulated() *mat.Dense { return nil }

type batchStrategy struct {
	previous    *mat.Dense
	accumulated *mat.Dense
}

func (s *batchStrategy) Mode() Mode { return Batch }

func (s *batchStrategy) Connection(_ *network.Line, i, k int, o, delta, _, _ float64) {
	s.accumulated.Set(k, i, s.accumulated.At(k, i)+o*delta)
}

// Flush 动量使用上一次 Flush 实际应用的增量
func (s *batchStrategy) Flush(weights *network.MatrixView, lr, m float64) error {
	rows, cols := s.accumulated.Dims()
	if r, c := weights.Dims(); r != rows || c != cols {
		return errors.Wrapf(network.ErrShapeMismatch, "权重矩阵 %dx%d，累加器 %dx%d", r, c, rows, cols)
	}
	for k := 0; k < rows; k++ {
		for i := 0; i < cols; i++ {
			dw := lr*s.accumulated.At(k, i) + m*s.previous.At(k, i)
			weights.Set(k, i, weights.At(k, i)+dw)
			s.previous.Set(k, i, dw)
		}
	}
	s.accumulated.Zero()
	return nil
}

func (s *batchStrategy) Reset() error {
	s.accumulated.Zero()
	return nil
}

func (s *batchStrategy) Previous() *mat.Dense    { return s.previous }
func (s *batchStrategy) Accumulated() *mat.Dense { return s.accumulated }

package network

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
该文件包含权重矩阵的初始化方法
所有方法按行主序填充 [下一层神经元数][本层神经元数(+偏置)] 的矩阵
*/

// Initializer 权重初始化器
type Initializer interface {
	Fill(weights *mat.Dense) error
}

// InitializerFunc 函数形式的初始化器
type InitializerFunc func(weights *mat.Dense) error

// Fill 实现 Initializer
func (f InitializerFunc) Fill(weights *mat.Dense) error {
	return f(weights)
}

// fillEach 按行主序为每个权重调用一次 next
func fillEach(weights *mat.Dense, next func() float64) {
	rows, cols := weights.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			weights.Set(i, j, next())
		}
	}
}

// Uniform 在 [-1, 1] 内均匀随机初始化
// src 为 nil 时使用进程级随机源，测试中应传入固定种子的源
func Uniform(src rand.Source) Initializer {
	return uniformIn(-1, 1, src)
}

func uniformIn(low, high float64, src rand.Source) Initializer {
	// 所有权重共享同一个随机源，同一种子下序列可复现
	dist := distuv.Uniform{Min: low, Max: high, Src: src}
	return InitializerFunc(func(weights *mat.Dense) error {
		fillEach(weights, dist.Rand)
		return nil
	})
}

// Constant 所有权重设为同一个常数
func Constant(v float64) Initializer {
	return InitializerFunc(func(weights *mat.Dense) error {
		fillEach(weights, func() float64 { return v })
		return nil
	})
}

// Range 在 [low, high) 内随机初始化，bounds 必须恰好包含两个值
func Range(src rand.Source, bounds ...float64) Initializer {
	if len(bounds) != 2 {
		return InitializerFunc(func(*mat.Dense) error {
			return errors.Wrapf(ErrConfiguration, "范围初始化需要两个边界，得到 %v", bounds)
		})
	}
	if bounds[0] > bounds[1] {
		return InitializerFunc(func(*mat.Dense) error {
			return errors.Wrapf(ErrConfiguration, "范围下界 %g 大于上界 %g", bounds[0], bounds[1])
		})
	}
	return uniformIn(bounds[0], bounds[1], src)
}

// Sequence 按行主序依次使用给定的权重值
// 游标在多次 Fill 之间保持，同一个 Sequence 可以依次填充网络中的各层
func Sequence(values ...float64) Initializer {
	next := 0
	return InitializerFunc(func(weights *mat.Dense) error {
		rows, cols := weights.Dims()
		if remaining := len(values) - next; remaining < rows*cols {
			return errors.Wrapf(ErrConfiguration, "需要 %d 个初始权重，只剩 %d 个", rows*cols, remaining)
		}
		fillEach(weights, func() float64 {
			v := values[next]
			next++
			return v
		})
		return nil
	})
}

// Generator 每个权重调用一次 gen
func Generator(gen func() float64) Initializer {
	return InitializerFunc(func(weights *mat.Dense) error {
		if gen == nil {
			return errors.Wrap(ErrConfiguration, "权重生成函数为空")
		}
		fillEach(weights, gen)
		return nil
	})
}

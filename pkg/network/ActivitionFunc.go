package network

import (
	"math"

	"github.com/pkg/errors"
)

// ActivationFunc 标量激活函数 y = f(x)
type ActivationFunc func(x float64) (float64, error)

// DerivativeFunc 激活函数的导数，参数是输出 y = f(x) 而不是输入 x
type DerivativeFunc func(y float64) (float64, error)

// Activation 激活函数及其导数
type Activation struct {
	Name       string
	Func       ActivationFunc
	Derivative DerivativeFunc
}

// sigmoid输入的截断范围，防止指数溢出
const sigmoidClamp = 36.0

var (
	// SigmoidActivation 默认激活函数
	SigmoidActivation = Activation{Name: "sigmoid", Func: Sigmoid, Derivative: SigmoidDerivative}
	// IdentityActivation 线性激活，导数恒为1
	IdentityActivation = Activation{Name: "identity", Func: Identity, Derivative: IdentityDerivative}
	// TanhActivation 双曲正切激活
	TanhActivation = Activation{Name: "tanh", Func: Tanh, Derivative: TanhDerivative}
)

var activations = map[string]Activation{
	SigmoidActivation.Name:  SigmoidActivation,
	IdentityActivation.Name: IdentityActivation,
	TanhActivation.Name:     TanhActivation,
}

// ActivationByName 按名称查找激活函数，空名称返回sigmoid
func ActivationByName(name string) (Activation, error) {
	if name == "" {
		return SigmoidActivation, nil
	}
	act, ok := activations[name]
	if !ok {
		return Activation{}, errors.Wrapf(ErrConfiguration, "未知的激活函数 %q", name)
	}
	return act, nil
}

// Sigmoid 1/(1+e^-x)，输入先截断到 [-36, 36]
func Sigmoid(x float64) (float64, error) {
	if x > sigmoidClamp {
		x = sigmoidClamp
	} else if x < -sigmoidClamp {
		x = -sigmoidClamp
	}
	y := 1.0 / (1.0 + math.Exp(-x))
	if y == 0 || y == 1 || math.IsNaN(y) {
		return y, errors.Wrapf(ErrNumericDegeneracy, "sigmoid(%g) = %g", x, y)
	}
	return y, nil
}

// SigmoidDerivative 已知 y = sigmoid(x) 时的导数 y*(1-y)
// 导数恰为0会让该连接永远无法学习，因此视为错误
func SigmoidDerivative(y float64) (float64, error) {
	d := y * (1.0 - y)
	if d == 0 || math.IsNaN(d) {
		return d, errors.Wrapf(ErrNumericDegeneracy, "sigmoid导数在 y=%g 处为 %g", y, d)
	}
	return d, nil
}

// Identity 恒等函数
func Identity(x float64) (float64, error) {
	return x, nil
}

// IdentityDerivative 恒等函数的导数
func IdentityDerivative(float64) (float64, error) {
	return 1, nil
}

// Tanh 双曲正切
func Tanh(x float64) (float64, error) {
	y := math.Tanh(x)
	if math.Abs(y) == 1 || math.IsNaN(y) {
		return y, errors.Wrapf(ErrNumericDegeneracy, "tanh(%g) = %g", x, y)
	}
	return y, nil
}

// TanhDerivative 已知 y = tanh(x) 时的导数 1-y^2
func TanhDerivative(y float64) (float64, error) {
	d := 1.0 - y*y
	if d == 0 || math.IsNaN(d) {
		return d, errors.Wrapf(ErrNumericDegeneracy, "tanh导数在 y=%g 处为 %g", y, d)
	}
	return d, nil
}

// Package config 训练配置的加载与校验
//
// 配置文件使用 YAML（JSON 是 YAML 的子集，也可以直接读取），未出现的字段保留 Default 中的默认值。
package config

import (
	"math/rand/v2"
	"os"
	"strings"

	"BackpropDev/pkg/backprop"
	"BackpropDev/pkg/network"
	"BackpropDev/pkg/training"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// 权重初始化方法
const (
	WeightsUniform  = "uniform"
	WeightsConstant = "constant"
	WeightsRange    = "range"
	WeightsSequence = "sequence"
)

// WeightsConfig 权重初始化配置
type WeightsConfig struct {
	Method string    `yaml:"method" json:"method"`
	Value  float64   `yaml:"value,omitempty" json:"value,omitempty"`
	Bounds []float64 `yaml:"bounds,omitempty" json:"bounds,omitempty"`
	Values []float64 `yaml:"values,omitempty" json:"values,omitempty"`
	// Seed 为空时使用进程级随机源
	Seed *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// TrainingConfig 网络结构和训练参数
type TrainingConfig struct {
	Layers           []int         `yaml:"layers" json:"layers"`
	Bias             *float64      `yaml:"bias,omitempty" json:"bias,omitempty"`
	Weights          WeightsConfig `yaml:"weights" json:"weights"`
	HiddenActivation string        `yaml:"hidden_activation" json:"hidden_activation"`
	OutputActivation string        `yaml:"output_activation" json:"output_activation"`
	Mode             string        `yaml:"mode" json:"mode"`
	LearningRate     float64       `yaml:"learning_rate" json:"learning_rate"`
	Momentum         float64       `yaml:"momentum" json:"momentum"`
	MaxEpochs        int           `yaml:"max_epochs" json:"max_epochs"`
	Threshold        float64       `yaml:"threshold" json:"threshold"`
	HaltOnDegeneracy bool          `yaml:"halt_on_degeneracy" json:"halt_on_degeneracy"`
}

// Default 2-2-1 带偏置的网络，在线模式
func Default() *TrainingConfig {
	bias := 1.0
	return &TrainingConfig{
		Layers:           []int{2, 2, 1},
		Bias:             &bias,
		Weights:          WeightsConfig{Method: WeightsUniform},
		HiddenActivation: network.SigmoidActivation.Name,
		OutputActivation: network.SigmoidActivation.Name,
		Mode:             backprop.Online.String(),
		LearningRate:     1.0,
		Momentum:         0.0,
		MaxEpochs:        2000,
		Threshold:        0.001,
	}
}

// Parse 解析 YAML/JSON 配置并校验
func Parse(data []byte) (*TrainingConfig, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(network.ErrConfiguration, "解析配置失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load 从文件读取配置
func Load(path string) (*TrainingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取配置文件 %s 失败", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "配置文件 %s", path)
	}
	return cfg, nil
}

// Validate 检查配置，错误均为 ErrConfiguration
func (c *TrainingConfig) Validate() error {
	if len(c.Layers) < 2 {
		return errors.Wrapf(network.ErrConfiguration, "至少需要两层，得到 %v", c.Layers)
	}
	for i, n := range c.Layers {
		if n < 1 {
			return errors.Wrapf(network.ErrConfiguration, "第 %d 层大小必须为正数，得到 %d", i, n)
		}
	}
	if _, err := c.TrainingMode(); err != nil {
		return err
	}
	for _, name := range []string{c.HiddenActivation, c.OutputActivation} {
		if _, err := network.ActivationByName(name); err != nil {
			return err
		}
	}
	if err := c.checkWeights(); err != nil {
		return err
	}
	return c.Supervised().Validate()
}

func (c *TrainingConfig) checkWeights() error {
	w := c.Weights
	switch strings.ToLower(w.Method) {
	case "", WeightsUniform, WeightsConstant:
		return nil
	case WeightsRange:
		if len(w.Bounds) != 2 || w.Bounds[0] > w.Bounds[1] {
			return errors.Wrapf(network.ErrConfiguration, "范围初始化需要两个递增的边界，得到 %v", w.Bounds)
		}
		return nil
	case WeightsSequence:
		if need := c.weightCount(); len(w.Values) < need {
			return errors.Wrapf(network.ErrConfiguration, "网络需要 %d 个初始权重，配置了 %d 个", need, len(w.Values))
		}
		return nil
	}
	return errors.Wrapf(network.ErrConfiguration, "未知的权重初始化方法 %q", w.Method)
}

// weightCount 网络中权重的总数
func (c *TrainingConfig) weightCount() int {
	total := 0
	for i := 0; i < len(c.Layers)-1; i++ {
		cols := c.Layers[i]
		if c.Bias != nil {
			cols++
		}
		total += cols * c.Layers[i+1]
	}
	return total
}

// Initializer 根据配置创建权重初始化器
func (c *TrainingConfig) Initializer() (network.Initializer, error) {
	var src rand.Source
	if c.Weights.Seed != nil {
		src = rand.NewPCG(*c.Weights.Seed, *c.Weights.Seed)
	}
	switch strings.ToLower(c.Weights.Method) {
	case "", WeightsUniform:
		return network.Uniform(src), nil
	case WeightsConstant:
		return network.Constant(c.Weights.Value), nil
	case WeightsRange:
		return network.Range(src, c.Weights.Bounds...), nil
	case WeightsSequence:
		return network.Sequence(c.Weights.Values...), nil
	}
	return nil, errors.Wrapf(network.ErrConfiguration, "未知的权重初始化方法 %q", c.Weights.Method)
}

// BuildNetwork 按配置构造网络
func (c *TrainingConfig) BuildNetwork() (*network.NeuronNetwork, error) {
	init, err := c.Initializer()
	if err != nil {
		return nil, err
	}
	hidden, err := network.ActivationByName(c.HiddenActivation)
	if err != nil {
		return nil, err
	}
	output, err := network.ActivationByName(c.OutputActivation)
	if err != nil {
		return nil, err
	}
	return network.Build(c.Layers, &network.BuildConfig{
		Bias:    c.Bias,
		Weights: init,
		Hidden:  hidden,
		Output:  output,
	})
}

// TrainingMode 解析训练模式
func (c *TrainingConfig) TrainingMode() (backprop.Mode, error) {
	switch strings.ToLower(c.Mode) {
	case "", backprop.Online.String():
		return backprop.Online, nil
	case backprop.Batch.String():
		return backprop.Batch, nil
	}
	return 0, errors.Wrapf(network.ErrConfiguration, "未知的训练模式 %q", c.Mode)
}

// Supervised 转换为监督训练参数
func (c *TrainingConfig) Supervised() *training.SupervisedConfig {
	return &training.SupervisedConfig{
		LearningRate:     c.LearningRate,
		Momentum:         c.Momentum,
		MaxEpochs:        c.MaxEpochs,
		Threshold:        c.Threshold,
		HaltOnDegeneracy: c.HaltOnDegeneracy,
	}
}

// NewAlgorithm 按配置构造网络和训练器
func (c *TrainingConfig) NewAlgorithm() (*backprop.Algorithm, error) {
	nn, err := c.BuildNetwork()
	if err != nil {
		return nil, err
	}
	mode, err := c.TrainingMode()
	if err != nil {
		return nil, err
	}
	return backprop.New(nn, mode)
}

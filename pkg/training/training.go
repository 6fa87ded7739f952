package training

import (
	"context"
	"fmt"
	"time"

	"BackpropDev/pkg/backprop"
	"BackpropDev/pkg/dataProcess"
	"BackpropDev/pkg/network"

	"github.com/pkg/errors"
)

// Trainer 每次调用训练一轮并返回平均误差
type Trainer interface {
	Train(ds backprop.Dataset, lr, m float64) (float64, error)
}

// SupervisedConfig 监督训练的参数
type SupervisedConfig struct {
	LearningRate float64
	Momentum     float64
	MaxEpochs    int
	Threshold    float64 // 平均误差不大于该值时视为收敛
	// HaltOnDegeneracy 为真时，出现数值退化的样本立即停止训练；否则跳过这些样本继续
	HaltOnDegeneracy bool
	// Progress 每轮训练后调用
	Progress func(epoch int, loss float64)
}

// NewSupervisedConfig 创建默认的训练配置
func NewSupervisedConfig() *SupervisedConfig {
	return &SupervisedConfig{
		LearningRate: 0.5,
		Momentum:     0.5,
		MaxEpochs:    2000,
		Threshold:    0.001,
	}
}

// Validate 检查训练参数
func (c *SupervisedConfig) Validate() error {
	if c.MaxEpochs < 1 {
		return errors.Wrapf(network.ErrConfiguration, "最大训练轮数必须为正数，得到 %d", c.MaxEpochs)
	}
	if c.LearningRate <= 0 {
		return errors.Wrapf(network.ErrConfiguration, "学习率必须为正数，得到 %g", c.LearningRate)
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		return errors.Wrapf(network.ErrConfiguration, "动量必须在 [0, 1) 内，得到 %g", c.Momentum)
	}
	return nil
}

// Result 一次监督训练的结果
type Result struct {
	Converged bool
	Epochs    int
	Error     float64
	History   []float64
	// Degenerate 出现数值退化样本的轮数
	Degenerate int
	Elapsed    time.Duration

	// lastDegeneracy 最近一次出现的数值退化
	lastDegeneracy *backprop.DegeneracyError
}

// DegeneracyErr 训练中出现过数值退化时返回最近一次的 *backprop.DegeneracyError，否则返回 nil
func (r *Result) DegeneracyErr() error {
	if r.Degenerate == 0 || r.lastDegeneracy == nil {
		return nil
	}
	return r.lastDegeneracy
}

// PrintProgress 每 every 轮打印一次平均损失
func PrintProgress(every int) func(epoch int, loss float64) {
	if every < 1 {
		every = 1
	}
	return func(epoch int, loss float64) {
		if epoch%every == 0 {
			fmt.Printf("第 %d 轮训练 - 平均损失: %.4f\n", epoch, loss)
		}
	}
}

// Supervised 每轮调用一次 algo.Train，直到平均误差不大于 threshold 或用完 maxEpochs 轮
// 返回是否收敛以及最后一轮的平均误差
// 训练中出现过数值退化样本时，err 为 *backprop.DegeneracyError，此时误差只统计了正常样本
func Supervised(algo Trainer, ds backprop.Dataset, lr, m float64, maxEpochs int, threshold float64) (bool, float64, error) {
	cfg := &SupervisedConfig{
		LearningRate: lr,
		Momentum:     m,
		MaxEpochs:    maxEpochs,
		Threshold:    threshold,
	}
	res, err := Run(context.Background(), algo, ds, cfg)
	if err != nil {
		return false, 0, err
	}
	return res.Converged, res.Error, res.DegeneracyErr()
}

// Run 按配置训练，每轮之间检查 ctx 是否已取消
// 出错时返回的 Result 包含出错前已完成的轮次
func Run(ctx context.Context, algo Trainer, ds backprop.Dataset, cfg *SupervisedConfig) (*Result, error) {
	if cfg == nil {
		cfg = NewSupervisedConfig()
	}
	if cfg.MaxEpochs < 1 {
		return nil, errors.Wrapf(network.ErrConfiguration, "最大训练轮数必须为正数，得到 %d", cfg.MaxEpochs)
	}

	res := &Result{History: make([]float64, 0, cfg.MaxEpochs)}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	for epoch := 1; epoch <= cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "第 %d 轮训练前中止", epoch)
		}
		e, err := algo.Train(ds, cfg.LearningRate, cfg.Momentum)
		if err != nil {
			var degenerate *backprop.DegeneracyError
			if !errors.As(err, &degenerate) || cfg.HaltOnDegeneracy {
				return res, errors.Wrapf(err, "第 %d 轮训练失败", epoch)
			}
			// 全部样本退化时没有可用的平均误差
			if len(degenerate.Examples) == ds.Len() {
				return res, errors.Wrapf(err, "第 %d 轮训练所有样本均退化", epoch)
			}
			res.Degenerate++
			res.lastDegeneracy = degenerate
		}

		res.Epochs = epoch
		res.Error = e
		res.History = append(res.History, e)
		if cfg.Progress != nil {
			cfg.Progress(epoch, e)
		}
		// 有样本退化的一轮，误差只覆盖部分数据，不能据此判定收敛
		if err == nil && e <= cfg.Threshold {
			res.Converged = true
			return res, nil
		}
	}
	return res, nil
}

// OneHotEncode 将标签转换为one-hot编码
func OneHotEncode(label int, numClasses int) []float64 {
	oneHot := make([]float64, numClasses)
	oneHot[label] = 1.0
	return oneHot
}

// PrepareData 把数字标签的数据集转换为训练样本
func PrepareData(dataset *dataProcess.Dataset, numClasses int) (backprop.Samples, error) {
	if dataset.Len() == 0 {
		return nil, errors.WithStack(network.ErrEmptyDataset)
	}
	if err := dataset.Validate(len(dataset.Images[0])); err != nil {
		return nil, err
	}
	samples := make(backprop.Samples, dataset.Len())
	for i, img := range dataset.Images {
		class, err := dataProcess.ClassIndex(dataset.Labels[i], numClasses)
		if err != nil {
			return nil, errors.Wrapf(err, "第 %d 个样本", i)
		}
		samples[i] = backprop.Sample{Input: img, Expected: OneHotEncode(class, numClasses)}
	}
	return samples, nil
}

// split 拆分为输入和目标两组向量
func split(samples backprop.Samples) ([][]float64, [][]float64) {
	inputs := make([][]float64, len(samples))
	targets := make([][]float64, len(samples))
	for i, s := range samples {
		inputs[i], targets[i] = s.Input, s.Expected
	}
	return inputs, targets
}

// TrainModel 训练模型，打印训练前后在测试集上的准确率和训练集上的损失
func TrainModel(algo *backprop.Algorithm, trainDataset, testDataset *dataProcess.Dataset, numClasses int, cfg *SupervisedConfig) (*Result, error) {
	nn := algo.Network()
	if cfg == nil {
		cfg = NewSupervisedConfig()
	}

	// 准备训练数据
	train, err := PrepareData(trainDataset, numClasses)
	if err != nil {
		return nil, errors.Wrap(err, "准备训练数据失败")
	}
	// 准备测试数据
	test, err := PrepareData(testDataset, numClasses)
	if err != nil {
		return nil, errors.Wrap(err, "准备测试数据失败")
	}
	trainInputs, trainTargets := split(train)
	testInputs, testTargets := split(test)

	// 训练前评估
	initialAccuracy, err := nn.Evaluate(testInputs, testTargets)
	if err != nil {
		return nil, err
	}
	initialLoss, err := nn.CalculateLoss(trainInputs, trainTargets)
	if err != nil {
		return nil, err
	}
	fmt.Printf("训练前 - 损失: %.4f, 准确率: %.2f%%\n", initialLoss, initialAccuracy*100)
	fmt.Printf("训练参数 - 模式: %v, 学习率: %.2f, 动量: %.2f, 最大轮数: %d, 收敛阈值: %g\n",
		algo.Mode(), cfg.LearningRate, cfg.Momentum, cfg.MaxEpochs, cfg.Threshold)

	// 训练模型
	res, err := Run(context.Background(), algo, train, cfg)
	if err != nil {
		return res, err
	}
	fmt.Printf("训练耗时: %v, 轮数: %d, 收敛: %t\n", res.Elapsed, res.Epochs, res.Converged)

	// 训练后评估
	startInference := time.Now()
	finalAccuracy, err := nn.Evaluate(testInputs, testTargets)
	if err != nil {
		return res, err
	}
	finalLoss, err := nn.CalculateLoss(trainInputs, trainTargets)
	if err != nil {
		return res, err
	}
	fmt.Printf("推理耗时: %v\n", time.Since(startInference))
	fmt.Printf("训练后 - 损失: %.4f, 准确率: %.2f%%\n", finalLoss, finalAccuracy*100)

	// 打印最后几轮的损失
	last := 5
	if res.Epochs < last {
		last = res.Epochs
	}
	fmt.Printf("\n最后 %d 轮训练结果:\n", last)
	for i := res.Epochs - last; i < res.Epochs; i++ {
		fmt.Printf("轮次 %d - 损失: %.4f\n", i+1, res.History[i])
	}
	return res, nil
}

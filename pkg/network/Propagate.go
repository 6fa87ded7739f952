package network

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

/*
该文件包含不修改权重的辅助函数：预测、准确度和损失计算
*/

// Predict 返回输出值最大的类别
func (nn *NeuronNetwork) Predict(input []float64) (int, error) {
	output, err := nn.Feed(input)
	if err != nil {
		return -1, err
	}
	return floats.MaxIdx(output), nil
}

// Evaluate 评估模型在one-hot目标上的准确率
func (nn *NeuronNetwork) Evaluate(inputs, targets [][]float64) (float64, error) {
	if len(inputs) != len(targets) {
		return 0, errors.Wrapf(ErrShapeMismatch, "输入 %d 个，目标 %d 个", len(inputs), len(targets))
	}
	if len(inputs) == 0 {
		return 0, errors.WithStack(ErrEmptyDataset)
	}
	correct := 0
	for i := range inputs {
		pred, err := nn.Predict(inputs[i])
		if err != nil {
			return 0, errors.Wrapf(err, "第 %d 个样本", i)
		}
		if len(targets[i]) != nn.output.Len() {
			return 0, errors.Wrapf(ErrShapeMismatch, "第 %d 个目标长度 %d，输出层 %d", i, len(targets[i]), nn.output.Len())
		}
		if pred == floats.MaxIdx(targets[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(inputs)), nil
}

// CalculateLoss 数据集上的平均误差，每个样本的误差为 Σ(e-y)^2 / 2
func (nn *NeuronNetwork) CalculateLoss(inputs, targets [][]float64) (float64, error) {
	if len(inputs) != len(targets) {
		return 0, errors.Wrapf(ErrShapeMismatch, "输入 %d 个，目标 %d 个", len(inputs), len(targets))
	}
	if len(inputs) == 0 {
		return 0, errors.WithStack(ErrEmptyDataset)
	}
	total := 0.0
	for i := range inputs {
		output, err := nn.Feed(inputs[i])
		if err != nil {
			return 0, errors.Wrapf(err, "第 %d 个样本", i)
		}
		if len(targets[i]) != len(output) {
			return 0, errors.Wrapf(ErrShapeMismatch, "第 %d 个目标长度 %d，输出层 %d", i, len(targets[i]), len(output))
		}
		diff := make([]float64, len(output))
		floats.SubTo(diff, targets[i], output)
		total += floats.Dot(diff, diff) / 2
	}
	return total / float64(len(inputs)), nil
}

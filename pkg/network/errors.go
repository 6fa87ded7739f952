package network

import (
	"github.com/pkg/errors"
)

/*
该文件定义网络与训练器共用的错误分类
调用方通过 errors.Is 区分错误类型
*/

var (
	// ErrConfiguration 网络构造或权重初始化参数不合法
	ErrConfiguration = errors.New("configuration error")
	// ErrShapeMismatch 输入或期望输出向量长度与层宽度不一致
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNumericDegeneracy 激活函数饱和（输出恰为0或1）或出现NaN
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
	// ErrEmptyDataset 空数据集无法计算平均误差
	ErrEmptyDataset = errors.Wrap(ErrNumericDegeneracy, "empty dataset")
	// ErrInvalidState 在错误的训练模式下调用了批量专用操作
	ErrInvalidState = errors.New("invalid state")
	// ErrIndexOutOfRange 矩阵视图的行列索引越界
	ErrIndexOutOfRange = errors.New("index out of range")
)

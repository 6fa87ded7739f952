package network

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

/*
该文件实现行主序权重矩阵上的零拷贝转置视图
前向传播按行读取“流入”某个神经元的权重，反向传播按列读取“流出”某个神经元的权重，
两者共享同一份 mat.Dense 存储
*/

// MatrixView 对 mat.Dense 的索引转换包装，transposed 为真时行列互换
type MatrixView struct {
	dense      *mat.Dense
	transposed bool
}

// NewMatrixView 创建不复制存储的矩阵视图
func NewMatrixView(dense *mat.Dense) *MatrixView {
	return &MatrixView{dense: dense}
}

// Dims 返回视图的逻辑行数和列数
func (v *MatrixView) Dims() (r, c int) {
	r, c = v.dense.Dims()
	if v.transposed {
		return c, r
	}
	return r, c
}

// At 返回逻辑位置 (i, j) 的值，越界时与 gonum 一样 panic
func (v *MatrixView) At(i, j int) float64 {
	if v.transposed {
		return v.dense.At(j, i)
	}
	return v.dense.At(i, j)
}

// Set 写入逻辑位置 (i, j)，修改直接反映到底层存储
func (v *MatrixView) Set(i, j int, x float64) {
	if v.transposed {
		v.dense.Set(j, i, x)
		return
	}
	v.dense.Set(i, j, x)
}

// T 实现 mat.Matrix 接口
func (v *MatrixView) T() mat.Matrix {
	return v.Transpose()
}

// Transpose 返回共享同一存储的转置视图
func (v *MatrixView) Transpose() *MatrixView {
	return &MatrixView{dense: v.dense, transposed: !v.transposed}
}

// Raw 返回底层行主序存储
func (v *MatrixView) Raw() *mat.Dense {
	return v.dense
}

// Row 返回逻辑第 i 行的可写视图
func (v *MatrixView) Row(i int) (*Line, error) {
	r, _ := v.Dims()
	if i < 0 || i >= r {
		return nil, errors.Wrapf(ErrIndexOutOfRange, "行索引 %d 不在 [0, %d) 内", i, r)
	}
	return &Line{view: v, index: i}, nil
}

// String 以 gonum 格式输出矩阵
func (v *MatrixView) String() string {
	return fmt.Sprintf("%v", mat.Formatted(v, mat.Squeeze()))
}

// Line 视图中某一逻辑行，实现 mat.Vector
// 与 gonum 的向量一致，AtVec/SetVec/At 的下标越界时 panic（mat.ErrVectorAccess），
// 需要返回错误的行号检查在 MatrixView.Row 中完成
type Line struct {
	view  *MatrixView
	index int
}

// Len 返回行长度
func (l *Line) Len() int {
	_, c := l.view.Dims()
	return c
}

// AtVec 返回第 k 个元素
func (l *Line) AtVec(k int) float64 {
	l.check(k)
	return l.view.At(l.index, k)
}

// SetVec 写入第 k 个元素
func (l *Line) SetVec(k int, x float64) {
	l.check(k)
	l.view.Set(l.index, k, x)
}

func (l *Line) check(k int) {
	if k < 0 || k >= l.Len() {
		panic(mat.ErrVectorAccess)
	}
}

// At 按列向量语义访问，j 必须为0
func (l *Line) At(i, j int) float64 {
	if j != 0 {
		panic(mat.ErrColAccess)
	}
	return l.AtVec(i)
}

// Dims 列向量的维度
func (l *Line) Dims() (r, c int) {
	return l.Len(), 1
}

// T 返回行向量形式
func (l *Line) T() mat.Matrix {
	return mat.TransposeVec{Vector: l}
}

// Values 复制出当前行的值
func (l *Line) Values() []float64 {
	out := make([]float64, l.Len())
	for k := range out {
		out[k] = l.AtVec(k)
	}
	return out
}

// 模型序列化工具函数
// 提供网络与字节流、Base64字符串、文件之间的转换，便于网络传输和存储
package network

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LayerModel 单层的可序列化表示
type LayerModel struct {
	Kind       Kind        `json:"kind"`
	Size       int         `json:"size"` // 不含偏置
	Bias       bool        `json:"bias"`
	BiasValue  float64     `json:"bias_value"`
	Activation string      `json:"activation,omitempty"`
	Weights    [][]float64 `json:"weights,omitempty"` // 行主序，输出层为空
}

// Model 整个网络的可序列化表示
type Model struct {
	Layers []LayerModel `json:"layers"`
}

// Snapshot 导出当前网络结构和权重
func (nn *NeuronNetwork) Snapshot() Model {
	model := Model{Layers: make([]LayerModel, 0, len(nn.layers))}
	for _, l := range nn.layers {
		lm := LayerModel{Kind: l.Kind()}
		if in, ok := l.(Inbound); ok {
			lm.Size = in.InputSize()
			lm.Activation = in.Activation().Name
		}
		if out, ok := l.(Outbound); ok {
			lm.Size = out.InputSize()
			lm.Bias = out.HasBias()
			lm.BiasValue = out.BiasValue()
			lm.Weights = rows(out.Weights().Raw())
		}
		model.Layers = append(model.Layers, lm)
	}
	return model
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return out
}

// FromModel 根据导出的表示重建网络
func FromModel(model Model) (*NeuronNetwork, error) {
	n := len(model.Layers)
	if n < 2 {
		return nil, errors.Wrapf(ErrConfiguration, "模型至少需要两层，得到 %d 层", n)
	}
	layers := make([]Layer, n)
	for i, lm := range model.Layers {
		var opts []Option
		if lm.Bias {
			opts = append(opts, WithBias(lm.BiasValue))
		}
		var err error
		switch lm.Kind {
		case KindInput, KindHidden:
			if i == n-1 {
				return nil, errors.Wrapf(ErrConfiguration, "最后一层必须是输出层，得到 %v", lm.Kind)
			}
			init := Sequence(flatten(lm.Weights)...)
			next := model.Layers[i+1].Size
			if lm.Kind == KindInput {
				layers[i], err = NewInputLayer(lm.Size, next, init, opts...)
				break
			}
			act, aerr := ActivationByName(lm.Activation)
			if aerr != nil {
				return nil, aerr
			}
			layers[i], err = NewHiddenLayer(lm.Size, next, init, act, opts...)
		case KindOutput:
			act, aerr := ActivationByName(lm.Activation)
			if aerr != nil {
				return nil, aerr
			}
			layers[i], err = NewOutputLayer(lm.Size, act)
		default:
			return nil, errors.Wrapf(ErrConfiguration, "未知的层类型 %v", lm.Kind)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "重建第 %d 层失败", i)
		}
	}
	return NewNeuronNetwork(layers...)
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// EncodeModel 将网络序列化为gob字节流
func EncodeModel(nn *NeuronNetwork) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(nn.Snapshot()); err != nil {
		return nil, errors.Wrap(err, "编码模型失败")
	}
	return buf.Bytes(), nil
}

// DecodeModel 将gob字节流反序列化为网络
func DecodeModel(data []byte) (*NeuronNetwork, error) {
	var model Model
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&model); err != nil {
		return nil, errors.Wrap(err, "解码模型失败")
	}
	return FromModel(model)
}

// EncodeToBase64 将字节流编码为Base64字符串，便于网络传输
func EncodeToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeFromBase64 将Base64字符串解码为字节流
func DecodeFromBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// SaveModel 把网络写入文件
func SaveModel(nn *NeuronNetwork, path string) error {
	data, err := EncodeModel(nn)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "写入模型文件 %s 失败", path)
	}
	return nil
}

// LoadModel 从文件读取网络
func LoadModel(path string) (*NeuronNetwork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取模型文件 %s 失败", path)
	}
	return DecodeModel(data)
}

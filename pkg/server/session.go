package server

import (
	"context"
	"sync"
	"time"

	"BackpropDev/pkg/backprop"
	"BackpropDev/pkg/config"
	"BackpropDev/pkg/network"
	"BackpropDev/pkg/training"

	"github.com/pkg/errors"
)

// 会话状态
const (
	StatusCreated  = "created"
	StatusTraining = "training"
	StatusTrained  = "trained"
	StatusFailed   = "failed"
)

// Session 一个网络及其训练器
// 核心训练器是单线程的，使用网络的操作由 mu 串行化；训练期间仍可通过 stateMu 读取状态
type Session struct {
	ID      string
	Created time.Time

	mu     sync.Mutex
	cfg    *config.TrainingConfig
	algo   *backprop.Algorithm
	events *hub

	stateMu sync.RWMutex
	status  string
	mode    backprop.Mode
	layers  []int
	result  *training.Result
}

// Info 会话概要
type Info struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Layers    []int     `json:"layers"`
	Created   time.Time `json:"created"`
	Epochs    int       `json:"epochs"`
	Error     float64   `json:"error"`
	Converged bool      `json:"converged"`
}

func newSession(id string, cfg *config.TrainingConfig) (*Session, error) {
	algo, err := cfg.NewAlgorithm()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:      id,
		Created: time.Now(),
		cfg:     cfg,
		algo:    algo,
		events:  newHub(),
		status:  StatusCreated,
		mode:    algo.Mode(),
		layers:  algo.Network().Sizes(),
	}, nil
}

// Info 返回会话当前状态
func (s *Session) Info() Info {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	info := Info{
		ID:      s.ID,
		Status:  s.status,
		Mode:    s.mode.String(),
		Layers:  append([]int(nil), s.layers...),
		Created: s.Created,
	}
	if s.result != nil {
		info.Epochs = s.result.Epochs
		info.Error = s.result.Error
		info.Converged = s.result.Converged
	}
	return info
}

// Train 在数据集上运行监督训练，每轮向订阅者推送进度
func (s *Session) Train(ctx context.Context, ds backprop.Dataset, sup *training.SupervisedConfig) (*training.Result, error) {
	if err := sup.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setState(StatusTraining, nil)
	progress := sup.Progress
	sup.Progress = func(epoch int, loss float64) {
		s.events.publish(Event{Type: EventEpoch, Epoch: epoch, Error: loss})
		if progress != nil {
			progress(epoch, loss)
		}
	}
	res, err := training.Run(ctx, s.algo, ds, sup)
	if err != nil {
		s.setState(StatusFailed, nil)
		s.events.publish(Event{Type: EventFailed, Message: err.Error()})
		return res, err
	}
	s.setState(StatusTrained, res)
	s.events.publish(Event{Type: EventDone, Epoch: res.Epochs, Error: res.Error, Converged: res.Converged})
	return res, nil
}

// Supervised 会话配置中的训练参数（副本）
func (s *Session) Supervised() *training.SupervisedConfig {
	return s.cfg.Supervised()
}

// Predict 前向传播，返回输出和最大输出的下标
func (s *Session) Predict(input []float64) ([]float64, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nn := s.algo.Network()
	output, err := nn.Feed(input)
	if err != nil {
		return nil, -1, err
	}
	class, err := nn.Predict(input)
	if err != nil {
		return nil, -1, err
	}
	return output, class, nil
}

// Reset 丢弃批量模式下尚未应用的累加增量
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.algo.Reset()
}

// Model 导出网络的 Base64 gob 编码
func (s *Session) Model() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := network.EncodeModel(s.algo.Network())
	if err != nil {
		return "", err
	}
	return network.EncodeToBase64(data), nil
}

// Import 用导入的模型替换网络，动量状态随之重建
func (s *Session) Import(encoded string) error {
	data, err := network.DecodeFromBase64(encoded)
	if err != nil {
		return errors.Wrapf(network.ErrConfiguration, "模型不是合法的Base64: %v", err)
	}
	nn, err := network.DecodeModel(data)
	if err != nil {
		return errors.Wrap(network.ErrConfiguration, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	algo, err := backprop.New(nn, s.algo.Mode())
	if err != nil {
		return err
	}
	s.algo = algo
	s.cfg.Layers = nn.Sizes()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.layers = nn.Sizes()
	s.status = StatusCreated
	s.result = nil
	return nil
}

// setState 更新状态，result 为 nil 时保留上一次成功训练的结果
func (s *Session) setState(status string, result *training.Result) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.status = status
	if result != nil {
		s.result = result
	}
}

// Subscribe 订阅训练进度，返回的函数取消订阅
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

func (s *Session) close() {
	s.events.close()
}

package server

import (
	"fmt"
	"sort"
	"sync"

	"BackpropDev/pkg/config"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// Manager 会话管理器
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager 创建新的会话管理器
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create 按配置创建会话
func (m *Manager) Create(cfg *config.TrainingConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := newSession(uuid.New().String(), cfg)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	fmt.Printf("会话 %s 已创建，网络结构 %v，模式 %s\n", s.ID, cfg.Layers, cfg.Mode)
	return s, nil
}

// Get 获取会话
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrSessionNotFound, "会话 %s 不存在", id)
	}
	return s, nil
}

// List 按创建时间返回所有会话的概要
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Created.Before(sessions[j].Created)
	})
	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	return infos
}

// Delete 删除会话并关闭它的进度订阅
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.Wrapf(ErrSessionNotFound, "会话 %s 不存在", id)
	}
	s.close()
	fmt.Printf("会话 %s 已删除\n", id)
	return nil
}

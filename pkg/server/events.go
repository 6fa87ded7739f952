package server

import "sync"

// 进度事件类型
const (
	EventSubscribed = "subscribed"
	EventEpoch      = "epoch"
	EventDone       = "done"
	EventFailed     = "failed"
)

// Event 推送给进度订阅者的消息
type Event struct {
	Type      string  `json:"type"`
	Epoch     int     `json:"epoch,omitempty"`
	Error     float64 `json:"error,omitempty"`
	Converged bool    `json:"converged,omitempty"`
	Message   string  `json:"message,omitempty"`
}

const subscriberBuffer = 256

// hub 把事件分发给所有订阅者，订阅者跟不上时丢弃事件而不阻塞训练
type hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Event]struct{})
	h.closed = true
}

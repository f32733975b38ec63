package slamon

import (
	"sync"
	"time"
)

// heartbeat sends a keep-alive frame on a fixed interval until stopped. It
// does not watch for pongs; a dead peer surfaces as a transport close.
type heartbeat struct {
	interval time.Duration

	mu     sync.Mutex
	stopCh chan struct{}
}

func newHeartbeat(interval time.Duration) *heartbeat {
	return &heartbeat{interval: interval}
}

// start begins ticking. Calling start while running is a no-op.
func (h *heartbeat) start(beat func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		return
	}
	h.stopCh = make(chan struct{})
	go h.run(h.interval, beat, h.stopCh)
}

func (h *heartbeat) run(interval time.Duration, beat func(), stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			// stop may race with the tick; re-check before sending.
			select {
			case <-stopCh:
				return
			default:
			}
			beat()
		}
	}
}

// stop halts the loop. It does not wait for an in-progress beat so it is safe
// to call while holding locks the beat callback may need.
func (h *heartbeat) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	h.stopCh = nil
}

func (h *heartbeat) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCh != nil
}

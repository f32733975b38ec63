package slamon

import (
	"log/slog"
	"sync"
)

// Unsubscribe removes a registration. Calling it more than once is a no-op.
type Unsubscribe func()

// ============================================================================
// Handler Sets
// ============================================================================

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

// handlerSet is a copy-on-write list of handlers: every mutation swaps in a
// new slice, so a snapshot taken for dispatch is never modified underneath
// the caller, even when a handler subscribes or unsubscribes mid-dispatch.
type handlerSet[T any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []handlerEntry[T]
}

func (s *handlerSet[T]) add(fn func(T)) Unsubscribe {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	next := make([]handlerEntry[T], len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	s.entries = append(next, handlerEntry[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *handlerSet[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id != id {
			continue
		}
		next := make([]handlerEntry[T], 0, len(s.entries)-1)
		next = append(next, s.entries[:i]...)
		s.entries = append(next, s.entries[i+1:]...)
		return
	}
}

func (s *handlerSet[T]) snapshot() []func(T) {
	s.mu.Lock()
	entries := s.entries
	s.mu.Unlock()

	fns := make([]func(T), len(entries))
	for i, e := range entries {
		fns[i] = e.fn
	}
	return fns
}

func (s *handlerSet[T]) clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

func (s *handlerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// ============================================================================
// Dispatcher
// ============================================================================

// dispatcher owns the three subscriber sets and routes decoded frames.
// Handlers run synchronously on the caller's goroutine, one message at a time.
type dispatcher struct {
	messages handlerSet[InboundMessage]
	updates  handlerSet[*SLAData]
	status   handlerSet[bool]

	logger *slog.Logger

	// onSnapshot persists a full snapshot before subscribers see it.
	onSnapshot func(*SLAData)
	// onAlert pulls a fresh snapshot instead of merging the alert locally.
	onAlert func()
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	return &dispatcher{logger: logger}
}

func (d *dispatcher) route(msg InboundMessage) {
	d.emitMessage(msg)

	switch m := msg.(type) {
	case *ConnectionEstablished:
		d.logger.Debug("connection established by server", "data", m.Data)
	case *SLAUpdate:
		if m.Data == nil {
			d.logger.Debug("sla_update without data ignored")
			return
		}
		if d.onSnapshot != nil {
			d.onSnapshot(m.Data)
		}
		d.emitUpdate(m.Data)
	case *NewAlert:
		if d.onAlert != nil {
			d.onAlert()
		}
	case *Pong, *UptimeUpdate:
	default:
		d.logger.Debug("ignoring unrecognized message", "type", msg.Type())
	}
}

func (d *dispatcher) emitMessage(msg InboundMessage) {
	invoke(d.logger, "message", d.messages.snapshot(), msg)
}

func (d *dispatcher) emitUpdate(data *SLAData) {
	invoke(d.logger, "update", d.updates.snapshot(), data)
}

func (d *dispatcher) emitStatus(connected bool) {
	invoke(d.logger, "connection status", d.status.snapshot(), connected)
}

func (d *dispatcher) clear() {
	d.messages.clear()
	d.updates.clear()
	d.status.clear()
}

func invoke[T any](logger *slog.Logger, kind string, handlers []func(T), v T) {
	for _, h := range handlers {
		callHandler(logger, kind, h, v)
	}
}

func callHandler[T any](logger *slog.Logger, kind string, h func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscriber panicked", "handler", kind, "panic", r)
		}
	}()
	h(v)
}

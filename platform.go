package slamon

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Platform is the host seam: durable storage plus the two lifecycle signals
// the channel reacts to. A browser host maps these to localStorage,
// visibilitychange and beforeunload; a process host maps them to a file or
// database and to OS signals.
type Platform interface {
	Storage
	// OnVisible registers fn to run when the host becomes visible/active again.
	OnVisible(fn func()) Unsubscribe
	// OnUnload registers fn to run when the host is going away.
	OnUnload(fn func()) Unsubscribe
}

// ============================================================================
// MemoryPlatform
// ============================================================================

// MemoryPlatform is an in-process Platform whose lifecycle events are fired
// by the embedding program (or a test) via SetVisible and Unload.
type MemoryPlatform struct {
	*MemoryStorage
	visible handlerSet[struct{}]
	unload  handlerSet[struct{}]
}

// NewMemoryPlatform creates a platform over an empty MemoryStorage.
func NewMemoryPlatform() *MemoryPlatform {
	return &MemoryPlatform{MemoryStorage: NewMemoryStorage()}
}

func (p *MemoryPlatform) OnVisible(fn func()) Unsubscribe {
	return p.visible.add(func(struct{}) { fn() })
}

func (p *MemoryPlatform) OnUnload(fn func()) Unsubscribe {
	return p.unload.add(func(struct{}) { fn() })
}

// SetVisible fires the visible listeners.
func (p *MemoryPlatform) SetVisible() {
	for _, h := range p.visible.snapshot() {
		h(struct{}{})
	}
}

// Unload fires the unload listeners.
func (p *MemoryPlatform) Unload() {
	for _, h := range p.unload.snapshot() {
		h(struct{}{})
	}
}

// ============================================================================
// OSPlatform
// ============================================================================

var unloadSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// OSPlatform maps process signals to lifecycle events: SIGINT/SIGTERM are an
// unload, SIGCONT (resumed after a stop) counts as becoming visible again.
type OSPlatform struct {
	Storage
	visible handlerSet[struct{}]
	unload  handlerSet[struct{}]

	sigCh     chan os.Signal
	done      chan struct{}
	closeOnce sync.Once
}

// NewOSPlatform starts listening for signals. Call Close to stop.
func NewOSPlatform(storage Storage) *OSPlatform {
	p := &OSPlatform{
		Storage: storage,
		sigCh:   make(chan os.Signal, 4),
		done:    make(chan struct{}),
	}
	signal.Notify(p.sigCh, append(append([]os.Signal{}, unloadSignals...), visibilitySignals...)...)
	go p.loop()
	return p
}

func (p *OSPlatform) loop() {
	for {
		select {
		case <-p.done:
			return
		case sig := <-p.sigCh:
			set := &p.visible
			if isUnloadSignal(sig) {
				set = &p.unload
			}
			for _, h := range set.snapshot() {
				h(struct{}{})
			}
		}
	}
}

func isUnloadSignal(sig os.Signal) bool {
	for _, s := range unloadSignals {
		if s == sig {
			return true
		}
	}
	return false
}

func (p *OSPlatform) OnVisible(fn func()) Unsubscribe {
	return p.visible.add(func(struct{}) { fn() })
}

func (p *OSPlatform) OnUnload(fn func()) Unsubscribe {
	return p.unload.add(func(struct{}) { fn() })
}

// Close stops signal delivery. It is idempotent.
func (p *OSPlatform) Close() {
	p.closeOnce.Do(func() {
		signal.Stop(p.sigCh)
		close(p.done)
	})
}

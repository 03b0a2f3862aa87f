package mesh

import (
	"sync"

	"github.com/1ureka/mesh/internal/util"
)

// listeners is an ordered list of callbacks. Each callback runs in
// registration order; a panicking callback is logged and does not stop the
// ones after it.
type listeners[T any] struct {
	name string

	mu  sync.RWMutex
	fns []func(T)
}

func (l *listeners[T]) add(fn func(T)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *listeners[T]) fire(v T) {
	l.mu.RLock()
	fns := make([]func(T), len(l.fns))
	copy(fns, l.fns)
	l.mu.RUnlock()

	for _, fn := range fns {
		safeCall(l.name, func() { fn(v) })
	}
}

// safeCall runs fn, logging instead of propagating a panic.
func safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			util.LogError("%s handler panicked: %v", name, r)
		}
	}()
	fn()
}

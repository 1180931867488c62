package notify

import "sync"

// registry is an ordered list of observers with unsubscribe tokens.
type registry[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs []entry[T]
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

// add registers fn and returns a function that removes it. Removing
// twice is harmless.
func (r *registry[T]) add(fn func(T)) func() {
	r.mu.Lock()
	r.next++
	id := r.next
	r.subs = append(r.subs, entry[T]{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.subs {
			if e.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// emit calls every observer in registration order. Observers are
// snapshotted first so they may unsubscribe from inside the callback.
func (r *registry[T]) emit(v T) {
	r.mu.RLock()
	subs := make([]entry[T], len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()

	for _, e := range subs {
		e.fn(v)
	}
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

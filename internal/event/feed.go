package event

import "sync"

// Feed delivers values of type T to every current subscriber, in subscription order.
// The zero value is ready to use. Handlers run on the sending goroutine, outside the feed's lock,
// so a handler may subscribe or unsubscribe without deadlocking.
type Feed[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it. The returned function is idempotent.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	f.mu.Lock()
	f.next++
	id := f.next
	f.subs = append(f.subs, subscription[T]{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(id) })
	}
}

func (f *Feed[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Send calls every subscriber with v and returns how many were called.
func (f *Feed[T]) Send(v T) int {
	f.mu.Lock()
	subs := make([]subscription[T], len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
	return len(subs)
}

// Len is the number of current subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

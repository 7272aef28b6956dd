package sched

import "sync"

// Object is embedded by every active object. At most one handler touching
// the embedding struct runs at a time: the kernel takes this lock to
// dispatch, and Call/Do take it for synchronous calls.
//
// A handler must never Call its own object; that deadlocks.
type Object struct {
	mu sync.Mutex
}

// Call runs fn with o's exclusion held and returns its result. This is the
// only way to read fresh state out of another active object.
func Call[T any](o *Object, fn func() T) T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fn()
}

// Do is Call for handlers without a result.
func Do(o *Object, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn()
}

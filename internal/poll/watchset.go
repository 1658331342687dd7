package poll

import "sync"

// WatchSet is the mutable set of market condition ids and order ids the
// poll loops cover. It has its own lock so callers can grow or shrink the
// set while the loops are running; each tick snapshots the current
// membership.
type WatchSet struct {
	mu      sync.Mutex
	markets map[string]struct{}
	orders  map[string]struct{}
}

// NewWatchSet creates a watch set with the given initial membership.
func NewWatchSet(markets, orders []string) *WatchSet {
	w := &WatchSet{
		markets: make(map[string]struct{}),
		orders:  make(map[string]struct{}),
	}
	w.Add(markets, orders)
	return w
}

// Add inserts markets and orders into the set. Nil slices are allowed.
func (w *WatchSet) Add(markets, orders []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range markets {
		w.markets[m] = struct{}{}
	}
	for _, o := range orders {
		w.orders[o] = struct{}{}
	}
}

// Remove deletes markets and orders from the set. Unknown ids are ignored.
func (w *WatchSet) Remove(markets, orders []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range markets {
		delete(w.markets, m)
	}
	for _, o := range orders {
		delete(w.orders, o)
	}
}

// Reset replaces the market set and/or the order set. A nil slice leaves
// that set untouched; an empty non-nil slice clears it.
func (w *WatchSet) Reset(markets, orders []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if markets != nil {
		w.markets = make(map[string]struct{}, len(markets))
		for _, m := range markets {
			w.markets[m] = struct{}{}
		}
	}
	if orders != nil {
		w.orders = make(map[string]struct{}, len(orders))
		for _, o := range orders {
			w.orders[o] = struct{}{}
		}
	}
}

// Clear empties both sets.
func (w *WatchSet) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.markets = make(map[string]struct{})
	w.orders = make(map[string]struct{})
}

// Markets returns a snapshot of the watched market ids.
func (w *WatchSet) Markets() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.markets))
	for m := range w.markets {
		out = append(out, m)
	}
	return out
}

// Orders returns a snapshot of the watched order ids.
func (w *WatchSet) Orders() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.orders))
	for o := range w.orders {
		out = append(out, o)
	}
	return out
}

package store

// mailbox is a per-key one-shot broadcast slot. Waiters register by taking
// the current channel while holding the store lock, then block on it after
// releasing the lock; publishing stores the value and closes the channel, so
// every registered waiter observes exactly the next update and a signal can
// never slip between registration and blocking. A fresh mailbox replaces the
// published one, so later waiters see later updates.
type mailbox[T any] struct {
	ch  chan struct{}
	val T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan struct{})}
}

// publish stores val and wakes all waiters. Must be called at most once per
// mailbox, under the store lock.
func (m *mailbox[T]) publish(val T) {
	m.val = val
	close(m.ch)
}

// mailboxes lazily creates the wait slot for a key.
type mailboxes[T any] map[string]*mailbox[T]

func (ms mailboxes[T]) get(key string) *mailbox[T] {
	m, ok := ms[key]
	if !ok {
		m = newMailbox[T]()
		ms[key] = m
	}
	return m
}

// signal publishes val to the key's waiters, if any, and retires the slot.
func (ms mailboxes[T]) signal(key string, val T) {
	if m, ok := ms[key]; ok {
		m.publish(val)
		delete(ms, key)
	}
}

package history

import (
	"github.com/iamvkosarev/ai-gateway-sdk/internal/model"
	"sync"
)

// broadcaster fans snapshots out to subscribers. Each subscriber channel holds
// at most one snapshot: publishing replaces an unread snapshot instead of
// queueing behind it, so a slow reader skips frames but never blocks the
// publisher and always ends up with the latest one.
type broadcaster struct {
	mu          sync.Mutex
	subscribers map[uint64]chan []model.Message
	nextID      uint64
	closed      bool
	done        chan struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subscribers: make(map[uint64]chan []model.Message),
		done:        make(chan struct{}),
	}
}

func (b *broadcaster) subscribe(initial []model.Message) (uint64, <-chan []model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []model.Message, 1)
	if b.closed {
		close(ch)
		return 0, ch
	}
	ch <- initial
	b.nextID++
	b.subscribers[b.nextID] = ch
	return b.nextID, ch
}

func (b *broadcaster) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *broadcaster) publish(snapshot func() []model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case <-ch:
		default:
		}
		// only publish sends, under b.mu, so the buffer is free here
		ch <- snapshot()
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}

func (b *broadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

package services

import (
	"context"
	"strings"
	"sync"
)

// ChangeNotifier fans out "something under this path changed" signals.
type ChangeNotifier interface {
	Publish(ctx context.Context, path string)
	Subscribe(prefix string) (<-chan struct{}, func())
}

type feedSubscription struct {
	prefix string
	ch     chan struct{}
}

// LocalChangeFeed is the in-process notifier. Each subscriber owns a
// one-slot channel; a pending signal absorbs further publishes, so a slow
// subscriber never blocks the writer and simply re-reads once.
type LocalChangeFeed struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]*feedSubscription
}

func NewLocalChangeFeed() *LocalChangeFeed {
	return &LocalChangeFeed{subs: make(map[uint64]*feedSubscription)}
}

func (f *LocalChangeFeed) Publish(_ context.Context, path string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if !strings.HasPrefix(path, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers interest in prefix. The returned cancel func is
// idempotent and closes the channel.
func (f *LocalChangeFeed) Subscribe(prefix string) (<-chan struct{}, func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	sub := &feedSubscription{prefix: prefix, ch: make(chan struct{}, 1)}
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			close(sub.ch)
			f.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Len reports the number of live subscriptions.
func (f *LocalChangeFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

package services

import (
	"context"
	"sync"
	"time"

	"anniversary_server/logger"
)

const defaultResnapshotDelay = 2 * time.Second

// Subscription is a cancellable stream of full snapshots. The channel holds
// at most one pending snapshot; a newer snapshot replaces an unread one, so
// a slow consumer sees the latest state rather than every intermediate one.
type Subscription[T any] struct {
	updates chan T
	cancel  context.CancelFunc
	done    chan struct{}
}

// Updates is closed once the subscription ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Close stops the stream and waits until the store listener is released.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// Done is closed after the listener has been released.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// startSubscription subscribes to every prefix, emits one snapshot right
// away and another after each change. Listener release is deferred inside
// the producer goroutine, so it happens on every exit path.
func startSubscription[T any](parent context.Context, store KeyPathStore, prefixes []string, retry time.Duration, load func(context.Context) (T, error)) *Subscription[T] {
	ctx, cancel := context.WithCancel(parent)
	sub := &Subscription[T]{
		updates: make(chan T, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if retry <= 0 {
		retry = defaultResnapshotDelay
	}

	signals := make([]<-chan struct{}, 0, len(prefixes))
	releases := make([]func(), 0, len(prefixes))
	for _, prefix := range prefixes {
		ch, release := store.Subscribe(prefix)
		signals = append(signals, ch)
		releases = append(releases, release)
	}

	go func() {
		defer close(sub.done)
		defer close(sub.updates)
		defer func() {
			for _, release := range releases {
				release()
			}
		}()
		streamSnapshots(ctx, mergeSignals(ctx, signals), retry, load, sub.updates)
	}()
	return sub
}

func streamSnapshots[T any](ctx context.Context, signal <-chan struct{}, retry time.Duration, load func(context.Context) (T, error), out chan T) {
	var retryC <-chan time.Time
	emit := func() {
		snapshot, err := load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Get().Warn().Err(err).Dur("retryIn", retry).Msg("⚠️ snapshot failed")
			retryC = time.After(retry)
			return
		}
		retryC = nil
		offerLatest(out, snapshot)
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-signal:
			if !ok {
				return
			}
			emit()
		case <-retryC:
			emit()
		}
	}
}

// offerLatest puts v in the one-slot channel, evicting an unread value.
// Only the producer goroutine sends, so the loop settles immediately.
func offerLatest[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}

// mergeSignals folds several signal channels into one coalescing channel,
// closed once every input is closed or ctx is done.
func mergeSignals(ctx context.Context, inputs []<-chan struct{}) <-chan struct{} {
	if len(inputs) == 1 {
		return inputs[0]
	}
	out := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, in := range inputs {
		wg.Add(1)
		go func(in <-chan struct{}) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

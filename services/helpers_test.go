package services

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"anniversary_server/clock"
	"anniversary_server/logger"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var errStoreDown = errors.New("connection reset by peer")

// flakyStore wraps a KeyPathStore and fails selected calls.
type flakyStore struct {
	KeyPathStore

	mu sync.Mutex
	// failUpdate returns a non-nil error to fail an UpdateFields call on path.
	failUpdate func(path string, fields map[string]any) error
	failQuery  error
	failGet    error
	queries    int
}

func (f *flakyStore) UpdateFields(ctx context.Context, path string, fields map[string]any, opts ...UpdateOption) error {
	f.mu.Lock()
	hook := f.failUpdate
	f.mu.Unlock()
	if hook != nil {
		if err := hook(path, fields); err != nil {
			return err
		}
	}
	return f.KeyPathStore.UpdateFields(ctx, path, fields, opts...)
}

func (f *flakyStore) Query(ctx context.Context, collection, field string, equals any, out any) error {
	f.mu.Lock()
	f.queries++
	err := f.failQuery
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.KeyPathStore.Query(ctx, collection, field, equals, out)
}

func (f *flakyStore) Get(ctx context.Context, path string, out any) (bool, error) {
	f.mu.Lock()
	err := f.failGet
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.KeyPathStore.Get(ctx, path, out)
}

func (f *flakyStore) set(fn func(*flakyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type sentNotification struct {
	Target string
	Title  string
	Body   string
	Data   map[string]string
}

// recordingDispatcher captures notifications and can be told to fail.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, target, title, body string, data map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentNotification{Target: target, Title: title, Body: body, Data: data})
	return d.err
}

func (d *recordingDispatcher) Sent() []sentNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentNotification(nil), d.sent...)
}

type testEnv struct {
	store      *flakyStore
	feed       *LocalChangeFeed
	clock      *clock.Fake
	pairing    *PairingService
	messages   *MessageStore
	tracker    *DeliveryStatusTracker
	feedSvc    *FeedService
	dispatcher *recordingDispatcher
	scheduler  *DeliveryScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	feed := NewLocalChangeFeed()
	store := &flakyStore{KeyPathStore: NewMemoryStore(feed)}
	clk := clock.NewFake(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	env := &testEnv{
		store:      store,
		feed:       feed,
		clock:      clk,
		pairing:    NewPairingService(store, clk),
		messages:   NewMessageStore(store, clk),
		dispatcher: &recordingDispatcher{},
	}
	env.messages.ResnapshotDelay = 10 * time.Millisecond
	env.tracker = NewDeliveryStatusTracker(store, env.messages, clk)
	env.feedSvc = NewFeedService(store, env.messages, env.tracker)
	env.feedSvc.ResnapshotDelay = 10 * time.Millisecond
	env.scheduler = NewDeliveryScheduler(env.pairing, env.messages, env.dispatcher, NewLocalTickLocker())
	return env
}

func fixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSub struct {
	errc chan error
	once sync.Once
}

func (s *fakeSub) Unsubscribe() { s.once.Do(func() { close(s.errc) }) }

func (s *fakeSub) Err() <-chan error { return s.errc }

func (s *fakeSub) fail(err error) {
	select {
	case s.errc <- err:
	default:
	}
}

type fakeBackend struct {
	mu     sync.Mutex
	subs   []*fakeSub
	chans  []chan<- ethtypes.Log
	closed atomic.Bool
}

func (b *fakeBackend) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &fakeSub{errc: make(chan error, 1)}
	b.subs = append(b.subs, sub)
	b.chans = append(b.chans, ch)
	return sub, nil
}

func (b *fakeBackend) Close() { b.closed.Store(true) }

func (b *fakeBackend) subCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *fakeBackend) emit(lg ethtypes.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.chans {
		ch <- lg
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnDeliversLogsToHandler(t *testing.T) {
	backend := &fakeBackend{}
	conn := New(func(context.Context) (Backend, error) { return backend, nil },
		zap.NewNop(), time.Millisecond, 10*time.Millisecond)

	var got atomic.Int32
	conn.Watch(ethereum.FilterQuery{}, func(ethtypes.Log) { got.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	waitFor(t, func() bool { return backend.subCount() == 1 }, "watch never established")
	waitFor(t, func() bool { return conn.State() == StateConnected }, "never connected")

	backend.emit(ethtypes.Log{Address: common.HexToAddress("0x01")})
	waitFor(t, func() bool { return got.Load() == 1 }, "handler never invoked")
}

func TestConnReplacesBackendAndResubscribes(t *testing.T) {
	var mu sync.Mutex
	backends := []*fakeBackend{}
	dials := 0

	dial := func(context.Context) (Backend, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		b := &fakeBackend{}
		backends = append(backends, b)
		return b, nil
	}

	conn := New(dial, zap.NewNop(), time.Millisecond, 8*time.Millisecond)
	conn.Watch(ethereum.FilterQuery{}, func(ethtypes.Log) {})
	conn.Watch(ethereum.FilterQuery{}, func(ethtypes.Log) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(backends) == 1 && backends[0].subCount() == 2
	}, "first generation never established both watches")

	// Kill the first backend: the connection must be discarded and every
	// watch re-established on a fresh one.
	mu.Lock()
	first := backends[0]
	mu.Unlock()
	first.subs[0].fail(errors.New("read: connection reset"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(backends) == 2 && backends[1].subCount() == 2
	}, "watches not re-established on replacement backend")

	assert.True(t, first.closed.Load(), "dropped backend must be closed")
	waitFor(t, func() bool { return conn.State() == StateConnected }, "never reconnected")

	mu.Lock()
	assert.Equal(t, 2, dials)
	mu.Unlock()
}

func TestConnStopsOnContextCancel(t *testing.T) {
	backend := &fakeBackend{}
	conn := New(func(context.Context) (Backend, error) { return backend, nil },
		zap.NewNop(), time.Millisecond, 8*time.Millisecond)
	conn.Watch(ethereum.FilterQuery{}, func(ethtypes.Log) {})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	waitFor(t, func() bool { return conn.State() == StateConnected }, "never connected")
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, conn.State())
}

func TestNextBackoffIsBounded(t *testing.T) {
	d := 2 * time.Second
	max := 60 * time.Second
	for i := 0; i < 10; i++ {
		d = nextBackoff(d, max)
		assert.LessOrEqual(t, d, max)
	}
	assert.Equal(t, max, d)
}

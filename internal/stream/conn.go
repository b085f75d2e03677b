package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	imetrics "github.com/you/dexarb-bot/internal/metrics"
)

// State of the supervised connection.
type State int32

const (
	StateDisconnected State = iota
	StateReconnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Backend is the subscription surface of an RPC client. *ethclient.Client
// satisfies it when dialed against a websocket endpoint.
type Backend interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
	Close()
}

// DialFunc produces a fresh backend against the same target endpoint.
type DialFunc func(ctx context.Context) (Backend, error)

// Handler receives one matched log. Handlers must be safe to call from the
// connection's reader goroutines; the engine's gate serializes real work.
type Handler func(ethtypes.Log)

type watch struct {
	query   ethereum.FilterQuery
	handler Handler
}

// Conn owns exactly one live backend at a time. When the backend drops, it
// is discarded wholesale and every registered watch is re-established
// against the replacement, with bounded exponential backoff between
// attempts.
type Conn struct {
	dial DialFunc
	log  *zap.Logger

	base time.Duration
	max  time.Duration

	mu      sync.Mutex
	watches []watch

	state atomic.Int32
}

func New(dial DialFunc, log *zap.Logger, base, max time.Duration) *Conn {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max < base {
		max = 60 * time.Second
	}
	return &Conn{dial: dial, log: log, base: base, max: max}
}

// Watch registers a log subscription. Must be called before Run.
func (c *Conn) Watch(q ethereum.FilterQuery, h Handler) {
	c.mu.Lock()
	c.watches = append(c.watches, watch{query: q, handler: h})
	c.mu.Unlock()
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.log.Info("stream state change",
			zap.String("from", old.String()),
			zap.String("to", s.String()),
		)
	}
}

// Run dials, serves, and replaces the backend until ctx is done. An
// evaluation already running when the backend drops is not cancelled; it
// fails naturally on its own deadline.
func (c *Conn) Run(ctx context.Context) error {
	backoff := c.base
	for {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		backend, err := c.dial(ctx)
		if err != nil {
			c.setState(StateReconnecting)
			c.log.Warn("stream dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.max)
			continue
		}

		c.setState(StateConnected)
		backoff = c.base

		err = c.serve(ctx, backend)
		backend.Close()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		imetrics.StreamReconnects.Inc()
		c.setState(StateReconnecting)
		c.log.Warn("stream connection lost", zap.Error(err), zap.Duration("retry_in", backoff))
		if !sleepCtx(ctx, backoff) {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, c.max)
	}
}

// serve establishes every watch on the backend and blocks until the first
// subscription error or ctx cancellation.
func (c *Conn) serve(ctx context.Context, backend Backend) error {
	c.mu.Lock()
	watches := make([]watch, len(c.watches))
	copy(watches, c.watches)
	c.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	errc := make(chan error, len(watches))

	for _, w := range watches {
		w := w
		ch := make(chan ethtypes.Log, 128)
		sub, err := backend.SubscribeFilterLogs(ctx, w.query, ch)
		if err != nil {
			return err
		}
		go func() {
			defer sub.Unsubscribe()
			for {
				select {
				case <-stop:
					return
				case lg := <-ch:
					imetrics.SwapEvents.Inc()
					w.handler(lg)
				case err := <-sub.Err():
					select {
					case errc <- err:
					default:
					}
					return
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleepCtx returns false if ctx ended before the delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

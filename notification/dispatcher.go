package notification

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 30 * time.Second

// DispatcherConfig controls queueing behavior.
type DispatcherConfig struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// Dispatcher delivers queued messages through a Sender on a background
// worker.
type Dispatcher struct {
	cfg     DispatcherConfig
	sender  Sender
	logger  *zap.Logger
	ch      chan Message
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	failed  atomic.Uint64

	// mu is held shared by Enqueue across the closed check and the send,
	// and exclusively by Close while it flips closed.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(cfg DispatcherConfig, sender Sender, logger *zap.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = NewLogSender(logger)
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: logger,
		ch:     make(chan Message, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("notification delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.Strings("to", msg.To),
			zap.Error(err),
		)
	}
}

// Enqueue queues msg for delivery and reports whether it was accepted. With
// DropIfFull a full queue drops the message; otherwise Enqueue blocks until
// there is room or ctx is done. An accepted message is always delivered
// before Close returns.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) bool {
	if d == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- msg:
			return true
		default:
			d.dropped.Add(1)
			return false
		}
	}

	select {
	case d.ch <- msg:
		return true
	case <-ctx.Done():
		d.dropped.Add(1)
		return false
	}
}

// Close stops accepting messages and waits for queued ones to be delivered.
// It waits for blocked Enqueue calls to finish first.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

// Dropped returns the number of messages that never reached the queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Failed returns the number of messages the sender rejected.
func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

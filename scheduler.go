// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Strategy selects where codec work runs.
type Strategy int

const (
	// StrategyDirect runs codecs in the calling goroutine.
	StrategyDirect Strategy = iota
	// StrategyDedicated starts one worker goroutine per codec.
	StrategyDedicated
	// StrategyPool reuses worker goroutines across codecs.
	StrategyPool
)

// DefaultTerminateWorkerTimeout is how long an idle pooled worker lives.
const DefaultTerminateWorkerTimeout = 5 * time.Second

// SchedulerConfig configures a CodecScheduler.
type SchedulerConfig struct {
	// MaxWorkers bounds concurrently running codecs. Zero means GOMAXPROCS.
	MaxWorkers int
	// TerminateWorkerTimeout is the idle lifetime of pooled workers.
	TerminateWorkerTimeout time.Duration
	Strategy               Strategy
	Logger                 *slog.Logger
}

// SchedulerStats is a snapshot of the scheduler state.
type SchedulerStats struct {
	Workers int // live worker goroutines
	Active  int // codecs holding an admission slot
	Idle    int // pooled workers waiting for work
	Queued  int // Acquire calls waiting for a slot
}

// CodecScheduler admits codecs into at most MaxWorkers slots in FIFO order
// and runs them according to its Strategy.
//
// One scheduler is meant to be shared by every reader and writer of a
// process. TerminateAll stops the pool.
type CodecScheduler struct {
	cfg    SchedulerConfig
	sem    *semaphore.Weighted
	nextID atomic.Uint64
	queued atomic.Int64

	mu      sync.Mutex
	pending map[uint64]chan reply
	workers map[*worker]struct{}
	idle    []*worker
	active  int
	closed  bool
}

// NewCodecScheduler creates a scheduler.
func NewCodecScheduler(cfg SchedulerConfig) *CodecScheduler {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	if cfg.TerminateWorkerTimeout <= 0 {
		cfg.TerminateWorkerTimeout = DefaultTerminateWorkerTimeout
	}
	return &CodecScheduler{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		pending: make(map[uint64]chan reply),
		workers: make(map[*worker]struct{}),
	}
}

var (
	defaultSchedulerOnce sync.Once
	defaultScheduler     *CodecScheduler
)

// DefaultScheduler returns the scheduler used when none is configured.
func DefaultScheduler() *CodecScheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewCodecScheduler(SchedulerConfig{Strategy: StrategyPool})
	})
	return defaultScheduler
}

func (s *CodecScheduler) log() *slog.Logger {
	if s.cfg.Logger != nil {
		return s.cfg.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MaxWorkers returns the admission bound.
func (s *CodecScheduler) MaxWorkers() int { return s.cfg.MaxWorkers }

// Acquire returns a codec for opts, waiting for a free slot when all
// MaxWorkers slots are taken. Pass-through codecs bypass admission.
func (s *CodecScheduler) Acquire(ctx context.Context, opts CodecOptions) (Codec, error) {
	if opts.passThrough() {
		return &passThroughCodec{}, nil
	}

	s.queued.Add(1)
	err := s.sem.Acquire(ctx, 1)
	s.queued.Add(-1)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sem.Release(1)
		return nil, ErrSchedulerClosed
	}
	s.active++
	s.mu.Unlock()

	if s.cfg.Strategy == StrategyDirect {
		codec, err := NewCodec(opts)
		if err != nil {
			s.releaseSlot(nil)
			return nil, err
		}
		return &directCodec{Codec: codec, s: s}, nil
	}

	w := s.takeWorker()
	wc := &workerCodec{s: s, w: w}
	if _, err := s.call(ctx, w, message{kind: msgInit, options: opts}); err != nil {
		wc.release(true)
		return nil, err
	}
	return wc, nil
}

// Stats returns a snapshot of the pool.
func (s *CodecScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{
		Workers: len(s.workers),
		Active:  s.active,
		Idle:    len(s.idle),
		Queued:  int(s.queued.Load()),
	}
}

// TerminateAll cancels idle timers and stops every worker. Busy workers
// stop as soon as their codec is flushed or aborted. Later Acquire calls fail
// with ErrSchedulerClosed.
func (s *CodecScheduler) TerminateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, w := range s.idle {
		w.stop()
		delete(s.workers, w)
	}
	s.idle = nil
	s.log().Debug("codec scheduler terminated", "busy", len(s.workers))
}

// takeWorker reuses an idle worker or starts one. The caller holds a slot.
func (s *CodecScheduler) takeWorker() *worker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Strategy == StrategyPool && len(s.idle) > 0 {
		w := s.idle[0]
		s.idle = s.idle[1:]
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		return w
	}

	w := &worker{inbox: make(chan message, 4)}
	s.workers[w] = struct{}{}
	go w.run(s)
	s.log().Debug("codec worker started", "workers", len(s.workers))
	return w
}

// releaseSlot returns w to the pool (or stops it) and frees the slot.
func (s *CodecScheduler) releaseSlot(w *worker) {
	s.mu.Lock()
	s.active--
	if w != nil {
		if s.closed || s.cfg.Strategy != StrategyPool {
			w.stop()
			delete(s.workers, w)
		} else {
			s.idle = append(s.idle, w)
			w.timer = time.AfterFunc(s.cfg.TerminateWorkerTimeout, func() { s.retire(w) })
		}
	}
	s.mu.Unlock()
	s.sem.Release(1)
}

// retire stops w if it is still idle.
func (s *CodecScheduler) retire(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, idle := range s.idle {
		if idle == w {
			s.idle = append(s.idle[:i], s.idle[i+1:]...)
			w.stop()
			delete(s.workers, w)
			s.log().Debug("idle codec worker terminated", "workers", len(s.workers))
			return
		}
	}
}

// call sends msg to w and waits for the correlated reply.
func (s *CodecScheduler) call(ctx context.Context, w *worker, msg message) (reply, error) {
	msg.id = s.nextID.Add(1)
	ch := make(chan reply, 1)

	s.mu.Lock()
	s.pending[msg.id] = ch
	s.mu.Unlock()

	forget := func() {
		s.mu.Lock()
		delete(s.pending, msg.id)
		s.mu.Unlock()
	}

	select {
	case w.inbox <- msg:
	case <-ctx.Done():
		forget()
		return reply{}, ctx.Err()
	}

	select {
	case r := <-ch:
		return r, r.err
	case <-ctx.Done():
		forget()
		return reply{}, ctx.Err()
	}
}

// post sends msg without waiting for a reply.
func (s *CodecScheduler) post(w *worker, msg message) {
	msg.id = s.nextID.Add(1)
	w.inbox <- msg
}

// dispatch routes a worker reply to its pending caller. Replies whose
// caller gave up are dropped.
func (s *CodecScheduler) dispatch(r reply) {
	s.mu.Lock()
	ch, ok := s.pending[r.id]
	delete(s.pending, r.id)
	s.mu.Unlock()
	if ok {
		ch <- r
	}
}

type messageKind uint8

const (
	msgInit messageKind = iota
	msgAppend
	msgFlush
	msgAbort
)

type message struct {
	id      uint64
	kind    messageKind
	data    []byte
	options CodecOptions
}

type reply struct {
	id     uint64
	data   []byte
	result CodecResult
	err    error
}

type worker struct {
	inbox    chan message
	timer    *time.Timer
	stopOnce sync.Once
}

func (w *worker) stop() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.stopOnce.Do(func() { close(w.inbox) })
}

func (w *worker) run(s *CodecScheduler) {
	var codec Codec
	ctx := context.Background()

	for msg := range w.inbox {
		r := reply{id: msg.id}
		switch msg.kind {
		case msgInit:
			if codec != nil {
				codec.Abort()
			}
			codec, r.err = NewCodec(msg.options)
		case msgAppend:
			if codec == nil {
				r.err = ErrSchedulerClosed
				break
			}
			r.data, r.err = codec.Append(ctx, msg.data)
		case msgFlush:
			if codec == nil {
				r.err = ErrSchedulerClosed
				break
			}
			r.result, r.err = codec.Flush(ctx)
			codec = nil
		case msgAbort:
			if codec != nil {
				codec.Abort()
				codec = nil
			}
		}
		s.dispatch(r)
	}
	if codec != nil {
		codec.Abort()
	}
}

// workerCodec is the caller-side proxy of a codec living in a worker.
type workerCodec struct {
	s    *CodecScheduler
	w    *worker
	once sync.Once
}

func (c *workerCodec) Append(ctx context.Context, p []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		c.release(true)
		return nil, err
	}
	r, err := c.s.call(ctx, c.w, message{kind: msgAppend, data: p})
	if err != nil {
		c.release(true)
		return nil, err
	}
	return r.data, nil
}

func (c *workerCodec) Flush(ctx context.Context) (CodecResult, error) {
	r, err := c.s.call(ctx, c.w, message{kind: msgFlush})
	if err != nil {
		c.release(true)
		return CodecResult{}, err
	}
	c.release(false)
	return r.result, nil
}

func (c *workerCodec) Abort() { c.release(true) }

func (c *workerCodec) release(abort bool) {
	c.once.Do(func() {
		if abort {
			c.s.post(c.w, message{kind: msgAbort})
		}
		c.s.releaseSlot(c.w)
	})
}

// directCodec holds an admission slot for a codec running in the caller's goroutine.
type directCodec struct {
	Codec
	s    *CodecScheduler
	once sync.Once
}

func (c *directCodec) Append(ctx context.Context, p []byte) ([]byte, error) {
	out, err := c.Codec.Append(ctx, p)
	if err != nil {
		c.Abort()
	}
	return out, err
}

func (c *directCodec) Flush(ctx context.Context) (CodecResult, error) {
	res, err := c.Codec.Flush(ctx)
	c.once.Do(func() { c.s.releaseSlot(nil) })
	return res, err
}

func (c *directCodec) Abort() {
	c.once.Do(func() {
		c.Codec.Abort()
		c.s.releaseSlot(nil)
	})
}

package canvas

import (
	"context"
	"log"
	"sync"
	"time"
)

const DefaultFlushDelay = 120 * time.Millisecond

type FlushState int

const (
	StateIdle FlushState = iota
	StateArmed
	StateFlushing
)

func (s FlushState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateFlushing:
		return "flushing"
	}
	return "unknown"
}

// ScheduleFunc runs fn once after delay. stop reports whether it prevented
// fn from running.
type ScheduleFunc func(delay time.Duration, fn func()) (stop func() bool)

func AfterFunc(delay time.Duration, fn func()) func() bool {
	return time.AfterFunc(delay, fn).Stop
}

type WriteFunc func(ctx context.Context, batch Changes) error

type Stats struct {
	Flushes        int
	DroppedFlushes int
	CellsWritten   int
}

// Flusher coalesces changes into one write per delay window.
//
//	Idle     --Add-->   Armed
//	Armed    --timer--> Flushing
//	Flushing --done-->  Idle, or Armed when changes arrived during the write
//
// While held, changes queue up but no timer is armed. Write failures are
// counted and logged, never returned.
type Flusher struct {
	ctx      context.Context
	delay    time.Duration
	schedule ScheduleFunc
	write    WriteFunc

	mu       sync.Mutex
	idle     *sync.Cond // broadcast when a write returns
	state    FlushState
	pending  Changes
	inflight Changes
	stop     func() bool
	held     bool
	closed   bool
	stats    Stats
}

func NewFlusher(ctx context.Context, delay time.Duration, schedule ScheduleFunc, write WriteFunc) *Flusher {
	if schedule == nil {
		schedule = AfterFunc
	}
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	f := &Flusher{
		ctx:      ctx,
		delay:    delay,
		schedule: schedule,
		write:    write,
	}
	f.idle = sync.NewCond(&f.mu)
	return f
}

func (f *Flusher) Add(changes Changes) {
	if len(changes) == 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pending == nil {
		f.pending = make(Changes, len(changes))
	}
	f.pending.merge(changes)
	if f.state == StateIdle && !f.closed && !f.held {
		f.armLocked()
	}
}

func (f *Flusher) armLocked() {
	f.state = StateArmed
	f.stop = f.schedule(f.delay, f.fire)
}

func (f *Flusher) fire() {
	f.mu.Lock()
	if f.state != StateArmed {
		f.mu.Unlock()
		return
	}
	f.stop = nil
	f.flushLocked()
}

// flushLocked is entered with f.mu held and returns with it released.
func (f *Flusher) flushLocked() {
	for {
		batch := f.pending
		f.pending = nil
		if len(batch) == 0 {
			f.state = StateIdle
			f.mu.Unlock()
			return
		}
		f.state = StateFlushing
		f.inflight = batch
		f.mu.Unlock()

		err := f.write(f.ctx, batch)

		f.mu.Lock()
		f.inflight = nil
		f.idle.Broadcast()
		f.stats.Flushes++
		if err != nil {
			f.stats.DroppedFlushes++
			log.Printf("Failed to flush canvas batch of %d cells: %v", len(batch), err)
		} else {
			f.stats.CellsWritten += len(batch)
		}

		if len(f.pending) == 0 || (f.held && !f.closed) {
			f.state = StateIdle
			f.mu.Unlock()
			return
		}
		if !f.closed {
			f.armLocked()
			f.mu.Unlock()
			return
		}
		// Closed flushers drain without waiting for a timer
	}
}

// Flush writes pending changes now if a flush is armed.
func (f *Flusher) Flush() {
	f.mu.Lock()
	if f.state != StateArmed {
		f.mu.Unlock()
		return
	}
	if f.stop != nil && !f.stop() {
		// Timer already fired and fire is waiting for the lock
		f.mu.Unlock()
		return
	}
	f.stop = nil
	f.flushLocked()
}

// Hold discards pending changes and waits for an in-flight write to return.
// Changes added afterwards stay queued until Resume.
func (f *Flusher) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.held = true
	f.pending = nil
	if f.state == StateArmed {
		// A timer that already fired finds the flusher idle and returns
		if f.stop != nil {
			f.stop()
		}
		f.stop = nil
		f.state = StateIdle
	}
	for f.state == StateFlushing {
		f.idle.Wait()
	}
}

// Resume arms a flush for changes queued while the flusher was held.
func (f *Flusher) Resume() {
	f.mu.Lock()
	f.held = false
	if f.state != StateIdle || len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	if f.closed {
		f.flushLocked()
		return
	}
	f.armLocked()
	f.mu.Unlock()
}

func (f *Flusher) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.Flush()
}

// Overlay returns the in-flight and pending changes, pending taking precedence.
func (f *Flusher) Overlay() Changes {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(Changes, len(f.inflight)+len(f.pending))
	out.merge(f.inflight)
	out.merge(f.pending)
	return out
}

func (f *Flusher) State() FlushState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flusher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Package dispatch bounds the number of concurrently served connections,
// generalizing the original's mp.thread/mp.fork process() functions (which
// gated a thread pool or a fork() per connection behind a counting
// semaphore) onto Go's single concurrency primitive: a goroutine per
// connection, gated the same way. Go has no fork(), so both the "thread"
// and "fork" config modes run this identical dispatcher; mp=fork is kept
// as a recognized, accepted config value for compatibility (see
// DESIGN.md) rather than spawning an OS process per session.
package dispatch

import (
	"context"
	"net"

	"golang.org/x/sync/semaphore"

	"github.com/vsemionov/wordbase/internal/wordlog"
)

// Task is one session's entry point, run in its own goroutine.
type Task func(ctx context.Context, conn net.Conn)

// Dispatcher runs at most maxClients Tasks concurrently, blocking Dispatch
// callers (the accept loop) once the limit is reached — mirroring
// guard_sem in mp/thread.py, including its warning log on overload.
type Dispatcher struct {
	sem    *semaphore.Weighted
	logger *wordlog.Logger
}

// New returns a Dispatcher admitting at most maxClients concurrent Tasks.
// maxClients <= 0 is treated as 1.
func New(maxClients int, logger *wordlog.Logger) *Dispatcher {
	if maxClients <= 0 {
		maxClients = 1
	}
	return &Dispatcher{sem: semaphore.NewWeighted(int64(maxClients)), logger: logger}
}

// Dispatch admits one connection, blocking until a slot is free, then runs
// task in a new goroutine and returns once that goroutine has started —
// mirroring process()'s start_evt handshake, so the accept loop serializes
// on task startup rather than task completion.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task, conn net.Conn) {
	if !d.sem.TryAcquire(1) {
		d.logger.Warnf("max-clients limit exceeded; waiting for a session to terminate")
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Errorf("dispatch: %v", err)
			conn.Close()
			return
		}
	}
	d.sem.Release(1)

	started := make(chan struct{})
	go func() {
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			close(started)
			conn.Close()
			return
		}
		close(started)
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Errorf("unhandled panic: %v", r)
			}
			d.logger.Debugf("session exiting")
		}()

		d.logger.Debugf("session started")
		task(ctx, conn)
	}()
	<-started
}

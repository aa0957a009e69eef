// Package sched provides cancellable one-shot and repeating tasks.
//
// A [Task] returned by [After] or [Every] can be stopped at any time. For a
// repeating task, Stop waits for an in-flight invocation to return, so no
// callback runs after Stop returns.
package sched

import (
	"sync"
	"time"
)

// Task is a handle to a scheduled callback.
type Task struct {
	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
	timer    *time.Timer
}

// After runs fn once after d unless the task is stopped first.
func After(d time.Duration, fn func()) *Task {
	t := &Task{done: make(chan struct{})}
	t.wg.Add(1)
	t.timer = time.AfterFunc(d, func() {
		defer t.wg.Done()
		select {
		case <-t.done:
			return
		default:
		}
		fn()
	})
	return t
}

// Every runs fn every d until the task is stopped. fn receives the time
// elapsed since the task was started.
func Every(d time.Duration, fn func(elapsed time.Duration)) *Task {
	t := &Task{done: make(chan struct{})}
	start := time.Now()
	ticker := time.NewTicker(d)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				select {
				case <-t.done:
					return
				default:
				}
				fn(time.Since(start))
			}
		}
	}()
	return t
}

// Stop cancels the task. It is safe to call more than once and on a nil
// task. For a repeating task Stop blocks until its goroutine has exited; a
// one-shot callback that already started is not waited for.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.stopOnce.Do(func() {
		close(t.done)
		if t.timer != nil {
			if t.timer.Stop() {
				t.wg.Done()
			}
			return
		}
		t.wg.Wait()
	})
}

// Stopped reports whether Stop has been called.
func (t *Task) Stopped() bool {
	if t == nil {
		return true
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

package driftsync

import (
	"sync"
	"time"
)

// syncScheduler runs a callback at a fixed interval on a background
// goroutine. It can be stopped and restarted; Stop waits for the loop to
// exit but never interrupts a callback already running.
type syncScheduler struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func newSyncScheduler(interval time.Duration, fn func()) *syncScheduler {
	return &syncScheduler{interval: interval, fn: fn}
}

// Start launches the periodic loop. Starting a running scheduler is a
// no-op.
func (s *syncScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.fn()
			}
		}
	}()
}

// Stop halts the loop and waits for it to exit. A callback already in
// flight runs to completion. Stopping a stopped scheduler is a no-op.
func (s *syncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether the periodic loop is active.
func (s *syncScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

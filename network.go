package driftsync

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Prober checks remote reachability. Probe returns nil when the remote
// endpoint is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes an HTTP health endpoint.
type HTTPProber struct {
	// URL is the health endpoint to hit.
	URL string

	// Client is the HTTP client to use. Defaults to a 10s-timeout client.
	Client *http.Client
}

// Probe issues a GET against the configured URL.
func (p *HTTPProber) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("health probe: status %d", resp.StatusCode)
	}
	return nil
}

// NetworkMonitor tracks connectivity and notifies listeners on
// transitions. State can be driven externally via SetOnline, for hosts
// that surface their own connectivity events, or by a periodic Prober.
// A new monitor starts online.
type NetworkMonitor struct {
	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
	running   bool
	stopCh    chan struct{}

	prober   Prober
	interval time.Duration
	wg       sync.WaitGroup
}

// NewNetworkMonitor creates a monitor. prober may be nil, in which case
// connectivity changes only via SetOnline.
func NewNetworkMonitor(prober Prober, interval time.Duration) *NetworkMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &NetworkMonitor{prober: prober, interval: interval}
	m.online.Store(true)
	return m
}

// Online reports current connectivity.
func (m *NetworkMonitor) Online() bool {
	return m.online.Load()
}

// OnChange registers a listener invoked on every online/offline
// transition.
func (m *NetworkMonitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOnline records connectivity and notifies listeners if it changed.
func (m *NetworkMonitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}

	m.mu.Lock()
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(online)
	}
}

// Start begins periodic probing. Starting without a prober or while
// already running is a no-op.
func (m *NetworkMonitor) Start() {
	if m.prober == nil {
		return
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				m.probeOnce()
			}
		}
	}()
}

func (m *NetworkMonitor) probeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.SetOnline(m.prober.Probe(ctx) == nil)
}

// Stop halts periodic probing.
func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

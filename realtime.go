package driftsync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FeedConfig configures the realtime change feed.
type FeedConfig struct {
	// Enabled turns on the WebSocket change feed
	Enabled bool `json:"enabled"`
	// URL is the WebSocket endpoint, e.g. "wss://api.example.com/api/v1/changes"
	URL string `json:"url"`
	// AuthToken is sent as a bearer token during the handshake
	AuthToken string `json:"auth_token"`
	// ReconnectInitial is the initial reconnect backoff
	ReconnectInitial time.Duration `json:"reconnect_initial"`
	// ReconnectMax caps the reconnect backoff
	ReconnectMax time.Duration `json:"reconnect_max"`
	// HandshakeTimeout bounds the WebSocket dial
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Enabled:          false,
		ReconnectInitial: time.Second,
		ReconnectMax:     time.Minute,
		HandshakeTimeout: 10 * time.Second,
	}
}

// ErrFeedDisabled is returned when starting a disabled change feed.
var ErrFeedDisabled = errors.New("change feed is disabled")

// feedMessage is the JSON format for change feed frames.
type feedMessage struct {
	Type       string     `json:"type"`
	UserID     string     `json:"user_id,omitempty"`
	EntityType EntityType `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ChangeHandler is invoked for every remote change notification.
type ChangeHandler func(entityType EntityType, entityID string)

// ChangeFeed maintains a WebSocket connection to the backend's change
// stream. Remote change hints let the manager schedule a download pass
// instead of waiting for the periodic timer, and connection state
// drives the network monitor.
type ChangeFeed struct {
	config  FeedConfig
	userID  string
	monitor *NetworkMonitor
	handler ChangeHandler
	dialer  *websocket.Dialer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewChangeFeed creates a change feed for the given user session.
// The monitor may be nil when connection state should not influence
// sync scheduling.
func NewChangeFeed(cfg FeedConfig, userID string, monitor *NetworkMonitor, handler ChangeHandler) *ChangeFeed {
	if cfg.ReconnectInitial <= 0 {
		cfg.ReconnectInitial = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = time.Minute
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	return &ChangeFeed{
		config:  cfg,
		userID:  userID,
		monitor: monitor,
		handler: handler,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Start connects the feed and keeps it connected until Stop.
func (f *ChangeFeed) Start(ctx context.Context) error {
	if !f.config.Enabled {
		return ErrFeedDisabled
	}
	if f.config.URL == "" {
		return errors.New("change feed URL not configured")
	}

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.wg.Add(1)
	go f.run(ctx)
	return nil
}

// Stop disconnects the feed and waits for the connection loop to exit.
func (f *ChangeFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	f.mu.Unlock()

	cancel()
	f.wg.Wait()
}

// Running reports whether the feed loop is active.
func (f *ChangeFeed) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *ChangeFeed) run(ctx context.Context) {
	defer f.wg.Done()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		if f.monitor != nil {
			f.monitor.SetOnline(false)
		}

		attempt++
		backoff := computeBackoff(attempt, f.config.ReconnectInitial, f.config.ReconnectMax, 2.0)
		slog.Warn("change feed disconnected", "err", err, "reconnect_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// connectAndRead dials the feed, subscribes and consumes frames until
// the connection breaks or the context is cancelled.
func (f *ChangeFeed) connectAndRead(ctx context.Context) error {
	header := http.Header{}
	if f.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+f.config.AuthToken)
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.config.URL, header)
	if err != nil {
		if resp != nil {
			return errors.New("dial failed: " + resp.Status)
		}
		return err
	}
	defer func() { _ = conn.Close() }()

	sub, _ := json.Marshal(feedMessage{Type: "subscribe", UserID: f.userID})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return err
	}

	if f.monitor != nil {
		f.monitor.SetOnline(true)
	}
	slog.Info("change feed connected", "url", f.config.URL)

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("change feed message malformed", "err", err)
			continue
		}

		switch msg.Type {
		case "change":
			if f.handler != nil && msg.EntityType.Valid() {
				f.handler(msg.EntityType, msg.EntityID)
			}
		case "subscribed", "ping":
			// Keepalive and acks need no action
		case "error":
			slog.Warn("change feed server error", "err", msg.Error)
		default:
			slog.Debug("change feed ignoring frame", "type", msg.Type)
		}
	}
}

package driftsync

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Repository is the remote persistence boundary. The sync manager
// pushes local changes through it and pulls the remote state during
// download reconciliation.
//
// FetchProfile returns ErrNotFound (possibly wrapped) when the user
// has no remote profile yet.
type Repository interface {
	// SaveConversation uploads a conversation.
	SaveConversation(ctx context.Context, c *Conversation) error

	// FetchConversations returns the user's remote conversations,
	// newest first, at most limit entries (0 means server default).
	FetchConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error)

	// SaveProfile uploads a profile.
	SaveProfile(ctx context.Context, p *Profile) error

	// FetchProfile returns the user's remote profile.
	FetchProfile(ctx context.Context, userID string) (*Profile, error)

	// SaveFeedback uploads a feedback record. Feedback is write-only;
	// there is no corresponding fetch.
	SaveFeedback(ctx context.Context, f *Feedback) error
}

// HTTPDoer abstracts the HTTP client for testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPRepositoryConfig configures the HTTP repository client.
type HTTPRepositoryConfig struct {
	// BaseURL of the backend, e.g. "https://api.example.com"
	BaseURL string `json:"base_url"`

	// AuthToken is sent as a bearer token when set
	AuthToken string `json:"auth_token"`

	// APIKey is sent in the X-API-Key header when set
	APIKey string `json:"api_key"`

	// EnableCompression enables gzip compression of request bodies
	EnableCompression bool `json:"enable_compression"`

	// RequestTimeout bounds a single request attempt
	RequestTimeout time.Duration `json:"request_timeout"`

	// MaxRetries per request (including the first attempt)
	MaxRetries int `json:"max_retries"`

	// RetryInterval caps the backoff between attempts
	RetryInterval time.Duration `json:"retry_interval"`

	// HTTPClient for custom HTTP client
	HTTPClient HTTPDoer `json:"-"`
}

// HTTPRepository talks JSON over HTTP to the application backend.
// Transient failures are retried with backoff and a circuit breaker
// sheds requests while the backend stays unreachable.
type HTTPRepository struct {
	config  HTTPRepositoryConfig
	client  HTTPDoer
	retryer *Retryer
	cb      *CircuitBreaker
}

// NewHTTPRepository creates a repository client for the given backend.
func NewHTTPRepository(config HTTPRepositoryConfig) (*HTTPRepository, error) {
	if config.BaseURL == "" {
		return nil, errors.New("repository base URL not configured")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 30 * time.Second
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.RequestTimeout}
	}

	return &HTTPRepository{
		config: config,
		client: client,
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       config.MaxRetries,
			InitialBackoff:    time.Second,
			MaxBackoff:        config.RetryInterval,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
			RetryIf:           IsRetryable,
		}),
		cb: NewCircuitBreaker(5, 60*time.Second),
	}, nil
}

// SaveConversation uploads a conversation.
func (r *HTTPRepository) SaveConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.ID == "" {
		return errors.New("conversation has no id")
	}
	path := fmt.Sprintf("/api/v1/users/%s/conversations/%s",
		url.PathEscape(c.UserID), url.PathEscape(c.ID))
	return r.doRequest(ctx, http.MethodPut, path, c, nil)
}

// FetchConversations returns the user's remote conversations.
func (r *HTTPRepository) FetchConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	path := fmt.Sprintf("/api/v1/users/%s/conversations", url.PathEscape(userID))
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var out []*Conversation
	if err := r.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveProfile uploads a profile.
func (r *HTTPRepository) SaveProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile has no user id")
	}
	path := fmt.Sprintf("/api/v1/users/%s/profile", url.PathEscape(p.UserID))
	return r.doRequest(ctx, http.MethodPut, path, p, nil)
}

// FetchProfile returns the user's remote profile.
func (r *HTTPRepository) FetchProfile(ctx context.Context, userID string) (*Profile, error) {
	path := fmt.Sprintf("/api/v1/users/%s/profile", url.PathEscape(userID))

	var out Profile
	if err := r.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveFeedback uploads a feedback record.
func (r *HTTPRepository) SaveFeedback(ctx context.Context, f *Feedback) error {
	if f == nil || f.UserID == "" {
		return errors.New("feedback has no user id")
	}
	path := fmt.Sprintf("/api/v1/users/%s/feedback", url.PathEscape(f.UserID))
	return r.doRequest(ctx, http.MethodPost, path, f, nil)
}

// CircuitState reports the transport circuit breaker state.
func (r *HTTPRepository) CircuitState() string {
	return r.cb.State()
}

func (r *HTTPRepository) doRequest(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		if r.config.EnableCompression {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			if _, err := gz.Write(data); err != nil {
				gz.Close()
				return err
			}
			gz.Close()
			data = buf.Bytes()
		}
		payload = data
	}

	var respBody []byte

	err := r.cb.Execute(func() error {
		// Build a fresh request per attempt so the body can be re-read.
		res := r.retryer.Do(ctx, func() error {
			var bodyReader io.Reader
			if payload != nil {
				bodyReader = bytes.NewReader(payload)
			}

			req, err := http.NewRequestWithContext(ctx, method, r.config.BaseURL+path, bodyReader)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
				if r.config.EnableCompression {
					req.Header.Set("Content-Encoding", "gzip")
				}
			}
			if r.config.AuthToken != "" {
				req.Header.Set("Authorization", "Bearer "+r.config.AuthToken)
			}
			if r.config.APIKey != "" {
				req.Header.Set("X-API-Key", r.config.APIKey)
			}

			resp, err := r.client.Do(req)
			if err != nil {
				return fmt.Errorf("send request: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
			}
			if resp.StatusCode >= 500 {
				return fmt.Errorf("server error: status %d", resp.StatusCode)
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				return errors.New("rate limited")
			}
			if resp.StatusCode >= 400 {
				msg, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("client error %d: %s", resp.StatusCode, string(msg))
			}

			respBody, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			return nil
		})
		return res.LastErr
	})
	if err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

package driftsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3RepositoryConfig configures the S3 document repository.
type S3RepositoryConfig struct {
	Bucket   string
	Region   string
	Endpoint string // For S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer using IAM roles, instance profiles,
	// or environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY) instead
	// of setting these directly. DO NOT commit credentials to source control.
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string                 // Key prefix for all objects
	UsePathStyle    bool   // Use path-style addressing
	CacheSize       int            // Number of documents to cache (default: 100)

	// Retry configuration
	MaxRetries int // Max retry attempts for S3 operations (default: 3)
}

// S3Repository implements Repository on S3 or S3-compatible storage.
// Documents are laid out as
//
//	users/{userID}/conversations/{conversationID}.json
//	users/{userID}/profile.json
//
// Conversation bodies are cached per ETag, so a download pass only
// transfers documents that actually changed remotely.
type S3Repository struct {
	client  *s3.Client
	config  S3RepositoryConfig
	cache   *LRUCache
	retryer *Retryer
}

// LRUCache is a simple LRU cache for document bodies keyed by object
// key, validated against the object's ETag.
type LRUCache struct {
	capacity int
	items    map[string]*cacheItem
	order    []string
	mu       sync.Mutex
}

type cacheItem struct {
	data []byte
	etag string
}

// NewLRUCache creates a new LRU cache.
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		items:    make(map[string]*cacheItem),
	}
}

// Get retrieves an item from the cache when its ETag still matches.
func (c *LRUCache) Get(key, etag string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok || item.etag != etag {
		return nil, false
	}

	// Move to end (most recently used)
	c.moveToEnd(key)
	return item.data, true
}

// Put adds an item to the cache.
func (c *LRUCache) Put(key string, data []byte, etag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		c.items[key].data = data
		c.items[key].etag = etag
		c.moveToEnd(key)
		return
	}

	// Evict if at capacity
	for len(c.items) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}

	c.items[key] = &cacheItem{data: data, etag: etag}
	c.order = append(c.order, key)
}

// Delete removes an item from the cache.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached items.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			break
		}
	}
}

// NewS3Repository creates a new S3-backed repository.
func NewS3Repository(cfg S3RepositoryConfig) (*S3Repository, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	// Build AWS config options
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Build S3 client options
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return &S3Repository{
		client: client,
		config: cfg,
		cache:  NewLRUCache(cfg.CacheSize),
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
			RetryIf:           IsRetryable,
		}),
	}, nil
}

func (s *S3Repository) conversationKey(userID, conversationID string) string {
	return fmt.Sprintf("%susers/%s/conversations/%s.json", s.config.Prefix, userID, conversationID)
}

func (s *S3Repository) profileKey(userID string) string {
	return fmt.Sprintf("%susers/%s/profile.json", s.config.Prefix, userID)
}

func (s *S3Repository) feedbackKey(userID, feedbackID string) string {
	return fmt.Sprintf("%susers/%s/feedback/%s.json", s.config.Prefix, userID, feedbackID)
}

// SaveConversation uploads a conversation document.
func (s *S3Repository) SaveConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.ID == "" {
		return errors.New("conversation has no id")
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	key := s.conversationKey(c.UserID, c.ID)

	var etag string
	result := s.retryer.Do(ctx, func() error {
		resp, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("S3 put object failed: %w", err)
		}
		etag = aws.ToString(resp.ETag)
		return nil
	})
	if result.LastErr != nil {
		return result.LastErr
	}

	s.cache.Put(key, data, etag)
	return nil
}

// FetchConversations lists and reads the user's conversation
// documents, newest first by last activity.
func (s *S3Repository) FetchConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	prefix := fmt.Sprintf("%susers/%s/conversations/", s.config.Prefix, userID)

	type listed struct {
		key  string
		etag string
	}
	var objects []listed

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, listed{
				key:  aws.ToString(obj.Key),
				etag: aws.ToString(obj.ETag),
			})
		}
	}

	out := make([]*Conversation, 0, len(objects))
	for _, obj := range objects {
		data, err := s.readObject(ctx, obj.key, obj.etag)
		if err != nil {
			return nil, err
		}
		var c Conversation
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", obj.key, err)
		}
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// SaveProfile uploads a profile document.
func (s *S3Repository) SaveProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.UserID == "" {
		return errors.New("profile has no user id")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	result := s.retryer.Do(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(s.profileKey(p.UserID)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("S3 put object failed: %w", err)
		}
		return nil
	})
	return result.LastErr
}

// SaveFeedback uploads a feedback document. Feedback is write-only, so
// the object is never cached.
func (s *S3Repository) SaveFeedback(ctx context.Context, f *Feedback) error {
	if f == nil || f.ID == "" {
		return errors.New("feedback has no id")
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	result := s.retryer.Do(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(s.feedbackKey(f.UserID, f.ID)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("S3 put object failed: %w", err)
		}
		return nil
	})
	return result.LastErr
}

// FetchProfile reads the user's profile document. The profile is read
// uncached so a download pass always sees the latest remote copy.
func (s *S3Repository) FetchProfile(ctx context.Context, userID string) (*Profile, error) {
	key := s.profileKey(userID)

	val, result := s.retryer.DoWithResult(ctx, func() (any, error) {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer func() { _ = resp.Body.Close() }()

		d, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("S3 read body failed: %w", err)
		}
		return d, nil
	})
	if result.LastErr != nil {
		if isS3NotFound(result.LastErr) {
			return nil, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("S3 get object failed: %w", result.LastErr)
	}

	var p Profile
	if err := json.Unmarshal(val.([]byte), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// readObject fetches an object body, serving it from the cache when
// the listed ETag matches a previous read.
func (s *S3Repository) readObject(ctx context.Context, key, etag string) ([]byte, error) {
	if data, ok := s.cache.Get(key, etag); ok {
		return data, nil
	}

	val, result := s.retryer.DoWithResult(ctx, func() (any, error) {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("S3 get object failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		d, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("S3 read body failed: %w", err)
		}
		return d, nil
	})
	if result.LastErr != nil {
		return nil, result.LastErr
	}

	data := val.([]byte)
	s.cache.Put(key, data, etag)
	return data, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	return strings.Contains(err.Error(), "NoSuchKey") ||
		strings.Contains(err.Error(), "NotFound") ||
		strings.Contains(err.Error(), "404")
}

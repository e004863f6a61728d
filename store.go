package driftsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when an entity does not exist in a store or
// in the remote repository.
var ErrNotFound = errors.New("not found")

// localSchemaVersion is the current on-disk envelope version. Stores
// refuse envelopes written by a newer library version.
const localSchemaVersion = 1

// LocalConversation is the persisted envelope for a conversation. The
// envelope carries schema metadata so stored payloads can be validated
// and migrated independently of the canonical entity shape.
type LocalConversation struct {
	SchemaVersion int           `json:"schema_version"`
	StoredAt      time.Time     `json:"stored_at"`
	Conversation  *Conversation `json:"conversation"`
}

// Validate checks the envelope before it crosses the store boundary.
func (lc *LocalConversation) Validate() error {
	if lc.SchemaVersion <= 0 || lc.SchemaVersion > localSchemaVersion {
		return fmt.Errorf("unsupported conversation schema version %d", lc.SchemaVersion)
	}
	if lc.Conversation == nil {
		return errors.New("conversation envelope has no payload")
	}
	if lc.Conversation.ID == "" {
		return errors.New("conversation has no id")
	}
	return nil
}

// LocalProfile is the persisted envelope for a user profile.
type LocalProfile struct {
	SchemaVersion int       `json:"schema_version"`
	StoredAt      time.Time `json:"stored_at"`
	Profile       *Profile  `json:"profile"`
}

// Validate checks the envelope before it crosses the store boundary.
func (lp *LocalProfile) Validate() error {
	if lp.SchemaVersion <= 0 || lp.SchemaVersion > localSchemaVersion {
		return fmt.Errorf("unsupported profile schema version %d", lp.SchemaVersion)
	}
	if lp.Profile == nil {
		return errors.New("profile envelope has no payload")
	}
	if lp.Profile.UserID == "" {
		return errors.New("profile has no user id")
	}
	if !lp.Profile.Type.Valid() {
		return fmt.Errorf("unknown profile type %q", lp.Profile.Type)
	}
	return nil
}

func wrapConversation(c *Conversation) *LocalConversation {
	return &LocalConversation{
		SchemaVersion: localSchemaVersion,
		StoredAt:      time.Now().UTC(),
		Conversation:  c,
	}
}

func wrapProfile(p *Profile) *LocalProfile {
	return &LocalProfile{
		SchemaVersion: localSchemaVersion,
		StoredAt:      time.Now().UTC(),
		Profile:       p,
	}
}

// encodeEnvelope serializes an envelope to JSON, encrypting when an
// encryptor is configured.
func encodeEnvelope(enc *Encryptor, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if enc != nil {
		return enc.Encrypt(data)
	}
	return data, nil
}

// decodeEnvelope is the inverse of encodeEnvelope.
func decodeEnvelope(enc *Encryptor, data []byte, v any) error {
	if enc != nil {
		plain, err := enc.Decrypt(data)
		if err != nil {
			return fmt.Errorf("failed to decrypt envelope: %w", err)
		}
		data = plain
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return nil
}

// LocalStore is the device-side persistence consumed by the sync
// manager. A store holds the data of a single user session: one
// profile and that user's conversations.
//
// Implementations must return ErrNotFound (possibly wrapped) when the
// requested entity does not exist.
type LocalStore interface {
	// Conversation returns the stored conversation with the given id.
	Conversation(ctx context.Context, id string) (*Conversation, error)

	// SaveConversation stores or replaces a conversation.
	SaveConversation(ctx context.Context, c *Conversation) error

	// Profile returns the stored profile for the session user.
	Profile(ctx context.Context) (*Profile, error)

	// SaveProfile stores or replaces the session user's profile.
	SaveProfile(ctx context.Context, p *Profile) error

	// Close releases store resources. Safe to call more than once.
	Close() error
}

// MemoryStore is an in-memory LocalStore for tests and ephemeral
// sessions. It is safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	profile       *Profile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
	}
}

// Conversation returns the stored conversation with the given id.
func (m *MemoryStore) Conversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c.Clone(), nil
}

// SaveConversation stores or replaces a conversation.
func (m *MemoryStore) SaveConversation(ctx context.Context, c *Conversation) error {
	env := wrapConversation(c)
	if err := env.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = c.Clone()
	return nil
}

// Profile returns the stored profile for the session user.
func (m *MemoryStore) Profile(ctx context.Context) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.profile == nil {
		return nil, fmt.Errorf("profile: %w", ErrNotFound)
	}
	return m.profile.Clone(), nil
}

// SaveProfile stores or replaces the session user's profile.
func (m *MemoryStore) SaveProfile(ctx context.Context, p *Profile) error {
	env := wrapProfile(p)
	if err := env.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = p.Clone()
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored conversations.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

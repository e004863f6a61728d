package driftsync

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	// BoltStore bucket names
	bucketConversations = []byte("conversations")
	bucketProfile       = []byte("profile")
	bucketMeta          = []byte("meta")

	keyProfile = []byte("profile")
	keySalt    = []byte("encryption_salt")
)

// BoltStore is a LocalStore backed by a bbolt database file. It is
// suited to desktop and CLI clients that need durable offline state
// in a single file.
type BoltStore struct {
	db  *bbolt.DB
	enc *Encryptor
}

// NewBoltStore opens (or creates) a bolt database at path. When
// encryption is enabled the key-derivation salt is kept in the meta
// bucket so reopening with the same password yields the same key.
func NewBoltStore(path string, enc EncryptionConfig) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	s := &BoltStore{db: db}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	encryptor, err := s.setupEncryption(enc)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.enc = encryptor

	return s, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketProfile, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *BoltStore) setupEncryption(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if len(cfg.Key) > 0 {
		return NewEncryptorWithKey(cfg.Key)
	}

	// Password path: reuse the stored salt if this store was opened before.
	var salt []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keySalt); v != nil {
			salt = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if salt != nil {
		return NewEncryptorWithSalt(cfg.KeyPassword, salt)
	}

	encryptor, err := NewEncryptor(cfg)
	if err != nil {
		return nil, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySalt, encryptor.Salt())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist encryption salt: %w", err)
	}
	return encryptor, nil
}

// Conversation returns the stored conversation with the given id.
func (s *BoltStore) Conversation(ctx context.Context, id string) (*Conversation, error) {
	var env LocalConversation

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketConversations).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return decodeEnvelope(s.enc, data, &env)
	})
	if err != nil {
		return nil, err
	}

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return env.Conversation, nil
}

// SaveConversation stores or replaces a conversation.
func (s *BoltStore) SaveConversation(ctx context.Context, c *Conversation) error {
	env := wrapConversation(c)
	if err := env.Validate(); err != nil {
		return err
	}

	data, err := encodeEnvelope(s.enc, env)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketConversations).Put([]byte(c.ID), data); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		return nil
	})
}

// Conversations returns all stored conversations. Useful for seeding
// the upload queue when a client starts with pending offline edits.
func (s *BoltStore) Conversations(ctx context.Context) ([]*Conversation, error) {
	var out []*Conversation

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var env LocalConversation
			if err := decodeEnvelope(s.enc, v, &env); err != nil {
				return err
			}
			if err := env.Validate(); err != nil {
				return fmt.Errorf("conversation %s: %w", k, err)
			}
			out = append(out, env.Conversation)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Profile returns the stored profile for the session user.
func (s *BoltStore) Profile(ctx context.Context) (*Profile, error) {
	var env LocalProfile

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProfile).Get(keyProfile)
		if data == nil {
			return fmt.Errorf("profile: %w", ErrNotFound)
		}
		return decodeEnvelope(s.enc, data, &env)
	})
	if err != nil {
		return nil, err
	}

	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return env.Profile, nil
}

// SaveProfile stores or replaces the session user's profile.
func (s *BoltStore) SaveProfile(ctx context.Context, p *Profile) error {
	env := wrapProfile(p)
	if err := env.Validate(); err != nil {
		return err
	}

	data, err := encodeEnvelope(s.enc, env)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketProfile).Put(keyProfile, data); err != nil {
			return fmt.Errorf("failed to save profile: %w", err)
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

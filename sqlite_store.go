package driftsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig configures the SQLite local store.
type SQLiteStoreConfig struct {
	// Path to the SQLite database file
	Path string

	// CacheSize is the SQLite page cache size in KB (default: 2000 = 2MB)
	CacheSize int

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// Synchronous sets the synchronous flag (OFF, NORMAL, FULL, EXTRA)
	Synchronous string

	// BusyTimeout is the timeout for acquiring locks in milliseconds
	BusyTimeout int

	// MaxConnections is the max number of database connections
	MaxConnections int
}

// DefaultSQLiteStoreConfig returns default configuration.
func DefaultSQLiteStoreConfig() SQLiteStoreConfig {
	return SQLiteStoreConfig{
		Path:           "driftsync.db",
		CacheSize:      2000,
		JournalMode:    "WAL",
		Synchronous:    "NORMAL",
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

// SQLiteStore is a LocalStore backed by SQLite. Stored envelopes stay
// inspectable with standard SQLite tools (when not encrypted), which
// helps when debugging sync state on a device.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteStoreConfig
	enc    *Encryptor
	mu     sync.RWMutex
	closed bool

	// Prepared statements for common operations
	insertConv    *sql.Stmt
	selectConv    *sql.Stmt
	listConv      *sql.Stmt
	insertProfile *sql.Stmt
	selectProfile *sql.Stmt
}

// NewSQLiteStore creates a new SQLite-based local store.
func NewSQLiteStore(config SQLiteStoreConfig, enc EncryptionConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		config.Path = "driftsync.db"
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 2000
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.Synchronous == "" {
		config.Synchronous = "NORMAL"
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5000
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 10
	}

	// Build connection string with pragmas
	dsn := fmt.Sprintf("%s?_cache_size=%d&_journal_mode=%s&_synchronous=%s&_busy_timeout=%d",
		config.Path, config.CacheSize, config.JournalMode, config.Synchronous, config.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	store := &SQLiteStore{
		db:     db,
		config: config,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := store.setupEncryption(enc)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.enc = encryptor

	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return store, nil
}

// initSchema creates the database schema.
func (s *SQLiteStore) initSchema() error {
	schema := `
		-- Conversation envelopes, one row per conversation
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);

		-- Single profile envelope for the session user
		CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);

		-- Store metadata (encryption salt, schema markers)
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStore) setupEncryption(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if len(cfg.Key) > 0 {
		return NewEncryptorWithKey(cfg.Key)
	}

	// Password path: reuse the stored salt if this store was opened before.
	var salt []byte
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'encryption_salt'`).Scan(&salt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read encryption salt: %w", err)
	}

	if len(salt) > 0 {
		return NewEncryptorWithSalt(cfg.KeyPassword, salt)
	}

	encryptor, err := NewEncryptor(cfg)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('encryption_salt', ?)`, encryptor.Salt())
	if err != nil {
		return nil, fmt.Errorf("failed to persist encryption salt: %w", err)
	}
	return encryptor, nil
}

// prepareStatements prepares common SQL statements for better performance.
func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.insertConv, err = s.db.Prepare(`
		INSERT OR REPLACE INTO conversations (id, data, updated_at)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation insert: %w", err)
	}

	s.selectConv, err = s.db.Prepare(`SELECT data FROM conversations WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation select: %w", err)
	}

	s.listConv, err = s.db.Prepare(`SELECT data FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return fmt.Errorf("failed to prepare conversation list: %w", err)
	}

	s.insertProfile, err = s.db.Prepare(`
		INSERT OR REPLACE INTO profile (id, data, updated_at)
		VALUES (1, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare profile insert: %w", err)
	}

	s.selectProfile, err = s.db.Prepare(`SELECT data FROM profile WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to prepare profile select: %w", err)
	}

	return nil
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store is closed")
	}
	return nil
}

// Conversation returns the stored conversation with the given id.
func (s *SQLiteStore) Conversation(ctx context.Context, id string) (*Conversation, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.selectConv.QueryRowContext(ctx, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	var env LocalConversation
	if err := decodeEnvelope(s.enc, data, &env); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return env.Conversation, nil
}

// SaveConversation stores or replaces a conversation.
func (s *SQLiteStore) SaveConversation(ctx context.Context, c *Conversation) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	env := wrapConversation(c)
	if err := env.Validate(); err != nil {
		return err
	}

	data, err := encodeEnvelope(s.enc, env)
	if err != nil {
		return err
	}

	_, err = s.insertConv.ExecContext(ctx, c.ID, data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// Conversations returns all stored conversations, most recently
// written first.
func (s *SQLiteStore) Conversations(ctx context.Context) ([]*Conversation, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.listConv.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		var env LocalConversation
		if err := decodeEnvelope(s.enc, data, &env); err != nil {
			return nil, err
		}
		if err := env.Validate(); err != nil {
			return nil, err
		}
		out = append(out, env.Conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return out, nil
}

// Profile returns the stored profile for the session user.
func (s *SQLiteStore) Profile(ctx context.Context) (*Profile, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.selectProfile.QueryRowContext(ctx).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var env LocalProfile
	if err := decodeEnvelope(s.enc, data, &env); err != nil {
		return nil, err
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return env.Profile, nil
}

// SaveProfile stores or replaces the session user's profile.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *Profile) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	env := wrapProfile(p)
	if err := env.Validate(); err != nil {
		return err
	}

	data, err := encodeEnvelope(s.enc, env)
	if err != nil {
		return err
	}

	_, err = s.insertProfile.ExecContext(ctx, data, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Close closes prepared statements and the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, stmt := range []*sql.Stmt{s.insertConv, s.selectConv, s.listConv, s.insertProfile, s.selectProfile} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

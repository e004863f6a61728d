package driftsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftsync/driftsync/internal/testutil"
)

func openTestSQLiteStore(t *testing.T, enc EncryptionConfig) (*SQLiteStore, SQLiteStoreConfig) {
	t.Helper()
	_, path := testutil.TempStorePath(t)
	cfg := DefaultSQLiteStoreConfig()
	cfg.Path = path
	s, err := NewSQLiteStore(cfg, enc)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return s, cfg
}

func TestSQLiteStore_ConversationRoundTrip(t *testing.T) {
	s, _ := openTestSQLiteStore(t, EncryptionConfig{})
	defer s.Close()
	ctx := context.Background()

	conv := testConv("c1", "title", time.Now(), testMsg("m1", time.Now()))
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	got, err := s.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("Conversation failed: %v", err)
	}
	if got.Title != "title" || len(got.Messages) != 1 {
		t.Errorf("unexpected conversation: %+v", got)
	}

	if _, err := s.Conversation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_ProfileRoundTrip(t *testing.T) {
	s, _ := openTestSQLiteStore(t, EncryptionConfig{})
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Profile(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty store, got %v", err)
	}

	p := testProfile(ProfileTypePatient, map[string]any{"theme": "dark"})
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	// Replacing the single profile row keeps exactly one profile.
	p.Preferences["theme"] = "light"
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("second SaveProfile failed: %v", err)
	}

	got, err := s.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if got.Preferences["theme"] != "light" {
		t.Errorf("expected replaced profile, got %v", got.Preferences["theme"])
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	s, cfg := openTestSQLiteStore(t, EncryptionConfig{})
	ctx := context.Background()

	_ = s.SaveConversation(ctx, testConv("c1", "persisted", time.Now()))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteStore(cfg, EncryptionConfig{})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("Conversation after reopen failed: %v", err)
	}
	if got.Title != "persisted" {
		t.Errorf("expected persisted title, got %q", got.Title)
	}
}

func TestSQLiteStore_ConversationsNewestFirst(t *testing.T) {
	s, _ := openTestSQLiteStore(t, EncryptionConfig{})
	defer s.Close()
	ctx := context.Background()

	_ = s.SaveConversation(ctx, testConv("old", "old", time.Now()))
	time.Sleep(5 * time.Millisecond)
	_ = s.SaveConversation(ctx, testConv("new", "new", time.Now()))

	all, err := s.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(all))
	}
	if all[0].ID != "new" {
		t.Errorf("expected most recently written first, got %s", all[0].ID)
	}
}

func TestSQLiteStore_EncryptedReopenReusesSalt(t *testing.T) {
	enc := EncryptionConfig{Enabled: true, KeyPassword: "correct horse"}
	s, cfg := openTestSQLiteStore(t, enc)
	ctx := context.Background()

	_ = s.SaveConversation(ctx, testConv("c1", "secret", time.Now()))
	_ = s.Close()

	reopened, err := NewSQLiteStore(cfg, enc)
	if err != nil {
		t.Fatalf("encrypted reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Conversation(ctx, "c1")
	if err != nil {
		t.Fatalf("Conversation after encrypted reopen failed: %v", err)
	}
	if got.Title != "secret" {
		t.Errorf("expected decrypted title, got %q", got.Title)
	}
}

func TestSQLiteStore_ClosedStoreErrors(t *testing.T) {
	s, _ := openTestSQLiteStore(t, EncryptionConfig{})
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is safe to repeat.
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err := s.Conversation(ctx, "c1"); err == nil {
		t.Error("expected error reading from a closed store")
	}
	if err := s.SaveConversation(ctx, testConv("c1", "t", time.Now())); err == nil {
		t.Error("expected error writing to a closed store")
	}
}

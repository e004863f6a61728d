package driftsync

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	key := make([]byte, EncryptionKeySize)
	for i := range key {
		key[i] = byte(i * 7)
	}
	return key
}

func TestNewEncryptor_DisabledReturnsNil(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{})
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	if enc != nil {
		t.Error("expected nil encryptor when disabled")
	}
}

func TestNewEncryptor_RequiresKeyMaterial(t *testing.T) {
	if _, err := NewEncryptor(EncryptionConfig{Enabled: true}); err == nil {
		t.Error("expected error without key or password")
	}
	if _, err := NewEncryptor(EncryptionConfig{Enabled: true, Key: []byte("short")}); err == nil {
		t.Error("expected error for undersized key")
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptorWithKey(testKey())
	if err != nil {
		t.Fatalf("NewEncryptorWithKey failed: %v", err)
	}

	plaintext := []byte("offline conversation data")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("ciphertext must differ from plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip mismatch: %q", decrypted)
	}
}

func TestEncryptor_PasswordDerivationIsSaltStable(t *testing.T) {
	first, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}
	if len(first.Salt()) != EncryptionSaltSize {
		t.Fatalf("expected %d-byte salt, got %d", EncryptionSaltSize, len(first.Salt()))
	}

	ciphertext, err := first.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Re-deriving with the same password and salt must yield the same key.
	second, err := NewEncryptorWithSalt("hunter2", first.Salt())
	if err != nil {
		t.Fatalf("NewEncryptorWithSalt failed: %v", err)
	}
	decrypted, err := second.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt with re-derived key failed: %v", err)
	}
	if string(decrypted) != "payload" {
		t.Errorf("unexpected plaintext %q", decrypted)
	}

	// A different password with the same salt must not decrypt.
	wrong, err := NewEncryptorWithSalt("letmein", first.Salt())
	if err != nil {
		t.Fatalf("NewEncryptorWithSalt failed: %v", err)
	}
	if _, err := wrong.Decrypt(ciphertext); err == nil {
		t.Error("expected decryption failure with wrong password")
	}
}

func TestNewEncryptorWithSalt_RejectsBadSalt(t *testing.T) {
	if _, err := NewEncryptorWithSalt("pw", []byte("tiny")); err == nil {
		t.Error("expected error for undersized salt")
	}
}

func TestEncryptor_TamperDetection(t *testing.T) {
	enc, _ := NewEncryptorWithKey(testKey())

	ciphertext, err := enc.Encrypt([]byte("integrity matters"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	ciphertext[len(ciphertext)-1] ^= 0xff
	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Error("expected tampered ciphertext to fail authentication")
	}
}

func TestEncryptor_DecryptRejectsShortInput(t *testing.T) {
	enc, _ := NewEncryptorWithKey(testKey())

	if _, err := enc.Decrypt([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for input shorter than the nonce")
	}
}

func TestEncryptor_NonceUniqueness(t *testing.T) {
	enc, _ := NewEncryptorWithKey(testKey())

	a, _ := enc.Encrypt([]byte("same plaintext"))
	b, _ := enc.Encrypt([]byte("same plaintext"))
	if bytes.Equal(a, b) {
		t.Error("expected distinct ciphertexts for repeated encryption")
	}
}

package cryptox

import (
	"bytes"
	"testing"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d byte key, got %d", KeySize, len(key1))
	}
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("pw"), []byte("salt"))
	plain := []byte("eyJhbGciOi.access.token")

	sealed, err := Seal(plain, key)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatalf("sealed value leaks plaintext")
	}

	got, err := Open(sealed, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("got %q want %q", got, plain)
	}
}

func TestOpen_WrongKeyFails(t *testing.T) {
	sealed, err := Seal([]byte("x"), DeriveKey([]byte("a"), []byte("salt")))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(sealed, DeriveKey([]byte("b"), []byte("salt"))); err == nil {
		t.Fatalf("expected authentication failure with wrong key")
	}
}

func TestOpen_TooShort(t *testing.T) {
	key := DeriveKey([]byte("a"), []byte("salt"))
	if _, err := Open([]byte{1, 2}, key); err != ErrCiphertextTooShort {
		t.Fatalf("expected ErrCiphertextTooShort, got %v", err)
	}
}

func TestSeal_BadKeyLength(t *testing.T) {
	if _, err := Seal([]byte("x"), []byte("short")); err == nil {
		t.Fatalf("expected error for invalid AES key size")
	}
}

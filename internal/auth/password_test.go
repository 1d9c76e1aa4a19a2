package auth

import (
	"errors"
	"strings"
	"testing"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceWithCost(4)
}

func TestHash(t *testing.T) {
	ps := newTestPasswordService()

	hash1, err := ps.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash1, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash1)
	}

	// random salt: equal inputs, different hashes
	hash2, _ := ps.Hash("same-password")
	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestHash_TooLong(t *testing.T) {
	ps := newTestPasswordService()
	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Error("Hash() should reject passwords over 72 bytes")
	}
	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("Hash() of exactly 72 bytes error = %v", err)
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, _ := ps.Hash("correct horse")

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  error
	}{
		{"correct", hash, "correct horse", nil},
		{"wrong password", hash, "battery staple", ErrPasswordMismatch},
		{"case sensitive", hash, "Correct horse", ErrPasswordMismatch},
		{"empty hash", "", "anything", ErrPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Verify() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_MalformedHash(t *testing.T) {
	ps := newTestPasswordService()
	err := ps.Verify("not-a-bcrypt-hash", "x")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() error = %v, want a non-mismatch error", err)
	}
}

package service

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(hash)
}

func TestPasswordVerifierCompare(t *testing.T) {
	v, err := NewPasswordVerifier(2, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	hash := mustHash(t, "s3cret!")

	ok, err := v.Compare(context.Background(), hash, "s3cret!")
	if err != nil || !ok {
		t.Fatalf("expected match, got %v (%v)", ok, err)
	}
	ok, err = v.Compare(context.Background(), hash, "wrong")
	if err != nil || ok {
		t.Fatalf("expected mismatch, got %v (%v)", ok, err)
	}
	ok, err = v.Compare(context.Background(), "", "s3cret!")
	if err != nil || ok {
		t.Fatalf("expected empty hash to fail, got %v (%v)", ok, err)
	}
	if err := v.CompareDecoy(context.Background(), "anything"); err != nil {
		t.Fatalf("decoy: %v", err)
	}
}

func TestPasswordVerifierCancelledContext(t *testing.T) {
	v, err := NewPasswordVerifier(1, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if err := v.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer v.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := v.Compare(ctx, mustHash(t, "pw"), "pw"); err == nil {
		t.Fatalf("expected error when no worker is free and ctx is done")
	}
}

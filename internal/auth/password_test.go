package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "secret123" {
		t.Fatal("hash must not equal the plain password")
	}
	if !h.Compare("secret123", hash) {
		t.Error("Compare should succeed for the right password")
	}
	if h.Compare("wrong-password", hash) {
		t.Error("Compare should fail for a wrong password")
	}
}

func TestPasswordHasher_CompareEmptyHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	if h.Compare("", "") || h.Compare("anything", "") {
		t.Error("Compare must fail when no password is set")
	}
}

func TestNewPasswordHasher_OutOfRangeCostFallsBack(t *testing.T) {
	for _, cost := range []int{0, -1, bcrypt.MaxCost + 1} {
		if h := NewPasswordHasher(cost); h.cost != bcrypt.DefaultCost {
			t.Errorf("cost %d -> %d, want %d", cost, h.cost, bcrypt.DefaultCost)
		}
	}
}

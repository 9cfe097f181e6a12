package pwhash

import (
	"testing"

	"github.com/cardmind/core/internal/core"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	hash, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := Verify(hash, "correct horse battery")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Error("expected the original password to verify")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	hash, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := Verify(hash, "wrong password")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Error("expected a different password to not verify")
	}
}

func TestHashProducesDistinctSaltsPerCall(t *testing.T) {
	a, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Error("expected two hashes of the same password to differ by salt")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	_, err := Hash("short")
	if core.KindOf(err) != core.ErrInvalidArgument {
		t.Errorf("expected invalid_argument for a too-short password, got %v", err)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	_, err := Verify("not a valid hash", "whatever")
	if core.KindOf(err) != core.ErrInvalidArgument {
		t.Errorf("expected invalid_argument for a malformed hash, got %v", err)
	}
}

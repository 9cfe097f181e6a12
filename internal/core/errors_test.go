package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorExitCodes(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		code int
	}{
		{ErrInvalidArgument, 10},
		{ErrNotFound, 11},
		{ErrNotMember, 12},
		{ErrNotAuthorized, 12},
		{ErrPoolNotFound, 13},
		{ErrInvalidVersion, 14},
		{ErrIO, 20},
		{ErrCache, 21},
		{ErrCRDT, 22},
		{ErrSecretStore, 23},
		{ErrAlreadyJoined, 30},
		{ErrInternal, 99},
	}
	for _, tt := range tests {
		err := NewError(tt.kind, "boom")
		if got := err.ExitCode(); got != tt.code {
			t.Errorf("kind %s: expected exit code %d, got %d", tt.kind, tt.code, got)
		}
	}
}

func TestWrapErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapError(ErrIO, "writing snapshot", cause)
	if !errors.Is(err, cause) {
		t.Error("WrapError must preserve the cause for errors.Is")
	}
	if got := err.Error(); got == "" {
		t.Error("Error() must not be empty")
	}
}

func TestKindOfUnwrapsChain(t *testing.T) {
	ce := NewError(ErrNotMember, "peer is not a member")
	wrapped := fmt.Errorf("sync failed: %w", ce)
	if KindOf(wrapped) != ErrNotMember {
		t.Errorf("KindOf should unwrap through fmt.Errorf, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("plain error")) != ErrInternal {
		t.Error("KindOf should default to ErrInternal for non-CoreError")
	}
}

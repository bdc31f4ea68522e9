package xmodem

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_CodeAndMessage(t *testing.T) {
	if ErrNoSync.Code() != CodeNoSync {
		t.Errorf("Code() = %d, want %d", ErrNoSync.Code(), CodeNoSync)
	}
	if ErrNoSync.Error() == "" {
		t.Error("Error() returned empty message")
	}
}

func TestError_IsMatchesSameCode(t *testing.T) {
	wrapped := fmt.Errorf("session failed: %w", ErrNoSync)
	if !errors.Is(wrapped, ErrNoSync) {
		t.Error("errors.Is did not match a wrapped sentinel with the same code")
	}
}

func TestError_IsRejectsDifferentCode(t *testing.T) {
	wrapped := fmt.Errorf("session failed: %w", ErrNoSync)
	if errors.Is(wrapped, ErrTooManyRetries) {
		t.Error("errors.Is matched a different error code")
	}
}

func TestError_DistinctSentinelsHaveDistinctCodes(t *testing.T) {
	sentinels := []*Error{
		ErrCancelledByRemote, ErrNoSync, ErrTooManyRetries,
		ErrTransmitError, ErrUnexpectedResponse, ErrBufferFull,
	}
	seen := map[int]bool{}
	for _, e := range sentinels {
		if seen[e.code] {
			t.Fatalf("duplicate error code %d", e.code)
		}
		seen[e.code] = true
	}
}

func TestLinkError_WrapsUnderlying(t *testing.T) {
	base := errors.New("device gone")
	wrapped := linkError(base)
	if !errors.Is(wrapped, base) {
		t.Error("linkError did not preserve the underlying error in its chain")
	}
}

func TestErrTimeout_NotAProtocolSentinel(t *testing.T) {
	if errors.Is(ErrTimeout, ErrNoSync) {
		t.Error("ErrTimeout should not match any *Error sentinel")
	}
}

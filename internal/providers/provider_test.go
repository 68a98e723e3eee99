package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"studio/internal/domain"
)

type stubProvider struct{ id string }

func (s stubProvider) ID() string { return s.id }

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(stubProvider{id: domain.ProviderGoogle}, stubProvider{id: domain.ProviderVolcengineArk})
	if p, ok := r.Get(domain.ProviderGoogle); !ok || p.ID() != domain.ProviderGoogle {
		t.Fatalf("Get google = %v, %v", p, ok)
	}
	if _, ok := r.Get("acme"); ok {
		t.Fatal("unknown provider should not resolve")
	}
	var nilRegistry *Registry
	if _, ok := nilRegistry.Get("google"); ok {
		t.Fatal("nil registry should not resolve")
	}
}

func TestPollStopsWhenDone(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), 0, 5, func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestPollTimesOut(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), time.Millisecond, 2, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Poll = %v, want ErrTimeout", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestPollHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Poll(ctx, time.Hour, 10, func(ctx context.Context) (bool, error) {
		t.Fatal("refresh should not run after cancel")
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Poll = %v, want context.Canceled", err)
	}
}

func TestPollPropagatesRefreshError(t *testing.T) {
	boom := errors.New("operation failed")
	err := Poll(context.Background(), 0, 3, func(ctx context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Poll = %v, want boom", err)
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (&NoOutputError{}).Error(); got != "No image output" {
		t.Fatalf("NoOutputError = %q", got)
	}
	got := (&NoOutputError{Detail: "block_reason=SAFETY"}).Error()
	if got != "No image output (block_reason=SAFETY)" {
		t.Fatalf("NoOutputError with detail = %q", got)
	}
	if got := (&NoOutputError{Media: "video"}).Error(); got != "No video output" {
		t.Fatalf("video NoOutputError = %q", got)
	}
	authErr := &AuthError{Provider: "google", StatusCode: 403, Message: "API key not valid"}
	if !strings.Contains(authErr.Error(), "API key not valid") || !strings.Contains(authErr.Error(), "403") {
		t.Fatalf("AuthError = %q", authErr.Error())
	}
}

package auth

import (
	"sync"
	"testing"
	"time"
)

func TestRevoke_and_IsRevoked(t *testing.T) {
	store := NewTokenRevocationStore(time.Minute)
	defer store.Close()

	jti := "token-abc-123"
	store.Revoke(jti, time.Now().Add(1*time.Hour))

	if !store.IsRevoked(jti) {
		t.Errorf("expected JTI %q to be revoked", jti)
	}
	if store.IsRevoked("unknown-jti") {
		t.Error("expected unknown JTI to not be revoked")
	}
}

func TestRevoke_EmptyJTIIgnored(t *testing.T) {
	store := NewTokenRevocationStore(time.Minute)
	defer store.Close()

	store.Revoke("", time.Now().Add(time.Hour))
	if store.Count() != 0 {
		t.Errorf("expected empty store, got %d", store.Count())
	}
}

func TestRevoke_AlreadyExpiredIgnored(t *testing.T) {
	store := NewTokenRevocationStore(time.Hour)
	defer store.Close()

	store.Revoke("stale", time.Now().Add(-time.Minute))
	if store.Count() != 0 {
		t.Errorf("expected expired token to be skipped, count = %d", store.Count())
	}
}

func TestCleanup_RemovesExpired(t *testing.T) {
	store := NewTokenRevocationStore(time.Hour)
	defer store.Close()

	now := time.Now()
	store.Revoke("short", now.Add(time.Minute))
	store.Revoke("live", now.Add(time.Hour))

	store.cleanup(now.Add(2 * time.Minute))

	if store.Count() != 1 {
		t.Errorf("expected 1 entry after sweep, got %d", store.Count())
	}
	if !store.IsRevoked("live") {
		t.Error("expected live entry to remain")
	}
}

func TestIsRevoked_StopsAtExpiry(t *testing.T) {
	store := NewTokenRevocationStore(time.Hour)
	defer store.Close()

	base := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	store.Revoke("jti-1", base.Add(time.Hour))
	if !store.IsRevoked("jti-1") {
		t.Fatal("expected jti-1 revoked")
	}

	store.now = func() time.Time { return base.Add(time.Hour) }
	if store.IsRevoked("jti-1") {
		t.Error("entry past token expiry still reported revoked")
	}
}

func TestClose_Idempotent(t *testing.T) {
	store := NewTokenRevocationStore(time.Minute)
	store.Close()
	store.Close()
}

func TestConcurrentRevoke(t *testing.T) {
	store := NewTokenRevocationStore(time.Minute)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Revoke(time.Duration(i).String(), time.Now().Add(time.Hour))
			_ = store.IsRevoked("x")
		}(i)
	}
	wg.Wait()

	if store.Count() != 50 {
		t.Errorf("expected 50 entries, got %d", store.Count())
	}
}

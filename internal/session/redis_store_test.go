package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestRevokeAndCheckToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("token should not be revoked yet")
	}

	if err := store.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}

	revoked, err = store.IsAccessTokenRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked after revoke: %v", err)
	}
	if !revoked {
		t.Fatal("token should be revoked")
	}
}

func TestRevocationExpiresWithToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if err := store.RevokeAccessToken(ctx, "jti-short", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}

	s.FastForward(2 * time.Second)

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-short")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("revocation entry should expire with the token")
	}
}

func TestRevokeAlreadyExpiredTokenIsNoop(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	if err := store.RevokeAccessToken(ctx, "jti-expired", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-expired")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("expired token should not leave a revocation entry")
	}
}

func TestRevocationIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	if err := store.RevokeAccessToken(ctx, "jti-a", expiresAt); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}

	revoked, err := store.IsAccessTokenRevoked(ctx, "jti-b")
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("unrelated token should not be revoked")
	}
}

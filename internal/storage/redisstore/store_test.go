package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

var (
	tenantA = domain.DefaultTenant()
	tenantB = domain.NewTenantIdentity("", "", "acme")
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(rdb, "test")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func newSession(handle, user string, expiresAt int64) *domain.Session {
	return &domain.Session{Handle: handle, UserID: user, ExpiresAt: expiresAt, UserDataInJWT: json.RawMessage(`{}`)}
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Kind() != Kind {
		t.Errorf("Kind() = %q, want %q", s.Kind(), Kind)
	}
	if s.prefix != DefaultKeyPrefix {
		t.Errorf("prefix = %q, want %q", s.prefix, DefaultKeyPrefix)
	}
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Error("Open without addr should fail")
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, tenantA, newSession("h1", "u1", 5000)); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CreateSession(ctx, tenantA, newSession("h1", "u1", 0)); !errors.Is(err, domain.ErrSessionConflict) {
		t.Fatalf("CreateSession(dup) error = %v, want ErrSessionConflict", err)
	}
	if !mr.Exists("test:" + tenantA.StorageKey() + ":s:h1") {
		t.Error("session key not written under the tenant prefix")
	}

	got, err := s.GetSession(ctx, tenantA, "h1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != "u1" || got.ExpiresAt != 5000 {
		t.Errorf("GetSession = %+v", got)
	}
	if _, err := s.GetSession(ctx, tenantB, "h1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("GetSession(other tenant) error = %v, want ErrSessionNotFound", err)
	}

	got.UserID = "u2"
	if err := s.UpdateSession(ctx, tenantA, got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if h, _ := s.ListSessionHandles(ctx, tenantA, "u1"); len(h) != 0 {
		t.Errorf("old user index = %v, want empty", h)
	}
	if h, _ := s.ListSessionHandles(ctx, tenantA, "u2"); len(h) != 1 {
		t.Errorf("new user index = %v, want [h1]", h)
	}
	if err := s.UpdateSession(ctx, tenantA, newSession("missing", "u1", 0)); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("UpdateSession(missing) error = %v, want ErrSessionNotFound", err)
	}

	existed, err := s.DeleteSession(ctx, tenantA, "h1")
	if err != nil || !existed {
		t.Fatalf("DeleteSession = %v, %v, want true", existed, err)
	}
	existed, err = s.DeleteSession(ctx, tenantA, "h1")
	if err != nil || existed {
		t.Errorf("DeleteSession(again) = %v, %v, want false", existed, err)
	}
}

func TestStore_ListSessionHandles(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 2; i >= 0; i-- {
		if err := s.CreateSession(ctx, tenantA, newSession(fmt.Sprintf("h%d", i), "u1", 0)); err != nil {
			t.Fatal(err)
		}
	}
	handles, err := s.ListSessionHandles(ctx, tenantA, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(handles) != "[h0 h1 h2]" {
		t.Errorf("ListSessionHandles = %v, want [h0 h1 h2]", handles)
	}
	if h, _ := s.ListSessionHandles(ctx, tenantA, "nobody"); len(h) != 0 {
		t.Errorf("ListSessionHandles(unknown) = %v", h)
	}
}

func TestStore_DeleteExpiredSessions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := int64(10_000)

	for _, sess := range []*domain.Session{
		newSession("old", "u1", now-1),
		newSession("edge", "u1", now),
		newSession("forever", "u1", 0),
	} {
		if err := s.CreateSession(ctx, tenantA, sess); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteExpiredSessions(ctx, tenantA, now)
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredSessions = %d, %v, want 1", n, err)
	}
	handles, _ := s.ListSessionHandles(ctx, tenantA, "u1")
	if fmt.Sprint(handles) != "[edge forever]" {
		t.Errorf("remaining = %v, want [edge forever]", handles)
	}
}

func TestStore_SigningKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []*domain.SigningKey{
		{KeyID: "d-b", CreatedAt: 300, ExpiresAt: 400},
		{KeyID: "d-a", CreatedAt: 100, ExpiresAt: 200},
		{KeyID: "s-1", CreatedAt: 200},
	} {
		if err := s.AddSigningKey(ctx, tenantA, k); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := s.ListSigningKeys(ctx, tenantA)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, k := range keys {
		ids = append(ids, k.KeyID)
	}
	if fmt.Sprint(ids) != "[d-a s-1 d-b]" {
		t.Errorf("ListSigningKeys order = %v", ids)
	}

	n, err := s.RemoveSigningKeysExpiredBefore(ctx, tenantA, 250)
	if err != nil || n != 1 {
		t.Errorf("RemoveSigningKeysExpiredBefore = %d, %v, want 1", n, err)
	}
	if keys, _ := s.ListSigningKeys(ctx, tenantB); len(keys) != 0 {
		t.Errorf("other tenant sees %d keys", len(keys))
	}
}

func TestStore_KeyValueAndMetadata(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetKeyValue(ctx, tenantA, "id"); !errors.Is(err, domain.ErrKeyValueNotFound) {
		t.Errorf("GetKeyValue(unset) error = %v", err)
	}
	first, err := s.SetKeyValueIfAbsent(ctx, tenantA, "id", &domain.KeyValue{Value: "a"})
	if err != nil || first.Value != "a" {
		t.Fatalf("SetKeyValueIfAbsent = %+v, %v", first, err)
	}
	second, err := s.SetKeyValueIfAbsent(ctx, tenantA, "id", &domain.KeyValue{Value: "b"})
	if err != nil || second.Value != "a" {
		t.Errorf("SetKeyValueIfAbsent(existing) = %+v, %v, want a", second, err)
	}
	if err := s.SetKeyValue(ctx, tenantA, "id", &domain.KeyValue{Value: "c"}); err != nil {
		t.Fatal(err)
	}
	if kv, _ := s.GetKeyValue(ctx, tenantA, "id"); kv.Value != "c" {
		t.Errorf("GetKeyValue = %q, want c", kv.Value)
	}

	if md, err := s.GetUserMetadata(ctx, tenantA, "u1"); err != nil || md != nil {
		t.Errorf("GetUserMetadata(unset) = %s, %v", md, err)
	}
	_ = s.SetUserMetadata(ctx, tenantA, "u1", json.RawMessage(`{"x":true}`))
	if md, _ := s.GetUserMetadata(ctx, tenantA, "u1"); string(md) != `{"x":true}` {
		t.Errorf("GetUserMetadata = %s", md)
	}
	_ = s.DeleteUserMetadata(ctx, tenantA, "u1")
	if md, _ := s.GetUserMetadata(ctx, tenantA, "u1"); md != nil {
		t.Errorf("metadata after delete = %s", md)
	}
}

func TestStore_ActiveUsers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.UpdateLastActive(ctx, tenantA, "u1", 100)
	_ = s.UpdateLastActive(ctx, tenantA, "u2", 200)
	_ = s.UpdateLastActive(ctx, tenantA, "u1", 300)

	tests := []struct {
		since int64
		want  int
	}{
		{0, 2},
		{200, 2},
		{250, 1},
		{301, 0},
	}
	for _, tt := range tests {
		got, err := s.CountActiveUsersSince(ctx, tenantA, tt.since)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("CountActiveUsersSince(%d) = %d, want %d", tt.since, got, tt.want)
		}
	}
}

func TestStore_UnavailableIsStorageError(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.GetSession(context.Background(), tenantA, "h1")
	if domain.KindOf(err) != domain.KindStorage {
		t.Errorf("KindOf(%v) = %v, want storage", err, domain.KindOf(err))
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/pkg/token"
)

func createRequest(userID string) *CreateSessionRequest {
	return &CreateSessionRequest{
		UserID:        userID,
		UserDataInJWT: json.RawMessage(`{"role":"admin"}`),
		Version:       domain.CDIv2_17,
	}
}

func TestSessionService_CreateAndVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("user-1"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if res.Session.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", res.Session.UserID)
	}
	if !strings.HasPrefix(res.RefreshToken.Token, RefreshTokenPrefix) {
		t.Errorf("refresh token %q lacks prefix", res.RefreshToken.Token)
	}
	if got, want := res.AccessToken.Expiry, env.clock.Now().Add(time.Hour).UnixMilli(); got != want {
		t.Errorf("access token expiry = %d, want %d", got, want)
	}
	if got, want := res.RefreshToken.Expiry, res.Session.ExpiresAt; got != want {
		t.Errorf("refresh token expiry = %d, want %d", got, want)
	}
	if res.IDRefreshToken == nil {
		t.Error("IDRefreshToken should be issued below 2.21")
	}
	if !strings.HasPrefix(res.Session.SigningKeyID, domain.DynamicKeyIDPrefix) {
		t.Errorf("SigningKeyID = %q, want a dynamic key", res.Session.SigningKeyID)
	}

	stored, err := env.store.GetSession(ctx, env.tenant, res.Session.Handle)
	if err != nil {
		t.Fatalf("stored session: %v", err)
	}
	if stored.RefreshTokenHash != token.DoubleHash(res.RefreshToken.Token) {
		t.Error("stored refresh hash should be the double hash of the token")
	}

	got, err := env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: res.AccessToken.Token})
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if got.SessionHandle != res.Session.Handle || got.UserID != "user-1" {
		t.Errorf("VerifySession() = %+v", got)
	}
	if string(got.UserDataInJWT) != `{"role":"admin"}` {
		t.Errorf("UserDataInJWT = %s", got.UserDataInJWT)
	}
	if got.TenantID != "public" {
		t.Errorf("TenantID = %q, want public", got.TenantID)
	}
}

func TestSessionService_CreateFlatPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	v3 := domain.MustParseProtocolVersion("3.0")

	req := createRequest("user-1")
	req.Version = v3
	res, err := env.sessions.CreateSession(ctx, env.tenant, req)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if res.IDRefreshToken != nil {
		t.Error("IDRefreshToken should be omitted from 2.21 on")
	}

	got, err := env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: res.AccessToken.Token})
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if string(got.UserDataInJWT) != `{"role":"admin"}` {
		t.Errorf("UserDataInJWT = %s", got.UserDataInJWT)
	}

	req = createRequest("user-2")
	req.Version = v3
	req.UserDataInJWT = json.RawMessage(`{"sub":"someone-else"}`)
	_, err = env.sessions.CreateSession(ctx, env.tenant, req)
	if !errors.Is(err, domain.ErrAccessTokenPayload) {
		t.Fatalf("CreateSession(protected claim) error = %v, want payload error", err)
	}
	if !strings.Contains(err.Error(), "protected field: sub") {
		t.Errorf("error = %q, want protected field message", err.Error())
	}
	if n := env.store.sessionCount(); n != 1 {
		t.Errorf("session count = %d, want 1 (rejected session must not be stored)", n)
	}
}

func TestSessionService_CreateRejectsInput(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxUserDataInJWTBytes = 16
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *CreateSessionRequest
		wantErr error
	}{
		{
			name:    "payload too large",
			req:     &CreateSessionRequest{UserID: "u", UserDataInJWT: json.RawMessage(`{"k":"0123456789abcdef"}`)},
			wantErr: domain.ErrAccessTokenPayload,
		},
		{
			name:    "payload not an object",
			req:     &CreateSessionRequest{UserID: "u", UserDataInJWT: json.RawMessage(`[1,2]`)},
			wantErr: domain.ErrBadRequest,
		},
		{
			name:    "missing user id",
			req:     &CreateSessionRequest{},
			wantErr: domain.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sessions.CreateSession(ctx, env.tenant, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CreateSession() error = %v, want %v", err, tt.wantErr)
			}
			if domain.KindOf(err) != domain.KindBadRequest {
				t.Errorf("KindOf() = %v, want bad request", domain.KindOf(err))
			}
		})
	}

	if n := env.store.sessionCount(); n != 0 {
		t.Errorf("session count = %d, want 0", n)
	}
}

func TestSessionService_CreateUnknownTenant(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sessions.CreateSession(context.Background(), domain.NewTenantIdentity("", "", "missing"), createRequest("u"))
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("CreateSession() error = %v, want ErrTenantNotFound", err)
	}
}

func TestSessionService_ActiveUserFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.store.errActive = errors.New("active users table locked")

	if _, err := env.sessions.CreateSession(context.Background(), env.tenant, createRequest("u")); err != nil {
		t.Fatalf("CreateSession() error = %v, want nil", err)
	}
	if n := env.store.sessionCount(); n != 1 {
		t.Errorf("session count = %d, want 1", n)
	}
}

func TestSessionService_CreateRecordsActiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u")); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	n, err := env.store.CountActiveUsersSince(ctx, env.tenant, env.clock.Now().UnixMilli())
	if err != nil || n != 1 {
		t.Errorf("CountActiveUsersSince() = %d, %v, want 1", n, err)
	}
}

func TestSessionService_StaticKeyChoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := createRequest("u")
	req.UseStaticSigningKey = true
	res, err := env.sessions.CreateSession(ctx, env.tenant, req)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if !strings.HasPrefix(res.Session.SigningKeyID, domain.StaticKeyIDPrefix) {
		t.Errorf("SigningKeyID = %q, want the static key", res.Session.SigningKeyID)
	}
	if !res.Session.UseStaticKey {
		t.Error("UseStaticKey should be recorded on the session")
	}
}

func TestSessionService_ConcurrentCreatesShareDynamicKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if env.store.addKeyCalls != 1 {
		t.Errorf("dynamic keys generated = %d, want 1", env.store.addKeyCalls)
	}
}

func TestSessionService_GetSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := env.sessions.GetSession(ctx, env.tenant, res.Session.Handle)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.UserID != "u" {
		t.Errorf("UserID = %q, want u", got.UserID)
	}

	if _, err := env.sessions.GetSession(ctx, env.tenant, "no-such-handle"); !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("GetSession(unknown) error = %v, want ErrSessionUnauthorised", err)
	}
	if domain.KindOf(domain.ErrSessionUnauthorised) != domain.KindSoft {
		t.Error("unknown session should be a soft failure")
	}

	other := domain.NewTenantIdentity("", "", "acme")
	if _, err := env.sessions.GetSession(ctx, other, res.Session.Handle); !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("GetSession(other tenant) error = %v, want ErrSessionUnauthorised", err)
	}
}

func TestSessionService_GetSessionExpired(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.RefreshTokenValidity = time.Hour
	env.cfg.DynamicSigningKeyUpdateInterval = 0
	ctx := context.Background()

	res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	env.clock.Advance(time.Hour + time.Millisecond)

	if _, err := env.sessions.GetSession(ctx, env.tenant, res.Session.Handle); !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("GetSession(expired) error = %v, want ErrSessionUnauthorised", err)
	}
}

func TestSessionService_GetSessionRetiredKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Past the signing window plus the access token grace.
	env.clock.Advance(25*time.Hour + time.Minute)

	if _, err := env.sessions.GetSession(ctx, env.tenant, res.Session.Handle); !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("GetSession(retired key) error = %v, want ErrSessionUnauthorised", err)
	}
}

func TestSessionService_GetSessionStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.errGetSession = errors.New("connection reset")

	_, err := env.sessions.GetSession(context.Background(), env.tenant, "h")
	if domain.KindOf(err) != domain.KindStorage {
		t.Errorf("KindOf(%v) = %v, want storage", err, domain.KindOf(err))
	}
}

func TestSessionService_VerifyFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := createRequest("u")
	req.EnableAntiCsrf = true
	res, err := env.sessions.CreateSession(ctx, env.tenant, req)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if res.AntiCsrfToken == "" {
		t.Fatal("AntiCsrfToken should be issued when enabled")
	}
	access := res.AccessToken.Token

	tests := []struct {
		name    string
		req     *VerifyRequest
		wantErr error
	}{
		{"valid with csrf", &VerifyRequest{AccessToken: access, AntiCsrfToken: res.AntiCsrfToken, DoAntiCsrfCheck: true}, nil},
		{"csrf not checked", &VerifyRequest{AccessToken: access}, nil},
		{"wrong csrf", &VerifyRequest{AccessToken: access, AntiCsrfToken: "nope", DoAntiCsrfCheck: true}, domain.ErrTryRefreshToken},
		{"tampered", &VerifyRequest{AccessToken: access[:len(access)-4] + "AAAA"}, domain.ErrTryRefreshToken},
		{"garbage", &VerifyRequest{AccessToken: "not-a-jwt"}, domain.ErrTryRefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sessions.VerifySession(ctx, env.tenant, tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("VerifySession() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("VerifySession() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("other tenant", func(t *testing.T) {
		_, err := env.sessions.VerifySession(ctx, domain.NewTenantIdentity("", "", "acme"), &VerifyRequest{AccessToken: access})
		if domain.KindOf(err) != domain.KindSoft {
			t.Errorf("VerifySession(other tenant) error = %v, want soft failure", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		env.clock.Advance(time.Hour + time.Second)
		_, err := env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: access})
		if !errors.Is(err, domain.ErrTryRefreshToken) {
			t.Errorf("VerifySession(expired) error = %v, want ErrTryRefreshToken", err)
		}
	})
}

func TestSessionService_VerifyFlatTokenUntilExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.clock.Advance(500 * time.Millisecond)

	req := createRequest("u")
	req.Version = domain.CDIv2_21
	res, err := env.sessions.CreateSession(ctx, env.tenant, req)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	env.clock.Advance(time.Hour - time.Millisecond)
	if _, err := env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: res.AccessToken.Token}); err != nil {
		t.Errorf("VerifySession() before expiry error = %v", err)
	}

	env.clock.Advance(time.Second)
	_, err = env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: res.AccessToken.Token})
	if !errors.Is(err, domain.ErrTryRefreshToken) {
		t.Errorf("VerifySession() after expiry error = %v, want ErrTryRefreshToken", err)
	}
}

func TestSessionService_VerifyCheckDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := env.sessions.RevokeSessions(ctx, env.tenant, []string{res.Session.Handle}); err != nil {
		t.Fatalf("RevokeSessions() error = %v", err)
	}

	// Without the database check the signature alone is trusted.
	if _, err := env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: res.AccessToken.Token}); err != nil {
		t.Errorf("VerifySession() error = %v, want nil", err)
	}
	_, err = env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: res.AccessToken.Token, CheckDatabase: true})
	if !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("VerifySession(checkDatabase) error = %v, want ErrSessionUnauthorised", err)
	}
}

func TestSessionService_RefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	rt1 := created.RefreshToken.Token

	env.clock.Advance(time.Minute)
	first, err := env.sessions.RefreshSession(ctx, env.tenant, &RefreshRequest{RefreshToken: rt1, Version: domain.CDIv2_17})
	if err != nil {
		t.Fatalf("RefreshSession(current) error = %v", err)
	}
	rt2 := first.RefreshToken.Token
	if rt2 == rt1 {
		t.Fatal("refresh should issue a new token")
	}
	if first.Session.ExpiresAt <= created.Session.ExpiresAt {
		t.Error("refresh should extend the session expiry")
	}

	stored, _ := env.store.GetSession(ctx, env.tenant, created.Session.Handle)
	if stored.RefreshTokenHash != token.DoubleHash(rt2) || stored.ParentRefreshTokenHash != token.DoubleHash(rt1) {
		t.Error("rotation should make the old token the parent")
	}

	// A lost response makes the client retry with the parent token.
	retry, err := env.sessions.RefreshSession(ctx, env.tenant, &RefreshRequest{RefreshToken: rt1})
	if err != nil {
		t.Fatalf("RefreshSession(parent) error = %v", err)
	}
	rt3 := retry.RefreshToken.Token

	stored, _ = env.store.GetSession(ctx, env.tenant, created.Session.Handle)
	if stored.RefreshTokenHash != token.DoubleHash(rt3) || stored.ParentRefreshTokenHash != token.DoubleHash(rt1) {
		t.Error("a retry should replace the current token and keep the parent")
	}

	// rt2 is now neither current nor parent.
	_, err = env.sessions.RefreshSession(ctx, env.tenant, &RefreshRequest{RefreshToken: rt2})
	var theft *TokenTheftError
	if !errors.As(err, &theft) {
		t.Fatalf("RefreshSession(stale) error = %v, want TokenTheftError", err)
	}
	if theft.SessionHandle != created.Session.Handle || theft.UserID != "u" {
		t.Errorf("TokenTheftError = %+v", theft)
	}
	if !errors.Is(err, domain.ErrTokenTheftDetected) {
		t.Error("TokenTheftError should match ErrTokenTheftDetected")
	}

	if _, err := env.sessions.VerifySession(ctx, env.tenant, &VerifyRequest{AccessToken: retry.AccessToken.Token}); err != nil {
		t.Errorf("VerifySession(refreshed) error = %v", err)
	}
}

func TestSessionService_RefreshFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := createRequest("u")
	req.EnableAntiCsrf = true
	created, err := env.sessions.CreateSession(ctx, env.tenant, req)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	rt := created.RefreshToken.Token

	_, err = env.sessions.RefreshSession(ctx, env.tenant, &RefreshRequest{RefreshToken: rt, EnableAntiCsrf: true, AntiCsrfToken: "wrong"})
	if !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("RefreshSession(wrong csrf) error = %v, want ErrSessionUnauthorised", err)
	}

	_, err = env.sessions.RefreshSession(ctx, env.tenant, &RefreshRequest{RefreshToken: "acrt_garbage"})
	if domain.KindOf(err) != domain.KindSoft {
		t.Errorf("RefreshSession(garbage) error = %v, want soft failure", err)
	}

	_, err = env.sessions.RefreshSession(ctx, domain.NewTenantIdentity("", "", "acme"), &RefreshRequest{RefreshToken: rt})
	if !errors.Is(err, domain.ErrRefreshTokenInvalid) {
		t.Errorf("RefreshSession(other tenant) error = %v, want ErrRefreshTokenInvalid", err)
	}

	if _, err := env.sessions.RevokeSessions(ctx, env.tenant, []string{created.Session.Handle}); err != nil {
		t.Fatalf("RevokeSessions() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err = env.sessions.RefreshSession(ctx, env.tenant, &RefreshRequest{RefreshToken: rt, EnableAntiCsrf: true, AntiCsrfToken: created.AntiCsrfToken})
		if !errors.Is(err, domain.ErrSessionUnauthorised) {
			t.Errorf("RefreshSession(revoked) #%d error = %v, want ErrSessionUnauthorised", i, err)
		}
	}
}

func TestSessionService_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var handles []string
	for i := 0; i < 3; i++ {
		res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		handles = append(handles, res.Session.Handle)
	}
	if _, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("other")); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	listed, err := env.sessions.ListSessionHandles(ctx, env.tenant, "u")
	if err != nil || len(listed) != 3 {
		t.Fatalf("ListSessionHandles() = %v, %v, want 3 handles", listed, err)
	}

	revoked, err := env.sessions.RevokeSessions(ctx, env.tenant, []string{handles[0], "gone"})
	if err != nil {
		t.Fatalf("RevokeSessions() error = %v", err)
	}
	if len(revoked) != 1 || revoked[0] != handles[0] {
		t.Errorf("RevokeSessions() = %v, want [%s]", revoked, handles[0])
	}

	revoked, err = env.sessions.RevokeSessions(ctx, env.tenant, []string{handles[0]})
	if err != nil || len(revoked) != 0 {
		t.Errorf("RevokeSessions(again) = %v, %v, want empty", revoked, err)
	}

	revoked, err = env.sessions.RevokeAllForUser(ctx, env.tenant, "u")
	if err != nil || len(revoked) != 2 {
		t.Errorf("RevokeAllForUser() = %v, %v, want 2 handles", revoked, err)
	}

	listed, err = env.sessions.ListSessionHandles(ctx, env.tenant, "u")
	if err != nil || listed == nil || len(listed) != 0 {
		t.Errorf("ListSessionHandles() = %#v, %v, want empty slice", listed, err)
	}
	if n := env.store.sessionCount(); n != 1 {
		t.Errorf("session count = %d, want 1", n)
	}
}

func TestSessionService_UpdateSessionData(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u"))
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := env.sessions.UpdateSessionData(ctx, env.tenant, res.Session.Handle, json.RawMessage(`{"cart":3}`)); err != nil {
		t.Fatalf("UpdateSessionData() error = %v", err)
	}
	got, err := env.sessions.GetSession(ctx, env.tenant, res.Session.Handle)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if string(got.UserDataInDatabase) != `{"cart":3}` {
		t.Errorf("UserDataInDatabase = %s", got.UserDataInDatabase)
	}

	if err := env.sessions.UpdateSessionData(ctx, env.tenant, "gone", json.RawMessage(`{}`)); !errors.Is(err, domain.ErrSessionUnauthorised) {
		t.Errorf("UpdateSessionData(gone) error = %v, want ErrSessionUnauthorised", err)
	}
	if err := env.sessions.UpdateSessionData(ctx, env.tenant, res.Session.Handle, json.RawMessage(`"str"`)); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("UpdateSessionData(string) error = %v, want ErrBadRequest", err)
	}
}

func TestSessionService_DeleteExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u")); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	env.cfg.RefreshTokenValidity = time.Minute
	if _, err := env.sessions.CreateSession(ctx, env.tenant, createRequest("u")); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	env.clock.Advance(2 * time.Minute)
	n, err := env.sessions.DeleteExpired(ctx, env.tenant)
	if err != nil || n != 1 {
		t.Errorf("DeleteExpired() = %d, %v, want 1", n, err)
	}
}

func TestUseStaticSigningKey(t *testing.T) {
	yes, no := true, false
	dynamicDefault := &domain.TenantConfig{AccessTokenSigningKeyDynamic: true}
	staticDefault := &domain.TenantConfig{}
	v3 := domain.MustParseProtocolVersion("3.0")

	tests := []struct {
		name       string
		cfg        *domain.TenantConfig
		version    domain.ProtocolVersion
		useDynamic *bool
		want       bool
	}{
		{"old version, dynamic default", dynamicDefault, domain.CDIv2_17, &no, false},
		{"old version, static default", staticDefault, domain.CDIv2_17, &yes, true},
		{"new version, field absent", staticDefault, v3, nil, false},
		{"new version, dynamic requested", staticDefault, v3, &yes, false},
		{"new version, static requested", dynamicDefault, v3, &no, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UseStaticSigningKey(tt.cfg, tt.version, domain.CDIv2_21, tt.useDynamic); got != tt.want {
				t.Errorf("UseStaticSigningKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

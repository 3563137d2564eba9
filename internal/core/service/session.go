package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"hash/maphash"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/authcore-go/internal/core/domain"
	"github.com/yndnr/authcore-go/internal/telemetry/logger"
	"github.com/yndnr/authcore-go/internal/telemetry/metric"
	"github.com/yndnr/authcore-go/pkg/token"
)

// SessionStore is the storage SessionService needs.
type SessionStore interface {
	SessionRepository
	ActiveUserRepository
}

// SessionService creates, reads, refreshes and revokes sessions.
type SessionService struct {
	store   SessionStore
	keys    *SigningKeyManager
	codec   *TokenCodec
	sealer  *RefreshSealer
	configs ConfigProvider
	metrics *metric.Registry
	now     func() time.Time

	refreshLocks stripedMutex
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionClock overrides the clock used for expiries.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

// WithSessionMetrics records session events in r.
func WithSessionMetrics(r *metric.Registry) SessionOption {
	return func(s *SessionService) { s.metrics = r }
}

// NewSessionService creates a SessionService.
func NewSessionService(store SessionStore, keys *SigningKeyManager, codec *TokenCodec, sealer *RefreshSealer, configs ConfigProvider, opts ...SessionOption) *SessionService {
	s := &SessionService{
		store:   store,
		keys:    keys,
		codec:   codec,
		sealer:  sealer,
		configs: configs,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ============================================================================
// Types
// ============================================================================

// TokenInfo is an issued token with its lifetime.
type TokenInfo struct {
	Token       string `json:"token"`
	Expiry      int64  `json:"expiry"`
	CreatedTime int64  `json:"createdTime"`
}

// CreateSessionRequest contains parameters for session creation.
type CreateSessionRequest struct {
	UserID              string
	UserDataInJWT       json.RawMessage
	UserDataInDatabase  json.RawMessage
	EnableAntiCsrf      bool
	UseStaticSigningKey bool
	Version             domain.ProtocolVersion
}

// SessionResult is a session with the tokens issued for it.
type SessionResult struct {
	Session        *domain.Session
	AccessToken    *TokenInfo
	RefreshToken   *TokenInfo
	IDRefreshToken *TokenInfo // nil from CDI 2.21 on
	AntiCsrfToken  string
}

// VerifyRequest contains parameters for access token verification.
type VerifyRequest struct {
	AccessToken     string
	AntiCsrfToken   string
	DoAntiCsrfCheck bool
	CheckDatabase   bool
}

// VerifyResult is the session an access token belongs to.
type VerifyResult struct {
	SessionHandle string
	UserID        string
	UserDataInJWT json.RawMessage
	TenantID      string
	ExpiryTime    int64
}

// RefreshRequest contains parameters for a refresh token rotation.
type RefreshRequest struct {
	RefreshToken   string
	AntiCsrfToken  string
	EnableAntiCsrf bool
	Version        domain.ProtocolVersion
}

// TokenTheftError reports a refresh token that is neither the session's
// current token nor its immediate parent.
type TokenTheftError struct {
	SessionHandle string
	UserID        string
}

func (e *TokenTheftError) Error() string {
	return domain.ErrTokenTheftDetected.Error() + ": " + e.SessionHandle
}

func (e *TokenTheftError) Unwrap() error {
	return domain.ErrTokenTheftDetected
}

// UseStaticSigningKey decides which key family signs a new session.
//
// Below threshold the tenant default applies (static unless dynamic keys are
// the default). From threshold on the client decides through
// useDynamicSigningKey, and only an explicit false selects the static key.
func UseStaticSigningKey(cfg *domain.TenantConfig, version, threshold domain.ProtocolVersion, useDynamicSigningKey *bool) bool {
	if !version.AllowsSigningKeyOverride(threshold) {
		return !cfg.AccessTokenSigningKeyDynamic
	}
	return useDynamicSigningKey != nil && !*useDynamicSigningKey
}

// ============================================================================
// Create / Get
// ============================================================================

// CreateSession creates a session and issues its tokens.
func (s *SessionService) CreateSession(ctx context.Context, t domain.TenantIdentity, req *CreateSessionRequest) (*SessionResult, error) {
	cfg, err := s.configs.TenantConfig(t)
	if err != nil {
		return nil, err
	}

	jwtData, err := jsonObject("userDataInJWT", req.UserDataInJWT)
	if err != nil {
		return nil, err
	}
	dbData, err := jsonObject("userDataInDatabase", req.UserDataInDatabase)
	if err != nil {
		return nil, err
	}
	if cfg.MaxUserDataInJWTBytes > 0 && len(jwtData) > cfg.MaxUserDataInJWTBytes {
		return nil, domain.AccessTokenPayloadError("userDataInJWT exceeds " + strconv.Itoa(cfg.MaxUserDataInJWTBytes) + " bytes")
	}

	now := s.now().UnixMilli()
	sess := &domain.Session{
		Handle:             domain.NewSessionHandle(),
		UserID:             req.UserID,
		UserDataInJWT:      jwtData,
		UserDataInDatabase: dbData,
		UseStaticKey:       req.UseStaticSigningKey,
		CreatedAt:          now,
		ExpiresAt:          now + cfg.RefreshTokenValidity.Milliseconds(),
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if req.EnableAntiCsrf {
		sess.AntiCsrfToken = uuid.NewString()
	}

	key, err := s.keys.GetSigningKey(ctx, t, cfg, req.UseStaticSigningKey)
	if err != nil {
		return nil, err
	}
	sess.SigningKeyID = key.KeyID

	refresh, err := s.sealer.Seal(ctx, t, RefreshPayload{
		SessionHandle: sess.Handle,
		UserID:        sess.UserID,
		AntiCsrfToken: sess.AntiCsrfToken,
	})
	if err != nil {
		return nil, err
	}
	sess.RefreshTokenHash = token.DoubleHash(refresh)

	// Sign before persisting so a payload error leaves nothing behind.
	access, err := s.issueAccessToken(t, cfg, sess, key, token.Hash(refresh), "", req.Version, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateSession(ctx, t, sess); err != nil {
		return nil, domain.StorageError("create session", err)
	}

	if err := s.store.UpdateLastActive(ctx, t, sess.UserID, now); err != nil {
		logger.L(ctx).Warn("failed to update active user", "user_id", sess.UserID, "error", err)
	}
	s.metrics.SessionCreated()

	result := &SessionResult{
		Session:       sess.Clone(),
		AccessToken:   access,
		RefreshToken:  &TokenInfo{Token: refresh, Expiry: sess.ExpiresAt, CreatedTime: now},
		AntiCsrfToken: sess.AntiCsrfToken,
	}
	if err := s.attachIDRefreshToken(result, req.Version, now); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSession returns the live session under handle.
//
// An unknown or expired handle, or one whose signing key has left the
// verification set, is domain.ErrSessionUnauthorised.
func (s *SessionService) GetSession(ctx context.Context, t domain.TenantIdentity, handle string) (*domain.Session, error) {
	cfg, err := s.configs.TenantConfig(t)
	if err != nil {
		return nil, err
	}

	sess, err := s.liveSession(ctx, t, handle)
	if err != nil {
		return nil, err
	}

	_, ok, err := s.keys.VerificationKey(ctx, t, cfg, sess.SigningKeyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionUnauthorised.WithDetails("signing key retired")
	}
	return sess, nil
}

// ============================================================================
// Verify
// ============================================================================

// VerifySession validates an access token.
//
// Expired tokens and tokens that fail verification are
// domain.ErrTryRefreshToken. With CheckDatabase set, a session that no longer
// exists is domain.ErrSessionUnauthorised.
func (s *SessionService) VerifySession(ctx context.Context, t domain.TenantIdentity, req *VerifyRequest) (*VerifyResult, error) {
	cfg, err := s.configs.TenantConfig(t)
	if err != nil {
		return nil, err
	}

	info, err := s.codec.Parse(req.AccessToken, func(kid string) (*domain.SigningKey, bool, error) {
		return s.keys.VerificationKey(ctx, t, cfg, kid)
	})
	if err != nil {
		return nil, err
	}

	if info.TenantID != t.TenantIDOrDefault() {
		return nil, domain.ErrSessionUnauthorised.WithDetails("access token belongs to another tenant")
	}
	if s.now().UnixMilli() > info.ExpiryTime {
		return nil, domain.ErrTryRefreshToken.WithDetails("access token expired")
	}
	if req.DoAntiCsrfCheck && info.AntiCsrfToken != "" && !token.Equal(req.AntiCsrfToken, info.AntiCsrfToken) {
		return nil, domain.ErrTryRefreshToken.WithDetails("anti-csrf check failed")
	}

	if req.CheckDatabase {
		if _, err := s.liveSession(ctx, t, info.SessionHandle); err != nil {
			return nil, err
		}
	}

	return &VerifyResult{
		SessionHandle: info.SessionHandle,
		UserID:        info.UserID,
		UserDataInJWT: info.UserData,
		TenantID:      info.TenantID,
		ExpiryTime:    info.ExpiryTime,
	}, nil
}

// ============================================================================
// Refresh
// ============================================================================

// RefreshSession rotates a refresh token.
//
// Presenting the current token rotates it. Presenting the immediately
// preceding token is treated as a client retry and rotates again. Any other
// token of the session is a *TokenTheftError. A session that is gone is
// domain.ErrSessionUnauthorised.
func (s *SessionService) RefreshSession(ctx context.Context, t domain.TenantIdentity, req *RefreshRequest) (*SessionResult, error) {
	cfg, err := s.configs.TenantConfig(t)
	if err != nil {
		return nil, err
	}

	payload, err := s.sealer.Open(ctx, t, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if req.EnableAntiCsrf && payload.AntiCsrfToken != "" && !token.Equal(req.AntiCsrfToken, payload.AntiCsrfToken) {
		return nil, domain.ErrSessionUnauthorised.WithDetails("anti-csrf token missing or not matching")
	}

	unlock := s.refreshLocks.lock(t.StorageKey() + "|" + payload.SessionHandle)
	defer unlock()

	sess, err := s.liveSession(ctx, t, payload.SessionHandle)
	if err != nil {
		return nil, err
	}

	presented := token.DoubleHash(req.RefreshToken)
	switch {
	case token.Equal(presented, sess.RefreshTokenHash):
		sess.ParentRefreshTokenHash = sess.RefreshTokenHash
	case sess.ParentRefreshTokenHash != "" && token.Equal(presented, sess.ParentRefreshTokenHash):
		// Retry of a rotation whose response was lost; the parent stays.
	default:
		s.metrics.TokenTheftDetected()
		logger.L(ctx).Warn("refresh token theft detected", "session_handle", sess.Handle, "user_id", sess.UserID)
		return nil, &TokenTheftError{SessionHandle: sess.Handle, UserID: sess.UserID}
	}

	key, err := s.keys.GetSigningKey(ctx, t, cfg, sess.UseStaticKey)
	if err != nil {
		return nil, err
	}

	refresh, err := s.sealer.Seal(ctx, t, RefreshPayload{
		SessionHandle: sess.Handle,
		UserID:        sess.UserID,
		AntiCsrfToken: sess.AntiCsrfToken,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	sess.RefreshTokenHash = token.DoubleHash(refresh)
	sess.SigningKeyID = key.KeyID
	sess.ExpiresAt = now + cfg.RefreshTokenValidity.Milliseconds()

	access, err := s.issueAccessToken(t, cfg, sess, key, token.Hash(refresh), token.Hash(req.RefreshToken), req.Version, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateSession(ctx, t, sess); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionUnauthorised
		}
		return nil, domain.StorageError("update session", err)
	}
	s.metrics.SessionRefreshed()

	result := &SessionResult{
		Session:       sess.Clone(),
		AccessToken:   access,
		RefreshToken:  &TokenInfo{Token: refresh, Expiry: sess.ExpiresAt, CreatedTime: now},
		AntiCsrfToken: sess.AntiCsrfToken,
	}
	if err := s.attachIDRefreshToken(result, req.Version, now); err != nil {
		return nil, err
	}
	return result, nil
}

// ============================================================================
// Revoke / List / Update
// ============================================================================

// RevokeSessions deletes the given sessions and returns the handles that
// existed. Handles that are already gone are skipped.
func (s *SessionService) RevokeSessions(ctx context.Context, t domain.TenantIdentity, handles []string) ([]string, error) {
	revoked := make([]string, 0, len(handles))
	for _, h := range handles {
		existed, err := s.store.DeleteSession(ctx, t, h)
		if err != nil {
			return revoked, domain.StorageError("delete session", err)
		}
		if existed {
			revoked = append(revoked, h)
		}
	}
	s.metrics.SessionsRevokedAdd(len(revoked))
	return revoked, nil
}

// RevokeAllForUser deletes every session of userID.
func (s *SessionService) RevokeAllForUser(ctx context.Context, t domain.TenantIdentity, userID string) ([]string, error) {
	handles, err := s.ListSessionHandles(ctx, t, userID)
	if err != nil {
		return nil, err
	}
	return s.RevokeSessions(ctx, t, handles)
}

// ListSessionHandles returns the handles of userID's sessions.
func (s *SessionService) ListSessionHandles(ctx context.Context, t domain.TenantIdentity, userID string) ([]string, error) {
	handles, err := s.store.ListSessionHandles(ctx, t, userID)
	if err != nil {
		return nil, domain.StorageError("list sessions", err)
	}
	if handles == nil {
		handles = []string{}
	}
	return handles, nil
}

// UpdateSessionData replaces userDataInDatabase of a live session.
func (s *SessionService) UpdateSessionData(ctx context.Context, t domain.TenantIdentity, handle string, data json.RawMessage) error {
	obj, err := jsonObject("userDataInDatabase", data)
	if err != nil {
		return err
	}

	unlock := s.refreshLocks.lock(t.StorageKey() + "|" + handle)
	defer unlock()

	sess, err := s.liveSession(ctx, t, handle)
	if err != nil {
		return err
	}
	sess.UserDataInDatabase = obj

	if err := s.store.UpdateSession(ctx, t, sess); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return domain.ErrSessionUnauthorised
		}
		return domain.StorageError("update session", err)
	}
	return nil
}

// DeleteExpired removes the tenant's expired sessions.
func (s *SessionService) DeleteExpired(ctx context.Context, t domain.TenantIdentity) (int, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, t, s.now().UnixMilli())
	if err != nil {
		return 0, domain.StorageError("delete expired sessions", err)
	}
	return n, nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *SessionService) liveSession(ctx context.Context, t domain.TenantIdentity, handle string) (*domain.Session, error) {
	if handle == "" {
		return nil, domain.ErrSessionUnauthorised
	}
	sess, err := s.store.GetSession(ctx, t, handle)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrSessionUnauthorised
		}
		return nil, domain.StorageError("get session", err)
	}
	if sess.IsExpired(s.now().UnixMilli()) {
		return nil, domain.ErrSessionUnauthorised
	}
	return sess, nil
}

func (s *SessionService) issueAccessToken(t domain.TenantIdentity, cfg *domain.TenantConfig, sess *domain.Session, key *domain.SigningKey, hash1, parentHash1 string, version domain.ProtocolVersion, now int64) (*TokenInfo, error) {
	format := PayloadNested
	if version.UsesFlatAccessTokenPayload() {
		format = PayloadFlat
	}

	expiry := now + cfg.AccessTokenValidity.Milliseconds()
	signed, err := s.codec.Sign(&AccessTokenInfo{
		SessionHandle:           sess.Handle,
		UserID:                  sess.UserID,
		RefreshTokenHash1:       hash1,
		ParentRefreshTokenHash1: parentHash1,
		UserData:                sess.UserDataInJWT,
		AntiCsrfToken:           sess.AntiCsrfToken,
		ExpiryTime:              expiry,
		TimeCreated:             now,
		TenantID:                t.TenantIDOrDefault(),
		Format:                  format,
	}, key)
	if err != nil {
		return nil, err
	}
	return &TokenInfo{Token: signed, Expiry: expiry, CreatedTime: now}, nil
}

func (s *SessionService) attachIDRefreshToken(r *SessionResult, version domain.ProtocolVersion, now int64) error {
	if version.OmitsIDRefreshToken() {
		return nil
	}
	id, err := token.Generate()
	if err != nil {
		return domain.ErrCrypto.WithDetails("id refresh token").WithCause(err)
	}
	r.IDRefreshToken = &TokenInfo{Token: id, Expiry: r.RefreshToken.Expiry, CreatedTime: now}
	return nil
}

// jsonObject returns raw, or {} when empty, and rejects anything that is not
// a JSON object.
func jsonObject(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, domain.BadRequest("Field name '" + field + "' is invalid in JSON input")
	}
	return append(json.RawMessage(nil), trimmed...), nil
}

// stripedMutex serializes read-modify-write cycles on one session within the
// process without a lock per session.
type stripedMutex struct {
	once  sync.Once
	seed  maphash.Seed
	locks [64]sync.Mutex
}

func (m *stripedMutex) lock(key string) (unlock func()) {
	m.once.Do(func() { m.seed = maphash.MakeSeed() })
	mu := &m.locks[maphash.String(m.seed, key)%uint64(len(m.locks))]
	mu.Lock()
	return mu.Unlock
}

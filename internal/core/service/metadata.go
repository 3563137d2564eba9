package service

import (
	"context"
	"encoding/json"

	"github.com/yndnr/authcore-go/internal/core/domain"
)

// MetadataService stores a free-form JSON object per user.
type MetadataService struct {
	repo UserMetadataRepository
}

// NewMetadataService creates a MetadataService.
func NewMetadataService(repo UserMetadataRepository) *MetadataService {
	return &MetadataService{repo: repo}
}

// Get returns the user's metadata, or an empty object when none is stored.
func (s *MetadataService) Get(ctx context.Context, t domain.TenantIdentity, userID string) (map[string]json.RawMessage, error) {
	raw, err := s.repo.GetUserMetadata(ctx, t, userID)
	if err != nil {
		return nil, domain.StorageError("get user metadata", err)
	}
	return decodeMetadata(raw)
}

// Update shallow-merges update into the stored metadata. A null value
// removes the field. The merged object is returned.
func (s *MetadataService) Update(ctx context.Context, t domain.TenantIdentity, userID string, update map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	current, err := s.Get(ctx, t, userID)
	if err != nil {
		return nil, err
	}

	for k, v := range update {
		if isJSONNull(v) {
			delete(current, k)
			continue
		}
		current[k] = v
	}

	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, domain.BadRequest("Field name 'metadataUpdate' is invalid in JSON input")
	}
	if err := s.repo.SetUserMetadata(ctx, t, userID, encoded); err != nil {
		return nil, domain.StorageError("set user metadata", err)
	}
	return current, nil
}

// Remove deletes the user's metadata. Removing absent metadata succeeds.
func (s *MetadataService) Remove(ctx context.Context, t domain.TenantIdentity, userID string) error {
	if err := s.repo.DeleteUserMetadata(ctx, t, userID); err != nil {
		return domain.StorageError("delete user metadata", err)
	}
	return nil
}

func decodeMetadata(raw json.RawMessage) (map[string]json.RawMessage, error) {
	m := make(map[string]json.RawMessage)
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, domain.ErrInternal.WithDetails("stored user metadata is not an object").WithCause(err)
	}
	if m == nil {
		m = make(map[string]json.RawMessage)
	}
	return m, nil
}

func isJSONNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

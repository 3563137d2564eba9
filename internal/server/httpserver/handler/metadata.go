package handler

import (
	"net/http"
)

// getUserMetadata handles GET /recipe/user/metadata?userId=.
func (h *Handler) getUserMetadata(w http.ResponseWriter, r *Request) error {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		return missingQuery("userId")
	}

	md, err := h.metadata.Get(r.Context(), r.Tenant, userID)
	if err != nil {
		return err
	}
	writeJSON(w, UserMetadataResponse{Status: StatusOK, Metadata: md})
	return nil
}

// updateUserMetadata handles PUT /recipe/user/metadata.
func (h *Handler) updateUserMetadata(w http.ResponseWriter, r *Request) error {
	var body UpdateUserMetadataRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.UserID == "" {
		return invalidField("userId")
	}
	if body.MetadataUpdate == nil {
		return invalidField("metadataUpdate")
	}

	md, err := h.metadata.Update(r.Context(), r.Tenant, body.UserID, body.MetadataUpdate)
	if err != nil {
		return err
	}
	writeJSON(w, UserMetadataResponse{Status: StatusOK, Metadata: md})
	return nil
}

// removeUserMetadata handles POST /recipe/user/metadata/remove.
func (h *Handler) removeUserMetadata(w http.ResponseWriter, r *Request) error {
	var body RemoveUserMetadataRequest
	if err := decodeBody(r, &body); err != nil {
		return err
	}
	if body.UserID == "" {
		return invalidField("userId")
	}

	if err := h.metadata.Remove(r.Context(), r.Tenant, body.UserID); err != nil {
		return err
	}
	writeJSON(w, statusResponse{Status: StatusOK})
	return nil
}

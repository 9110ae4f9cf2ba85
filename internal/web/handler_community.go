package web

import (
	"net/http"

	"github.com/hliang-dev/splitbill/internal/domain"
)

type createCommunityRequest struct {
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

func (s *Server) handleCreateCommunity(w http.ResponseWriter, r *http.Request) {
	var req createCommunityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "name and userId are required")
		return
	}

	community, err := s.communities.Create(r.Context(), req.Name, req.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, communityPayload(community))
}

type joinCommunityRequest struct {
	InviteCode string `json:"inviteCode"`
	UserID     string `json:"userId"`
}

func (s *Server) handleJoinCommunity(w http.ResponseWriter, r *http.Request) {
	var req joinCommunityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.InviteCode == "" || req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "inviteCode and userId are required")
		return
	}

	community, err := s.communities.Join(r.Context(), req.InviteCode, req.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, communityPayload(community))
}

func (s *Server) handleGetCommunity(w http.ResponseWriter, r *http.Request) {
	community, members, err := s.communities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	memberPayloads := make([]map[string]any, 0, len(members))
	for _, member := range members {
		memberPayloads = append(memberPayloads, map[string]any{
			"uid":      member.UID,
			"joinedAt": member.JoinedAt,
		})
	}

	payload := communityPayload(community)
	payload["members"] = memberPayloads
	s.respondJSON(w, http.StatusOK, payload)
}

type renameCommunityRequest struct {
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

func (s *Server) handleRenameCommunity(w http.ResponseWriter, r *http.Request) {
	var req renameCommunityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "name and userId are required")
		return
	}

	if err := s.communities.Rename(r.Context(), r.PathValue("id"), req.UserID, req.Name); err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	requesterID := r.URL.Query().Get("userId")
	if requesterID == "" {
		s.respondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	err := s.communities.RemoveMember(r.Context(), r.PathValue("id"), requesterID, r.PathValue("uid"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func communityPayload(community *domain.Community) map[string]any {
	return map[string]any{
		"id":         community.ID,
		"name":       community.Name,
		"ownerId":    community.OwnerID,
		"inviteCode": community.InviteCode,
		"createdAt":  community.CreatedAt,
	}
}

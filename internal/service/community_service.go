package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hliang-dev/splitbill/internal/domain"
	"github.com/hliang-dev/splitbill/internal/store"
)

type CommunityService struct {
	communities *store.CommunityStore
}

func NewCommunityService(communities *store.CommunityStore) *CommunityService {
	return &CommunityService{communities: communities}
}

// Create makes a new community owned by ownerID, who becomes its first
// member. The invite code is random and shown once to the owner.
func (s *CommunityService) Create(ctx context.Context, name, ownerID string) (*domain.Community, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("community name is required")
	}
	return s.communities.Create(ctx, name, ownerID, newInviteCode())
}

// newInviteCode returns a 6-character uppercase hex code. Codes are UNIQUE
// in the database; at this scale a collision is not worth retrying for.
func newInviteCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:6])
}

// Join adds uid to the community matching the invite code. Codes are
// matched case-insensitively; joining twice is a no-op.
func (s *CommunityService) Join(ctx context.Context, inviteCode, uid string) (*domain.Community, error) {
	inviteCode = strings.ToUpper(strings.TrimSpace(inviteCode))
	if inviteCode == "" {
		return nil, fmt.Errorf("invite code is required")
	}

	community, err := s.communities.GetByInviteCode(ctx, inviteCode)
	if err != nil {
		return nil, err
	}
	if err := s.communities.AddMember(ctx, community.ID, uid); err != nil {
		return nil, err
	}
	return community, nil
}

// Get returns the community with its member list.
func (s *CommunityService) Get(ctx context.Context, communityID string) (*domain.Community, []*domain.Member, error) {
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.communities.ListMembers(ctx, communityID)
	if err != nil {
		return nil, nil, err
	}
	return community, members, nil
}

// Rename changes a community's name. Only the owner may rename.
func (s *CommunityService) Rename(ctx context.Context, communityID, requesterID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("community name is required")
	}
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if community.OwnerID != requesterID {
		return ErrForbidden
	}
	return s.communities.Rename(ctx, communityID, name)
}

// RemoveMember removes uid from the community. A member may remove only
// themself; the owner may remove anyone except themself, so a community
// always keeps its owner.
func (s *CommunityService) RemoveMember(ctx context.Context, communityID, requesterID, uid string) error {
	community, err := s.communities.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if uid == community.OwnerID {
		return ErrForbidden
	}
	if requesterID != uid && requesterID != community.OwnerID {
		return ErrForbidden
	}
	return s.communities.RemoveMember(ctx, communityID, uid)
}

// IsMember reports community membership, for handlers gating bill access.
func (s *CommunityService) IsMember(ctx context.Context, communityID, uid string) (bool, error) {
	return s.communities.IsMember(ctx, communityID, uid)
}

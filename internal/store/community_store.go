package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hliang-dev/splitbill/internal/domain"
)

type CommunityStore struct {
	db *sql.DB
}

func NewCommunityStore(db *sql.DB) *CommunityStore {
	return &CommunityStore{db: db}
}

// Create inserts the community and its owner's membership in one
// transaction so a community is never visible without its first member.
func (s *CommunityStore) Create(ctx context.Context, name, ownerID, inviteCode string) (*domain.Community, error) {
	community := &domain.Community{
		ID:         uuid.NewString(),
		Name:       name,
		OwnerID:    ownerID,
		InviteCode: inviteCode,
		CreatedAt:  time.Now().UnixMilli(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO communities (id, name, owner_id, invite_code, created_at) VALUES (?, ?, ?, ?, ?)
	`, community.ID, community.Name, community.OwnerID, community.InviteCode, community.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create community: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO community_members (community_id, uid, joined_at) VALUES (?, ?, ?)
	`, community.ID, ownerID, community.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return community, nil
}

func (s *CommunityStore) GetByID(ctx context.Context, id string) (*domain.Community, error) {
	return s.getBy(ctx, "id", id)
}

func (s *CommunityStore) GetByInviteCode(ctx context.Context, code string) (*domain.Community, error) {
	return s.getBy(ctx, "invite_code", code)
}

func (s *CommunityStore) getBy(ctx context.Context, column, value string) (*domain.Community, error) {
	community := &domain.Community{}
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, name, owner_id, invite_code, created_at FROM communities WHERE %s = ?
	`, column), value).Scan(
		&community.ID, &community.Name, &community.OwnerID, &community.InviteCode, &community.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get community: %w", err)
	}
	return community, nil
}

func (s *CommunityStore) Rename(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE communities SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename community: %w", err)
	}
	return checkFound(result)
}

func (s *CommunityStore) AddMember(ctx context.Context, communityID, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO community_members (community_id, uid, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (community_id, uid) DO NOTHING
	`, communityID, uid, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (s *CommunityStore) RemoveMember(ctx context.Context, communityID, uid string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM community_members WHERE community_id = ? AND uid = ?
	`, communityID, uid)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return checkFound(result)
}

func (s *CommunityStore) ListMembers(ctx context.Context, communityID string) ([]*domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT community_id, uid, joined_at FROM community_members
		WHERE community_id = ? ORDER BY joined_at ASC
	`, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var members []*domain.Member
	for rows.Next() {
		member := &domain.Member{}
		if err := rows.Scan(&member.CommunityID, &member.UID, &member.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// IsMember reports whether uid belongs to the community.
func (s *CommunityStore) IsMember(ctx context.Context, communityID, uid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM community_members WHERE community_id = ? AND uid = ?
	`, communityID, uid).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

func checkFound(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hliang-dev/splitbill/internal/domain"
)

type ItemStore struct {
	db *sql.DB
}

func NewItemStore(db *sql.DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Create(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, bill_id, name, price, claimed_by) VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.BillID, item.Name, item.Price, item.ClaimedBy)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (s *ItemStore) GetByID(ctx context.Context, itemID string) (*domain.Item, error) {
	item := &domain.Item{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, bill_id, name, price, claimed_by FROM items WHERE id = ?
	`, itemID).Scan(&item.ID, &item.BillID, &item.Name, &item.Price, &item.ClaimedBy)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func (s *ItemStore) ListByBillID(ctx context.Context, billID string) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, name, price, claimed_by FROM items WHERE bill_id = ? ORDER BY rowid
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var items []*domain.Item
	for rows.Next() {
		item := &domain.Item{}
		if err := rows.Scan(&item.ID, &item.BillID, &item.Name, &item.Price, &item.ClaimedBy); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// ToggleClaim flips the claim state of an item for uid: an unclaimed item
// becomes claimed by uid, an item already claimed by uid becomes unclaimed,
// and an item claimed by someone else is left untouched. The read and the
// guarded update run in one transaction so two concurrent claimers can not
// both win. Returns the item as it stands after the call.
func (s *ItemStore) ToggleClaim(ctx context.Context, itemID, uid string) (*domain.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item := &domain.Item{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, bill_id, name, price, claimed_by FROM items WHERE id = ?
	`, itemID).Scan(&item.ID, &item.BillID, &item.Name, &item.Price, &item.ClaimedBy)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	switch {
	case item.ClaimedBy == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET claimed_by = ? WHERE id = ? AND claimed_by IS NULL
		`, uid, itemID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim item: %w", err)
		}
		item.ClaimedBy = &uid
	case *item.ClaimedBy == uid:
		_, err = tx.ExecContext(ctx, `
			UPDATE items SET claimed_by = NULL WHERE id = ? AND claimed_by = ?
		`, itemID, uid)
		if err != nil {
			return nil, fmt.Errorf("failed to unclaim item: %w", err)
		}
		item.ClaimedBy = nil
	default:
		// Claimed by someone else; no-op.
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return item, nil
}

func (s *ItemStore) Delete(ctx context.Context, itemID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return checkFound(result)
}

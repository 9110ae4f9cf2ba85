package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hliang-dev/splitbill/internal/domain"
)

type BillStore struct {
	db *sql.DB
}

func NewBillStore(db *sql.DB) *BillStore {
	return &BillStore{db: db}
}

// CreateWithItems persists the bill, its participants, and all items in a
// single transaction. Readers never observe a bill without its items or
// items without their bill; on any failure nothing is written.
func (s *BillStore) CreateWithItems(ctx context.Context, bill *domain.Bill, items []domain.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, community_id, created_by, created_at, bill_name, currency,
			exchange_rate_gbp_to_cny, total, storage_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, bill.ID, bill.CommunityID, bill.CreatedBy, bill.CreatedAt, bill.BillName, bill.Currency,
		bill.ExchangeRateGBPToCNY, bill.Total, bill.StoragePath)
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}

	for _, uid := range bill.Participants {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bill_participants (bill_id, uid) VALUES (?, ?)
		`, bill.ID, uid)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.BillID = bill.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, bill_id, name, price, claimed_by) VALUES (?, ?, ?, ?, ?)
		`, item.ID, item.BillID, item.Name, item.Price, item.ClaimedBy)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *BillStore) GetByID(ctx context.Context, billID string) (*domain.Bill, error) {
	bill := &domain.Bill{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, community_id, created_by, created_at, bill_name, currency,
			exchange_rate_gbp_to_cny, total, storage_path
		FROM bills WHERE id = ?
	`, billID).Scan(
		&bill.ID, &bill.CommunityID, &bill.CreatedBy, &bill.CreatedAt, &bill.BillName,
		&bill.Currency, &bill.ExchangeRateGBPToCNY, &bill.Total, &bill.StoragePath,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT uid FROM bill_participants WHERE bill_id = ? ORDER BY uid
	`, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		bill.Participants = append(bill.Participants, uid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	return bill, nil
}

// ListByCommunity returns the community's bills, newest first. Participants
// are not populated; use GetByID for the full record.
func (s *BillStore) ListByCommunity(ctx context.Context, communityID string) ([]*domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, community_id, created_by, created_at, bill_name, currency,
			exchange_rate_gbp_to_cny, total, storage_path
		FROM bills WHERE community_id = ? ORDER BY created_at DESC
	`, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var bills []*domain.Bill
	for rows.Next() {
		bill := &domain.Bill{}
		if err := rows.Scan(
			&bill.ID, &bill.CommunityID, &bill.CreatedBy, &bill.CreatedAt, &bill.BillName,
			&bill.Currency, &bill.ExchangeRateGBPToCNY, &bill.Total, &bill.StoragePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bills: %w", err)
	}
	return bills, nil
}

func (s *BillStore) Rename(ctx context.Context, billID, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE bills SET bill_name = ? WHERE id = ?`, name, billID)
	if err != nil {
		return fmt.Errorf("failed to rename bill: %w", err)
	}
	return checkFound(result)
}

func (s *BillStore) SetExchangeRate(ctx context.Context, billID string, rate float64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bills SET exchange_rate_gbp_to_cny = ? WHERE id = ?
	`, rate, billID)
	if err != nil {
		return fmt.Errorf("failed to set exchange rate: %w", err)
	}
	return checkFound(result)
}

func (s *BillStore) SetTotal(ctx context.Context, billID string, total float64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE bills SET total = ? WHERE id = ?`, total, billID)
	if err != nil {
		return fmt.Errorf("failed to set total: %w", err)
	}
	return checkFound(result)
}

func (s *BillStore) AddParticipant(ctx context.Context, billID, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bill_participants (bill_id, uid) VALUES (?, ?)
		ON CONFLICT (bill_id, uid) DO NOTHING
	`, billID, uid)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func (s *BillStore) RemoveParticipant(ctx context.Context, billID, uid string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM bill_participants WHERE bill_id = ? AND uid = ?
	`, billID, uid)
	if err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// Delete removes the bill; participants and items cascade.
func (s *BillStore) Delete(ctx context.Context, billID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bills WHERE id = ?`, billID)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	return checkFound(result)
}

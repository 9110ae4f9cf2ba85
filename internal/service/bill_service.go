package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/hliang-dev/splitbill/internal/domain"
	"github.com/hliang-dev/splitbill/internal/store"
)

// ErrForbidden is returned when the caller is not allowed to perform an
// operation (wrong owner, wrong creator, claiming rules).
var ErrForbidden = errors.New("forbidden")

// Share is what one participant owes on a bill: the items they claimed plus
// an equal cut of the unclaimed remainder.
type Share struct {
	UID       string  `json:"uid"`
	Private   float64 `json:"private"`
	Shared    float64 `json:"shared"`
	TotalGBP  float64 `json:"totalGBP"`
	TotalCNY  float64 `json:"totalCNY"`
	ItemCount int     `json:"itemCount"`
}

// BillView is a bill with its items and the computed per-participant split.
type BillView struct {
	Bill   *domain.Bill   `json:"bill"`
	Items  []*domain.Item `json:"items"`
	Shares []Share        `json:"shares"`
}

type BillService struct {
	bills *store.BillStore
	items *store.ItemStore
}

func NewBillService(bills *store.BillStore, items *store.ItemStore) *BillService {
	return &BillService{bills: bills, items: items}
}

// Get returns the bill with its items and the split computed from the
// current claim state.
func (s *BillService) Get(ctx context.Context, billID string) (*BillView, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	items, err := s.items.ListByBillID(ctx, billID)
	if err != nil {
		return nil, err
	}
	return &BillView{
		Bill:   bill,
		Items:  items,
		Shares: computeShares(bill, items),
	}, nil
}

// computeShares splits the bill: each participant owes the items they
// claimed exclusively, plus an equal per-head cut of the unclaimed items.
// CNY figures use the bill's stored exchange rate; amounts stay GBP in the
// database.
func computeShares(bill *domain.Bill, items []*domain.Item) []Share {
	if len(bill.Participants) == 0 {
		return []Share{}
	}

	private := make(map[string]float64)
	counts := make(map[string]int)
	shared := 0.0
	for _, item := range items {
		if item.Claimed() {
			private[*item.ClaimedBy] += item.Price
			counts[*item.ClaimedBy]++
		} else {
			shared += item.Price
		}
	}
	perHead := shared / float64(len(bill.Participants))

	shares := make([]Share, 0, len(bill.Participants))
	for _, uid := range bill.Participants {
		totalGBP := private[uid] + perHead
		shares = append(shares, Share{
			UID:       uid,
			Private:   private[uid],
			Shared:    perHead,
			TotalGBP:  totalGBP,
			TotalCNY:  totalGBP * bill.ExchangeRateGBPToCNY,
			ItemCount: counts[uid],
		})
	}
	return shares
}

func (s *BillService) Rename(ctx context.Context, billID, name string) error {
	return s.bills.Rename(ctx, billID, name)
}

func (s *BillService) SetExchangeRate(ctx context.Context, billID string, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("exchange rate must be positive")
	}
	return s.bills.SetExchangeRate(ctx, billID, rate)
}

// ToggleParticipant adds uid to the bill's participants, or removes them if
// already present. The creator always stays a participant.
func (s *BillService) ToggleParticipant(ctx context.Context, billID, uid string) error {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return err
	}
	for _, participant := range bill.Participants {
		if participant == uid {
			if uid == bill.CreatedBy {
				return ErrForbidden
			}
			return s.bills.RemoveParticipant(ctx, billID, uid)
		}
	}
	return s.bills.AddParticipant(ctx, billID, uid)
}

// Delete removes the bill and its items. Only the creator may delete.
func (s *BillService) Delete(ctx context.Context, billID, userID string) error {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return err
	}
	if bill.CreatedBy != userID {
		return ErrForbidden
	}
	return s.bills.Delete(ctx, billID)
}

// AddItem appends a manual item to the bill and recomputes the bill total
// as the sum of its items.
func (s *BillService) AddItem(ctx context.Context, billID, name string, price float64) (*domain.Item, error) {
	if name == "" {
		return nil, fmt.Errorf("item name is required")
	}
	if price <= 0 {
		return nil, fmt.Errorf("item price must be positive")
	}
	if _, err := s.bills.GetByID(ctx, billID); err != nil {
		return nil, err
	}

	item := &domain.Item{BillID: billID, Name: name, Price: price}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	if err := s.recomputeTotal(ctx, billID); err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteItem removes an item and recomputes the bill total.
func (s *BillService) DeleteItem(ctx context.Context, billID, itemID string) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.BillID != billID {
		return store.ErrNotFound
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return err
	}
	return s.recomputeTotal(ctx, billID)
}

// ToggleClaim flips the claim state of an item for userID and returns the
// item as stored afterwards.
func (s *BillService) ToggleClaim(ctx context.Context, billID, itemID, userID string) (*domain.Item, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.BillID != billID {
		return nil, store.ErrNotFound
	}
	return s.items.ToggleClaim(ctx, itemID, userID)
}

func (s *BillService) recomputeTotal(ctx context.Context, billID string) error {
	items, err := s.items.ListByBillID(ctx, billID)
	if err != nil {
		return err
	}
	total := 0.0
	for _, item := range items {
		total += item.Price
	}
	return s.bills.SetTotal(ctx, billID, total)
}

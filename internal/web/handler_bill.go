package web

import (
	"net/http"

	"github.com/hliang-dev/splitbill/internal/domain"
)

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.billStore.ListByCommunity(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	payloads := make([]map[string]any, 0, len(bills))
	for _, bill := range bills {
		payloads = append(payloads, billPayload(bill))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"bills": payloads})
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	view, err := s.bills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, itemPayload(item))
	}

	payload := billPayload(view.Bill)
	payload["items"] = items
	payload["shares"] = view.Shares
	s.respondJSON(w, http.StatusOK, payload)
}

// updateBillRequest covers the PATCH surface: any subset of a rename, an
// exchange-rate change, and a participant toggle may arrive in one call.
type updateBillRequest struct {
	UserID               string   `json:"userId"`
	Name                 *string  `json:"name"`
	ExchangeRateGBPToCNY *float64 `json:"exchangeRateGBPToCNY"`
	ToggleParticipant    *string  `json:"toggleParticipant"`
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var req updateBillRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == nil && req.ExchangeRateGBPToCNY == nil && req.ToggleParticipant == nil {
		s.respondError(w, http.StatusBadRequest, "no updates given")
		return
	}

	billID := r.PathValue("id")
	if req.Name != nil {
		if *req.Name == "" {
			s.respondError(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		if err := s.bills.Rename(r.Context(), billID, *req.Name); err != nil {
			s.respondServiceError(w, err)
			return
		}
	}
	if req.ExchangeRateGBPToCNY != nil {
		if err := s.bills.SetExchangeRate(r.Context(), billID, *req.ExchangeRateGBPToCNY); err != nil {
			s.respondServiceError(w, err)
			return
		}
	}
	if req.ToggleParticipant != nil {
		if err := s.bills.ToggleParticipant(r.Context(), billID, *req.ToggleParticipant); err != nil {
			s.respondServiceError(w, err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	view, err := s.bills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	if err := s.bills.Delete(r.Context(), r.PathValue("id"), userID); err != nil {
		s.respondServiceError(w, err)
		return
	}

	// Best effort: the bill row is gone either way.
	if view.Bill.StoragePath != "" {
		if err := s.objects.Delete(r.Context(), view.Bill.StoragePath); err != nil {
			s.logger.Error("delete receipt image failed", "storage_path", view.Bill.StoragePath, "error", err)
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type addItemRequest struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	item, err := s.bills.AddItem(r.Context(), r.PathValue("id"), req.Name, req.Price)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, itemPayload(item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	err := s.bills.DeleteItem(r.Context(), r.PathValue("id"), r.PathValue("itemId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type claimRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleToggleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	item, err := s.bills.ToggleClaim(r.Context(), r.PathValue("id"), r.PathValue("itemId"), req.UserID)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, itemPayload(item))
}

func billPayload(bill *domain.Bill) map[string]any {
	return map[string]any{
		"id":                   bill.ID,
		"communityId":          bill.CommunityID,
		"createdBy":            bill.CreatedBy,
		"createdAt":            bill.CreatedAt,
		"billName":             bill.BillName,
		"currency":             bill.Currency,
		"exchangeRateGBPToCNY": bill.ExchangeRateGBPToCNY,
		"participants":         bill.Participants,
		"total":                bill.Total,
		"storagePath":          bill.StoragePath,
	}
}

func itemPayload(item *domain.Item) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"billId":    item.BillID,
		"name":      item.Name,
		"price":     item.Price,
		"claimedBy": item.ClaimedBy,
	}
}

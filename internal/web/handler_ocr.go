package web

import (
	"net/http"

	"github.com/hliang-dev/splitbill/internal/service"
)

const defaultExchangeRateGBPToCNY = 9

type ocrRequest struct {
	CommunityID          string   `json:"communityId"`
	StoragePath          string   `json:"storagePath"`
	CreatedBy            string   `json:"createdBy"`
	ExchangeRateGBPToCNY *float64 `json:"exchangeRateGBPToCNY"`
}

// handleOCR runs the receipt pipeline: fetch the stored image, analyze it,
// extract items, and create the bill.
func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	var req ocrRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.CommunityID == "" || req.StoragePath == "" || req.CreatedBy == "" {
		s.respondError(w, http.StatusBadRequest, "Missing communityId, storagePath or createdBy")
		return
	}

	// The default applies only when the field is absent; a supplied rate
	// must be valid.
	rate := float64(defaultExchangeRateGBPToCNY)
	if req.ExchangeRateGBPToCNY != nil {
		if *req.ExchangeRateGBPToCNY <= 0 {
			s.respondError(w, http.StatusBadRequest, "exchangeRateGBPToCNY must be positive")
			return
		}
		rate = *req.ExchangeRateGBPToCNY
	}

	result, err := s.ingest.Ingest(r.Context(), service.IngestRequest{
		CommunityID:          req.CommunityID,
		StoragePath:          req.StoragePath,
		CreatedBy:            req.CreatedBy,
		ExchangeRateGBPToCNY: rate,
	})
	if err != nil {
		s.logger.Error("ingest failed", "storage_path", req.StoragePath, "error", err)
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

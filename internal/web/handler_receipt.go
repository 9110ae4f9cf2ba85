package web

import (
	"bytes"
	"io"
	"net/http"
	"path"
)

const maxReceiptSize = 50 * 1024 * 1024 // 50 MB

// allowedImageTypes is the set of MIME types accepted for uploaded receipt
// images, matched by magic-byte sniffing via net/http.DetectContentType.
// WebP is checked separately: the stdlib sniffer has no WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true when data is an
// accepted image format.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// handleUploadReceipt stores an uploaded receipt image and returns its
// storage path for a subsequent /api/ocr call.
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	communityID := r.PathValue("id")

	if err := r.ParseMultipartForm(maxReceiptSize); err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	ok, err := s.communities.IsMember(r.Context(), communityID, r.FormValue("userId"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if !ok {
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer closeWithLog(file, "upload file", s.logger)

	imageData, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("read upload failed", "community_id", communityID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	mimeType, ok := allowedImageMIME(imageData)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "unsupported image format")
		return
	}

	storagePath, err := s.objects.Save(r.Context(), path.Join("receipts", communityID), mimeType, bytes.NewReader(imageData))
	if err != nil {
		s.logger.Error("save receipt failed", "community_id", communityID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	s.respondJSON(w, http.StatusCreated, map[string]string{"storagePath": storagePath})
}

// handleGetBillImage streams the bill's original receipt image.
func (s *Server) handleGetBillImage(w http.ResponseWriter, r *http.Request) {
	view, err := s.bills.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	if view.Bill.StoragePath == "" {
		s.respondError(w, http.StatusNotFound, "bill has no stored image")
		return
	}

	reader, mimeType, err := s.objects.Get(r.Context(), view.Bill.StoragePath)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	defer closeWithLog(reader, "receipt image", s.logger)

	w.Header().Set("Content-Type", mimeType)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("stream receipt image failed", "bill_id", view.Bill.ID, "error", err)
	}
}

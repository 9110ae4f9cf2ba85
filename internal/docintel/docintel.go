// Package docintel defines the typed contract with the receipt analysis
// service: submit image bytes, receive a structured result describing the
// recognized receipt.
package docintel

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when an analyzer is constructed or invoked
// without the credentials it needs.
var ErrNotConfigured = errors.New("document analysis service not configured")

// ErrPollTimeout is returned when an analysis job does not reach a terminal
// state within the configured polling deadline.
var ErrPollTimeout = errors.New("document analysis polling timed out")

// Analyzer converts a receipt image into a structured analysis result.
type Analyzer interface {
	AnalyzeReceipt(ctx context.Context, imageData []byte, mimeType string) (*AnalyzeResult, error)
}

// AnalyzeResult is the subset of the analysis service's response the pipeline
// consumes. Fields the service did not detect are nil; callers must handle
// absence explicitly rather than rely on zero values.
type AnalyzeResult struct {
	ModelID   string
	Documents []Document
}

// Document is one recognized document in the result. Receipt analysis
// normally yields exactly one; the pipeline only consults the first.
type Document struct {
	DocType string
	Fields  Fields
}

// Fields holds the named receipt fields the pipeline reads.
type Fields struct {
	MerchantName *StringField
	Items        []ItemField
	Total        *CurrencyField

	// Seen lists every field name present on the document, recognized or
	// not, for the diagnostic payload.
	Seen []string
}

// StringField is a detected string value.
type StringField struct {
	Value string
}

// CurrencyField is a detected monetary amount with its currency code.
type CurrencyField struct {
	Amount       float64
	CurrencyCode string
}

// ItemField is one entry of the receipt's Items array. Either sub-field may
// be absent.
type ItemField struct {
	Description *StringField
	TotalPrice  *CurrencyField
}

// FirstDocument returns the first recognized document, or nil if the result
// contains none.
func (r *AnalyzeResult) FirstDocument() *Document {
	if r == nil || len(r.Documents) == 0 {
		return nil
	}
	return &r.Documents[0]
}

// Merchant returns the detected merchant name of the first document, or ""
// when absent.
func (r *AnalyzeResult) Merchant() string {
	doc := r.FirstDocument()
	if doc == nil || doc.Fields.MerchantName == nil {
		return ""
	}
	return doc.Fields.MerchantName.Value
}

// Package receipt turns a structured analysis result into the normalized
// item list and total that get persisted as a bill.
package receipt

import (
	"time"

	"github.com/hliang-dev/splitbill/internal/docintel"
)

// fallbackItemName labels items whose description was not detected.
const fallbackItemName = "Unknown Item"

// LineItem is one extracted receipt entry.
type LineItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Extraction is the result of parsing one analysis result.
type Extraction struct {
	Items []LineItem
	Total float64
}

// Parse extracts items and a total from the analysis result.
//
// Only the first document is consulted; extra documents (multi-page or
// multi-receipt uploads) are ignored. A result with no documents or no items
// degrades to an empty extraction rather than an error.
//
// Items are kept only when their price is strictly positive. This drops both
// missing-price entries and genuinely zero-priced items (free samples) — the
// two are indistinguishable here, and the behavior is kept deliberately.
//
// The service's reported total wins whenever it is positive, even when it
// disagrees with the item sum. A missing, zero, or negative total is
// recomputed as the sum of retained item prices; the service sometimes fails
// to read a printed total even when the line items are legible.
func Parse(result *docintel.AnalyzeResult) Extraction {
	doc := result.FirstDocument()
	if doc == nil {
		return Extraction{Items: []LineItem{}}
	}

	items := make([]LineItem, 0, len(doc.Fields.Items))
	for _, entry := range doc.Fields.Items {
		name := fallbackItemName
		if entry.Description != nil {
			name = entry.Description.Value
		}
		price := 0.0
		if entry.TotalPrice != nil {
			price = entry.TotalPrice.Amount
		}
		if price > 0 {
			items = append(items, LineItem{Name: name, Price: price})
		}
	}

	total := 0.0
	if doc.Fields.Total != nil {
		total = doc.Fields.Total.Amount
	}
	if total <= 0 {
		total = 0
		for _, item := range items {
			total += item.Price
		}
	}

	return Extraction{Items: items, Total: total}
}

// BillName derives the default display name for a new bill: the merchant
// name when detected, otherwise a timestamp label.
func BillName(result *docintel.AnalyzeResult, now time.Time) string {
	if merchant := result.Merchant(); merchant != "" {
		return merchant + " Receipt"
	}
	return "Bill " + now.Format("02/01/2006, 15:04:05")
}

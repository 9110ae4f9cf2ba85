package receipt

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hliang-dev/splitbill/internal/docintel"
)

func str(s string) *docintel.StringField {
	return &docintel.StringField{Value: s}
}

func gbp(amount float64) *docintel.CurrencyField {
	return &docintel.CurrencyField{Amount: amount, CurrencyCode: "GBP"}
}

func resultWith(fields docintel.Fields) *docintel.AnalyzeResult {
	return &docintel.AnalyzeResult{
		Documents: []docintel.Document{{DocType: "receipt", Fields: fields}},
	}
}

func TestParseEmptyResult(t *testing.T) {
	extraction := Parse(&docintel.AnalyzeResult{})

	assert.Empty(t, extraction.Items)
	assert.Zero(t, extraction.Total)
}

func TestParseNilResult(t *testing.T) {
	extraction := Parse(nil)

	assert.Empty(t, extraction.Items)
	assert.Zero(t, extraction.Total)
}

func TestParseNoItemsField(t *testing.T) {
	extraction := Parse(resultWith(docintel.Fields{MerchantName: str("Tesco")}))

	assert.Empty(t, extraction.Items)
	assert.Zero(t, extraction.Total)
}

func TestParseDropsZeroPricedItems(t *testing.T) {
	// Zero-priced bread is dropped and the total is reconciled from the one
	// retained item.
	extraction := Parse(resultWith(docintel.Fields{
		Items: []docintel.ItemField{
			{Description: str("Milk"), TotalPrice: gbp(1.50)},
			{Description: str("Bread"), TotalPrice: gbp(0)},
		},
	}))

	require.Len(t, extraction.Items, 1)
	assert.Equal(t, LineItem{Name: "Milk", Price: 1.50}, extraction.Items[0])
	assert.Equal(t, 1.50, extraction.Total)
}

func TestParseFallbackNameForMissingDescription(t *testing.T) {
	extraction := Parse(resultWith(docintel.Fields{
		Items: []docintel.ItemField{
			{TotalPrice: gbp(3.20)},
		},
	}))

	require.Len(t, extraction.Items, 1)
	assert.Equal(t, "Unknown Item", extraction.Items[0].Name)
	assert.Equal(t, 3.20, extraction.Items[0].Price)
}

func TestParseReportedTotalWins(t *testing.T) {
	// The service's total wins when positive, even when inconsistent with
	// the item sum.
	extraction := Parse(resultWith(docintel.Fields{
		Items: []docintel.ItemField{
			{Description: str("Pizza"), TotalPrice: gbp(6.00)},
			{Description: str("Beer"), TotalPrice: gbp(3.50)},
		},
		Total: gbp(12.00),
	}))

	assert.Equal(t, 12.00, extraction.Total)
}

func TestParseNegativeTotalRecomputed(t *testing.T) {
	extraction := Parse(resultWith(docintel.Fields{
		Items: []docintel.ItemField{
			{Description: str("Milk"), TotalPrice: gbp(1.50)},
			{Description: str("Eggs"), TotalPrice: gbp(2.00)},
		},
		Total: gbp(-1),
	}))

	assert.Equal(t, 3.50, extraction.Total)
}

func TestParseNoRetainedItemsNoTotal(t *testing.T) {
	extraction := Parse(resultWith(docintel.Fields{
		Items: []docintel.ItemField{
			{Description: str("Freebie"), TotalPrice: gbp(0)},
		},
	}))

	assert.Empty(t, extraction.Items)
	assert.Zero(t, extraction.Total)
}

func TestParseUsesFirstDocumentOnly(t *testing.T) {
	result := &docintel.AnalyzeResult{
		Documents: []docintel.Document{
			{Fields: docintel.Fields{
				Items: []docintel.ItemField{{Description: str("Milk"), TotalPrice: gbp(1.00)}},
			}},
			{Fields: docintel.Fields{
				Items: []docintel.ItemField{{Description: str("Gold Bar"), TotalPrice: gbp(9999)}},
			}},
		},
	}

	extraction := Parse(result)

	require.Len(t, extraction.Items, 1)
	assert.Equal(t, "Milk", extraction.Items[0].Name)
	assert.Equal(t, 1.00, extraction.Total)
}

func TestParseAllItemsPositiveAndNamed(t *testing.T) {
	extraction := Parse(resultWith(docintel.Fields{
		Items: []docintel.ItemField{
			{Description: str("A"), TotalPrice: gbp(1)},
			{TotalPrice: gbp(2)},
			{Description: str("C")},
			{Description: str("D"), TotalPrice: gbp(-5)},
		},
	}))

	for _, item := range extraction.Items {
		assert.Greater(t, item.Price, 0.0)
		assert.NotEmpty(t, item.Name)
	}
}

func TestBillNameFromMerchant(t *testing.T) {
	result := resultWith(docintel.Fields{MerchantName: str("Tesco")})

	assert.Equal(t, "Tesco Receipt", BillName(result, time.Now()))
}

func TestBillNameFallbackTimestamp(t *testing.T) {
	now := time.Date(2024, 3, 7, 18, 45, 9, 0, time.UTC)

	name := BillName(&docintel.AnalyzeResult{}, now)

	assert.Regexp(t, regexp.MustCompile(`^Bill \d{2}/\d{2}/\d{4}, \d{2}:\d{2}:\d{2}$`), name)
	assert.Equal(t, "Bill 07/03/2024, 18:45:09", name)
}

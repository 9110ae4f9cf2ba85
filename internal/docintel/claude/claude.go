// Package claude implements docintel.Analyzer on top of the Anthropic
// Messages API. It is the fallback backend for deployments without a
// document-intelligence endpoint; the model is prompted to transcribe the
// receipt into a line format which is mapped onto the same typed result the
// pipeline consumes.
package claude

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/hliang-dev/splitbill/internal/docintel"
)

const receiptPrompt = `Read this receipt image and respond with plain text only, in exactly this format:
MERCHANT: <store name, or blank if unreadable>
TOTAL: <printed total as a plain number, or blank if none printed>
ITEM: <description> | <line price as a plain number>
One ITEM line per line item. No other text.`

type ClaudeAnalyzer struct {
	client *anthropic.Client
	model  string
}

func NewClaudeAnalyzer(apiKey, model string, opts ...anthropic.ClientOption) (*ClaudeAnalyzer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key required", docintel.ErrNotConfigured)
	}
	return &ClaudeAnalyzer{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}, nil
}

func (a *ClaudeAnalyzer) AnalyzeReceipt(ctx context.Context, imageData []byte, mimeType string) (*docintel.AnalyzeResult, error) {
	resp, err := a.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
						anthropic.MessagesContentSourceTypeBase64, mimeType, imageData,
					)),
					anthropic.NewTextMessageContent(receiptPrompt),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}

	return parseModelOutput(resp.GetFirstContentText()), nil
}

// parseModelOutput maps the prompted line format onto the typed analysis
// schema. A response with no recognizable lines yields a result with zero
// documents, which the pipeline treats as "nothing extracted".
func parseModelOutput(raw string) *docintel.AnalyzeResult {
	doc := docintel.Document{DocType: "receipt"}
	recognized := false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "MERCHANT:"):
			recognized = true
			if name := strings.TrimSpace(strings.TrimPrefix(line, "MERCHANT:")); name != "" {
				doc.Fields.MerchantName = &docintel.StringField{Value: name}
				doc.Fields.Seen = append(doc.Fields.Seen, "MerchantName")
			}
		case strings.HasPrefix(line, "TOTAL:"):
			recognized = true
			if amount, ok := parseAmount(strings.TrimPrefix(line, "TOTAL:")); ok {
				doc.Fields.Total = &docintel.CurrencyField{Amount: amount, CurrencyCode: "GBP"}
				doc.Fields.Seen = append(doc.Fields.Seen, "Total")
			}
		case strings.HasPrefix(line, "ITEM:"):
			recognized = true
			item := docintel.ItemField{}
			desc, priceStr, _ := strings.Cut(strings.TrimPrefix(line, "ITEM:"), "|")
			if desc = strings.TrimSpace(desc); desc != "" {
				item.Description = &docintel.StringField{Value: desc}
			}
			if amount, ok := parseAmount(priceStr); ok {
				item.TotalPrice = &docintel.CurrencyField{Amount: amount, CurrencyCode: "GBP"}
			}
			doc.Fields.Items = append(doc.Fields.Items, item)
		}
	}

	if len(doc.Fields.Items) > 0 {
		doc.Fields.Seen = append(doc.Fields.Seen, "Items")
	}
	if !recognized {
		return &docintel.AnalyzeResult{ModelID: "claude"}
	}
	return &docintel.AnalyzeResult{ModelID: "claude", Documents: []docintel.Document{doc}}
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "£$€¥")
	if s == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

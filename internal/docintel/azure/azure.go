// Package azure implements docintel.Analyzer against the Azure Document
// Intelligence REST API using the prebuilt receipt model.
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hliang-dev/splitbill/internal/docintel"
)

// Config carries everything the client needs. Credentials are passed in
// explicitly; the client never reads the process environment.
type Config struct {
	Endpoint   string
	Key        string
	ModelID    string // e.g. "prebuilt-receipt"
	APIVersion string // e.g. "2024-11-30"

	// PollInterval is the delay between status checks of a running analysis
	// job. PollTimeout bounds the total wait; when exceeded the analysis
	// fails with docintel.ErrPollTimeout.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.Key == "" {
		return nil, fmt.Errorf("%w: endpoint and key required", docintel.ErrNotConfigured)
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "prebuilt-receipt"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-11-30"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Minute
	}
	return &Client{cfg: cfg, client: &http.Client{}}, nil
}

// request and response types mirror the Document Intelligence wire format.
type analyzeRequest struct {
	Base64Source string `json:"base64Source"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

type operationResponse struct {
	Status        string             `json:"status"`
	Error         *apiError          `json:"error"`
	AnalyzeResult *wireAnalyzeResult `json:"analyzeResult"`
}

type wireAnalyzeResult struct {
	ModelID   string         `json:"modelId"`
	Documents []wireDocument `json:"documents"`
}

type wireDocument struct {
	DocType string               `json:"docType"`
	Fields  map[string]wireField `json:"fields"`
}

type wireField struct {
	Type          string               `json:"type"`
	ValueString   string               `json:"valueString"`
	ValueCurrency *wireCurrency        `json:"valueCurrency"`
	ValueArray    []wireField          `json:"valueArray"`
	ValueObject   map[string]wireField `json:"valueObject"`
}

type wireCurrency struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
}

// AnalyzeReceipt submits the image for analysis and polls the returned
// operation until it reaches a terminal state. The image is embedded in the
// request as base64, matching the service's JSON source format.
func (c *Client) AnalyzeReceipt(ctx context.Context, imageData []byte, mimeType string) (*docintel.AnalyzeResult, error) {
	if c.cfg.Endpoint == "" || c.cfg.Key == "" {
		return nil, docintel.ErrNotConfigured
	}

	opURL, err := c.submit(ctx, imageData)
	if err != nil {
		return nil, err
	}
	return c.poll(ctx, opURL)
}

func (c *Client) submit(ctx context.Context, imageData []byte) (string, error) {
	payload, err := json.Marshal(analyzeRequest{
		Base64Source: base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	url := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.cfg.Endpoint, c.cfg.ModelID, c.cfg.APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call analysis service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		// The service rejected the job outright; surface its error payload.
		return "", decodeAPIError(resp)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("analysis service accepted job but returned no Operation-Location")
	}
	return opURL, nil
}

// poll checks the operation until it succeeds, fails, or the configured
// deadline passes.
func (c *Client) poll(ctx context.Context, opURL string) (*docintel.AnalyzeResult, error) {
	deadline := time.Now().Add(c.cfg.PollTimeout)

	for {
		op, err := c.getOperation(ctx, opURL)
		if err != nil {
			return nil, err
		}

		switch op.Status {
		case "succeeded":
			return convertResult(op.AnalyzeResult), nil
		case "failed":
			if op.Error != nil {
				return nil, fmt.Errorf("analysis failed: %s: %s", op.Error.Code, op.Error.Message)
			}
			return nil, fmt.Errorf("analysis failed with no error detail")
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", docintel.ErrPollTimeout, c.cfg.PollTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
	}
}

func (c *Client) getOperation(ctx context.Context, opURL string) (*operationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.Key)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to poll analysis operation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var op operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, fmt.Errorf("failed to decode operation response: %w", err)
	}
	return &op, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil {
		return fmt.Errorf("analysis service returned status %d: %s: %s",
			resp.StatusCode, er.Error.Code, er.Error.Message)
	}
	return fmt.Errorf("analysis service returned status %d: %s", resp.StatusCode, body)
}

// convertResult maps the wire format onto the typed schema the pipeline
// consumes, recording which field names were present.
func convertResult(wire *wireAnalyzeResult) *docintel.AnalyzeResult {
	if wire == nil {
		return &docintel.AnalyzeResult{}
	}

	result := &docintel.AnalyzeResult{ModelID: wire.ModelID}
	for _, doc := range wire.Documents {
		converted := docintel.Document{DocType: doc.DocType}

		for name := range doc.Fields {
			converted.Fields.Seen = append(converted.Fields.Seen, name)
		}

		if f, ok := doc.Fields["MerchantName"]; ok && f.ValueString != "" {
			converted.Fields.MerchantName = &docintel.StringField{Value: f.ValueString}
		}
		if f, ok := doc.Fields["Total"]; ok && f.ValueCurrency != nil {
			converted.Fields.Total = &docintel.CurrencyField{
				Amount:       f.ValueCurrency.Amount,
				CurrencyCode: f.ValueCurrency.CurrencyCode,
			}
		}
		if f, ok := doc.Fields["Items"]; ok {
			for _, entry := range f.ValueArray {
				if entry.ValueObject == nil {
					continue
				}
				item := docintel.ItemField{}
				if d, ok := entry.ValueObject["Description"]; ok && d.ValueString != "" {
					item.Description = &docintel.StringField{Value: d.ValueString}
				}
				if p, ok := entry.ValueObject["TotalPrice"]; ok && p.ValueCurrency != nil {
					item.TotalPrice = &docintel.CurrencyField{
						Amount:       p.ValueCurrency.Amount,
						CurrencyCode: p.ValueCurrency.CurrencyCode,
					}
				}
				converted.Fields.Items = append(converted.Fields.Items, item)
			}
		}

		result.Documents = append(result.Documents, converted)
	}
	return result
}

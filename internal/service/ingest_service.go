// Package service implements the application logic between the HTTP handlers
// and the stores: the receipt ingestion pipeline, bill splitting, and
// community membership rules.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/hliang-dev/splitbill/internal/docintel"
	"github.com/hliang-dev/splitbill/internal/domain"
	"github.com/hliang-dev/splitbill/internal/metrics"
	"github.com/hliang-dev/splitbill/internal/objstore"
	"github.com/hliang-dev/splitbill/internal/receipt"
)

// Pipeline stages, used to tag errors and failure metrics.
const (
	StageRetrieve = "retrieve"
	StageAnalyze  = "analyze"
	StagePersist  = "persist"
)

// StageError wraps a pipeline failure with the stage it occurred in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// billCreator is the slice of BillStore the pipeline needs.
type billCreator interface {
	CreateWithItems(ctx context.Context, bill *domain.Bill, items []domain.Item) error
}

// IngestRequest describes one receipt to turn into a bill. All fields are
// validated by the caller; the pipeline assumes they are present.
type IngestRequest struct {
	CommunityID          string
	StoragePath          string
	CreatedBy            string
	ExchangeRateGBPToCNY float64
}

// IngestResult reports the created bill plus diagnostic detail about what
// the analysis service returned.
type IngestResult struct {
	BillID     string      `json:"billId"`
	ItemsCount int         `json:"itemsCount"`
	Total      float64     `json:"total"`
	Debug      IngestDebug `json:"debug"`
}

// IngestDebug surfaces what the analyzer saw so a bad extraction can be
// diagnosed from the response alone.
type IngestDebug struct {
	DocumentsCount int                `json:"documentsCount"`
	DocType        string             `json:"docType"`
	FirstDocFields []string           `json:"firstDocFields"`
	ParsedItems    []receipt.LineItem `json:"parsedItems"`
}

// IngestService runs the receipt pipeline: retrieve the image, analyze it,
// extract items, and persist the bill atomically.
type IngestService struct {
	objects  objstore.ObjectStore
	analyzer docintel.Analyzer
	bills    billCreator
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewIngestService(objects objstore.ObjectStore, analyzer docintel.Analyzer, bills billCreator, m *metrics.Metrics) *IngestService {
	return &IngestService{
		objects:  objects,
		analyzer: analyzer,
		bills:    bills,
		metrics:  m,
		now:      time.Now,
	}
}

// Ingest executes the full pipeline for one receipt. Failures carry the
// stage they occurred in; a receipt the analyzer could not read at all still
// produces a bill with zero items.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	s.metrics.IngestRuns.Inc()

	imageData, mimeType, err := s.retrieveImage(ctx, req.StoragePath)
	if err != nil {
		return nil, s.fail(StageRetrieve, err)
	}

	start := s.now()
	result, err := s.analyzer.AnalyzeReceipt(ctx, imageData, mimeType)
	s.metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, s.fail(StageAnalyze, err)
	}

	extraction := receipt.Parse(result)
	now := s.now()

	bill := &domain.Bill{
		ID:                   uuid.NewString(),
		CommunityID:          req.CommunityID,
		CreatedBy:            req.CreatedBy,
		CreatedAt:            now.UnixMilli(),
		BillName:             receipt.BillName(result, now),
		Currency:             "GBP",
		ExchangeRateGBPToCNY: req.ExchangeRateGBPToCNY,
		Participants:         []string{req.CreatedBy},
		Total:                extraction.Total,
		StoragePath:          req.StoragePath,
	}

	items := make([]domain.Item, 0, len(extraction.Items))
	for _, line := range extraction.Items {
		items = append(items, domain.Item{Name: line.Name, Price: line.Price})
	}

	if err := s.bills.CreateWithItems(ctx, bill, items); err != nil {
		return nil, s.fail(StagePersist, err)
	}

	return &IngestResult{
		BillID:     bill.ID,
		ItemsCount: len(items),
		Total:      extraction.Total,
		Debug:      buildDebug(result, extraction),
	}, nil
}

func (s *IngestService) retrieveImage(ctx context.Context, storagePath string) ([]byte, string, error) {
	reader, mimeType, err := s.objects.Get(ctx, storagePath)
	if err != nil {
		return nil, "", err
	}
	defer reader.Close()

	imageData, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(imageData) == 0 {
		return nil, "", errors.New("image object is empty")
	}
	return imageData, mimeType, nil
}

func (s *IngestService) fail(stage string, err error) error {
	s.metrics.IngestFailures.WithLabelValues(stage).Inc()
	return &StageError{Stage: stage, Err: err}
}

func buildDebug(result *docintel.AnalyzeResult, extraction receipt.Extraction) IngestDebug {
	debug := IngestDebug{
		FirstDocFields: []string{},
		ParsedItems:    extraction.Items,
	}
	if result != nil {
		debug.DocumentsCount = len(result.Documents)
	}
	if doc := result.FirstDocument(); doc != nil {
		debug.DocType = doc.DocType
		if doc.Fields.Seen != nil {
			debug.FirstDocFields = doc.Fields.Seen
		}
	}
	return debug
}

package main

import (
	"log"
	"log/slog"

	"github.com/joho/godotenv"

	"github.com/hliang-dev/splitbill/internal/config"
	"github.com/hliang-dev/splitbill/internal/db"
	"github.com/hliang-dev/splitbill/internal/docintel"
	"github.com/hliang-dev/splitbill/internal/docintel/azure"
	"github.com/hliang-dev/splitbill/internal/docintel/claude"
	"github.com/hliang-dev/splitbill/internal/logging"
	"github.com/hliang-dev/splitbill/internal/metrics"
	"github.com/hliang-dev/splitbill/internal/objstore/local"
	"github.com/hliang-dev/splitbill/internal/service"
	"github.com/hliang-dev/splitbill/internal/store"
	"github.com/hliang-dev/splitbill/internal/web"
)

func main() {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	billStore := store.NewBillStore(database)
	itemStore := store.NewItemStore(database)
	communityStore := store.NewCommunityStore(database)

	analyzer, err := newAnalyzer(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize analyzer", "error", err)
		return
	}

	objects, err := local.NewLocalObjectStore(cfg.ReceiptPath)
	if err != nil {
		logger.Error("failed to initialize object store", "error", err)
		return
	}

	m := metrics.New()

	server := web.NewServer(
		service.NewIngestService(objects, analyzer, billStore, m),
		service.NewBillService(billStore, itemStore),
		service.NewCommunityService(communityStore),
		billStore,
		objects,
		database,
		m,
		logger,
	)

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newAnalyzer(cfg *config.Config, logger *slog.Logger) (docintel.Analyzer, error) {
	switch cfg.AnalyzerBackend {
	case "claude":
		logger.Info("using Claude analyzer backend", "model", cfg.ClaudeModel)
		return claude.NewClaudeAnalyzer(cfg.ClaudeAPIKey, cfg.ClaudeModel)
	default:
		logger.Info("using Azure Document Intelligence backend", "model", cfg.AzureModelID)
		return azure.NewClient(azure.Config{
			Endpoint:     cfg.AzureEndpoint,
			Key:          cfg.AzureKey,
			ModelID:      cfg.AzureModelID,
			APIVersion:   cfg.AzureAPIVersion,
			PollInterval: cfg.PollInterval,
			PollTimeout:  cfg.PollTimeout,
		})
	}
}

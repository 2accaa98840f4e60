// Package backend builds the backing medium selected by DATA_BACKEND.
package backend

import (
	"context"
	"fmt"

	"gastos/internal/log"
	"gastos/internal/sheets"
	"gastos/internal/sheets/csvfile"
	gsheet "gastos/internal/sheets/google"
	"gastos/internal/sheets/memory"
	"gastos/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	switch cfg.Type {
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return &BackendResult{Medium: memory.New()}, nil
	case CSVBackend:
		return f.createCSVBackend(cfg)
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) createCSVBackend(cfg Config) (*BackendResult, error) {
	dir := cfg.DataDirectory
	if dir == "" {
		dir = "data"
	}
	store := csvfile.New(dir, nil)
	f.logger.Info("Initialized csv backend", "data_directory", dir)
	return &BackendResult{Medium: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(cfg Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
	return &BackendResult{Medium: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	worksheets := map[string]string{}
	if cfg.MovementsSheetName != "" {
		worksheets[sheets.MovementsTable] = cfg.MovementsSheetName
	}
	if cfg.CategoriesSheetName != "" {
		worksheets[sheets.CategoriesTable] = cfg.CategoriesSheetName
	}
	cli, err := gsheet.NewClient(ctx, gsheet.Config{
		Spreadsheet:     cfg.GoogleSpreadsheet,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		Worksheets:      worksheets,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets backend", "service_account", cli.ServiceAccount())
	return &BackendResult{Medium: cli}, nil
}

package backend

import (
	"context"
	"fmt"

	"gastos/internal/config"
	"gastos/internal/sheets"
)

// BackendType names a backing medium.
type BackendType string

const (
	MemoryBackend BackendType = config.BackendMemory
	CSVBackend    BackendType = config.BackendCSV
	SQLiteBackend BackendType = config.BackendSQLite
	SheetsBackend BackendType = config.BackendSheets
)

func (t BackendType) String() string { return string(t) }

// IsValid reports whether t is a known backend type.
func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, CSVBackend, SQLiteBackend, SheetsBackend:
		return true
	}
	return false
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the medium and an optional cleanup function
type BackendResult struct {
	Medium  sheets.Medium
	Cleanup CleanupFunc
}

// Close runs the cleanup function, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// csv
	DataDirectory string

	// sqlite
	SQLiteDBPath string

	// sheets
	GoogleSpreadsheet     string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	MovementsSheetName    string
	CategoriesSheetName   string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:                  backendType,
		DataDirectory:         appConfig.DataDir,
		SQLiteDBPath:          appConfig.SQLiteDBPath,
		GoogleSpreadsheet:     appConfig.GoogleSpreadsheet,
		GoogleCredentialsFile: appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON: appConfig.GoogleCredentialsJSON,
		MovementsSheetName:    appConfig.MovementsSheetName,
		CategoriesSheetName:   appConfig.CategoriesSheetName,
	}, nil
}

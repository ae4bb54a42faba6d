package backend

import (
	"context"
	"fmt"

	"findash/internal/log"
	"findash/internal/sheets"
	gsheet "findash/internal/sheets/google"
	"findash/internal/sheets/memory"
)

// Factory creates exporters from configuration.
type Factory interface {
	// CreateExporter returns nil without error for NoExporter.
	CreateExporter(ctx context.Context, config Config) (sheets.Exporter, error)
}

type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentSheets})
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentSheets)}
}

func (f *DefaultFactory) CreateExporter(ctx context.Context, config Config) (sheets.Exporter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Type {
	case SheetsExporter:
		cli, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   config.SpreadsheetID,
			CredentialsJSON: config.CredentialsJSON,
			CredentialsFile: config.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Google Sheets exporter", "spreadsheet_id", config.SpreadsheetID)
		return cli, nil
	case MemoryExporter:
		f.logger.InfoContext(ctx, "Initialized memory exporter")
		return memory.New(), nil
	default:
		f.logger.InfoContext(ctx, "Spreadsheet export disabled")
		return nil, nil
	}
}

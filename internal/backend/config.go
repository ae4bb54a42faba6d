// Package backend picks the spreadsheet exporter a binary writes to.
package backend

import (
	"fmt"

	"findash/internal/config"
)

// ExporterType names an exporter implementation.
type ExporterType string

const (
	SheetsExporter ExporterType = "sheets"
	MemoryExporter ExporterType = "memory"
	NoExporter     ExporterType = "none"
)

func (t ExporterType) String() string {
	return string(t)
}

func (t ExporterType) IsValid() bool {
	switch t {
	case SheetsExporter, MemoryExporter, NoExporter:
		return true
	default:
		return false
	}
}

// Config holds what an exporter needs.
type Config struct {
	Type ExporterType

	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
}

// FromAppConfig selects the Google exporter when a spreadsheet is configured.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	c := Config{
		Type:            NoExporter,
		SpreadsheetID:   appConfig.GoogleSpreadsheetID,
		CredentialsJSON: appConfig.GoogleServiceAccountJSON,
		CredentialsFile: appConfig.GoogleServiceAccountFile,
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = appConfig.GoogleApplicationCredsFile
	}
	if c.SpreadsheetID != "" {
		c.Type = SheetsExporter
	}
	return c, nil
}

// Validate checks the fields the chosen type requires.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid exporter type: %s", c.Type)
	}
	if c.Type == SheetsExporter {
		if c.SpreadsheetID == "" {
			return fmt.Errorf("spreadsheet ID is required for sheets exporter")
		}
		if c.CredentialsJSON == "" && c.CredentialsFile == "" {
			return fmt.Errorf("service account credentials are required for sheets exporter")
		}
	}
	return nil
}

// Package sheets provides a plugin wrapper for the Google Sheets writer.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/autoexpense/internal/plugins"
	"github.com/ArionMiles/autoexpense/pkg/api"
	sheetswriter "github.com/ArionMiles/autoexpense/pkg/writer/sheets"
)

// Plugin implements the WriterPlugin interface for Google Sheets.
type Plugin struct {
	opts []option.ClientOption
}

// New creates the plugin. Options are passed to the Sheets client.
func New(opts ...option.ClientOption) *Plugin {
	return &Plugin{opts: opts}
}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "sheets"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Append transactions to a Google Sheet"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return []string{
		sheetsapi.SpreadsheetsScope,
	}
}

// Config represents the Sheets writer configuration.
type Config struct {
	SpreadsheetID string `json:"spreadsheetId,omitempty"`
	Title         string `json:"title,omitempty"`
	SheetName     string `json:"sheetName,omitempty"`
	BatchSize     int    `json:"batchSize,omitempty"`
}

// NewWriter creates a new Sheets writer instance.
func (p *Plugin) NewWriter(ctx context.Context, target plugins.Target, logger *slog.Logger) (api.Writer, error) {
	if target.HTTPClient == nil {
		return nil, errors.New("sheets writer needs an authorized http client")
	}

	var cfg Config
	if len(target.Config) > 0 {
		if err := json.Unmarshal(target.Config, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshaling sheets config: %w", err)
		}
	}

	writerCfg := sheetswriter.Config{
		SheetID:    cfg.SpreadsheetID,
		SheetTitle: cfg.Title,
		SheetName:  cfg.SheetName,
		BatchSize:  cfg.BatchSize,
	}
	return sheetswriter.New(ctx, target.HTTPClient, writerCfg, logger, p.opts...)
}

// Package csv provides a plugin wrapper for the CSV writer.
package csv

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ArionMiles/autoexpense/internal/plugins"
	"github.com/ArionMiles/autoexpense/pkg/api"
	csvwriter "github.com/ArionMiles/autoexpense/pkg/writer/csv"
)

// Plugin implements the FilePlugin interface for CSV downloads.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Download transactions as a CSV file"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// ContentType returns the MIME type of the produced file.
func (p *Plugin) ContentType() string {
	return "text/csv; charset=utf-8"
}

// FileExtension returns the extension of the produced file.
func (p *Plugin) FileExtension() string {
	return "csv"
}

// NewWriter creates a new CSV writer instance.
func (p *Plugin) NewWriter(_ context.Context, target plugins.Target, logger *slog.Logger) (api.Writer, error) {
	if target.Out == nil {
		return nil, errors.New("csv writer needs an output")
	}
	return csvwriter.New(target.Out, csvwriter.Config{}, logger)
}

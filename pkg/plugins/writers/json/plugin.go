// Package json provides a plugin wrapper for the JSON writer.
package json

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ArionMiles/autoexpense/internal/plugins"
	"github.com/ArionMiles/autoexpense/pkg/api"
	jsonwriter "github.com/ArionMiles/autoexpense/pkg/writer/json"
)

// Plugin implements the FilePlugin interface for JSON downloads.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "json"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Download transactions as a JSON array"
}

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *Plugin) RequiredScopes() []string {
	return nil
}

// ContentType returns the MIME type of the produced file.
func (p *Plugin) ContentType() string {
	return "application/json"
}

// FileExtension returns the extension of the produced file.
func (p *Plugin) FileExtension() string {
	return "json"
}

// NewWriter creates a new JSON writer instance.
func (p *Plugin) NewWriter(_ context.Context, target plugins.Target, logger *slog.Logger) (api.Writer, error) {
	if target.Out == nil {
		return nil, errors.New("json writer needs an output")
	}
	return jsonwriter.New(target.Out, jsonwriter.Config{}, logger)
}

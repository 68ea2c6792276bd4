// Package plugins provides a plugin registry for export writers.
package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// Target is where a writer sends its output. File writers use Out;
// remote writers use HTTPClient.
type Target struct {
	Out        io.Writer
	HTTPClient *http.Client
	// Config is plugin-specific JSON, may be empty.
	Config json.RawMessage
}

// WriterPlugin defines the interface for transaction writer plugins.
type WriterPlugin interface {
	// Name returns the plugin name (e.g., "sheets", "csv", "json").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// NewWriter creates a new writer instance for the given target.
	NewWriter(ctx context.Context, target Target, logger *slog.Logger) (api.Writer, error)
}

// FilePlugin is implemented by writers that produce a downloadable file.
type FilePlugin interface {
	WriterPlugin
	ContentType() string
	FileExtension() string
}

// Registry manages available writer plugins.
type Registry struct {
	writers map[string]WriterPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		writers: make(map[string]WriterPlugin),
	}
}

// RegisterWriter registers a writer plugin.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error {
	name := plugin.Name()
	if _, exists := r.writers[name]; exists {
		return fmt.Errorf("writer plugin %q already registered", name)
	}
	r.writers[name] = plugin
	return nil
}

// GetWriter returns a writer plugin by name.
func (r *Registry) GetWriter(name string) (WriterPlugin, error) {
	plugin, exists := r.writers[strings.ToLower(name)]
	if !exists {
		return nil, fmt.Errorf("%w: writer plugin %q", api.ErrNotFound, name)
	}
	return plugin, nil
}

// GetFileWriter returns a plugin by name that can produce a file download.
func (r *Registry) GetFileWriter(name string) (FilePlugin, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	fp, ok := plugin.(FilePlugin)
	if !ok {
		return nil, fmt.Errorf("%w: writer plugin %q does not produce files", api.ErrValidation, name)
	}
	return fp, nil
}

// ListWriters returns all registered writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin {
	plugins := make([]WriterPlugin, 0, len(r.writers))
	for _, plugin := range r.writers {
		plugins = append(plugins, plugin)
	}
	slices.SortFunc(plugins, func(a, b WriterPlugin) int { return strings.Compare(a.Name(), b.Name()) })
	return plugins
}

// CreateWriter creates a writer instance from a plugin.
func (r *Registry) CreateWriter(ctx context.Context, name string, target Target, logger *slog.Logger) (api.Writer, error) {
	plugin, err := r.GetWriter(name)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return plugin.NewWriter(ctx, target, logger.With("component", "writer", "plugin", plugin.Name()))
}

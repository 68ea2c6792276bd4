package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ArionMiles/autoexpense/internal/export"
	"github.com/ArionMiles/autoexpense/internal/plugins"
	"github.com/ArionMiles/autoexpense/pkg/api"
)

// handleExportFormats handles GET /expenses/export/formats.
func (s *Server) handleExportFormats(w http.ResponseWriter, _ *http.Request) {
	type format struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Download    bool     `json:"download"`
		Scopes      []string `json:"scopes,omitempty"`
	}

	formats := make([]format, 0)
	for _, p := range s.deps.Writers.ListWriters() {
		_, download := p.(plugins.FilePlugin)
		formats = append(formats, format{
			Name:        p.Name(),
			Description: p.Description(),
			Download:    download,
			Scopes:      p.RequiredScopes(),
		})
	}
	respondData(w, formats, "")
}

// handleExportFile handles GET /expenses/export and streams a file download.
func (s *Server) handleExportFile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("format"))
	if name == "" {
		name = "csv"
	}
	plugin, err := s.deps.Writers.GetFileWriter(name)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported export format %q", name))
		return
	}

	filename := fmt.Sprintf("transactions-%s.%s", s.now().Format("2006-01-02"), plugin.FileExtension())
	out := &downloadWriter{
		w:           w,
		contentType: plugin.ContentType(),
		disposition: fmt.Sprintf("attachment; filename=%q", filename),
	}

	writer, err := s.deps.Writers.CreateWriter(r.Context(), plugin.Name(), plugins.Target{Out: out}, s.logger)
	if err == nil {
		var n int
		n, err = export.Run(r.Context(), s.deps.Store, userID, writer)
		if err == nil {
			s.logger.Info("exported transactions", "user_id", userID, "format", name, "count", n)
			return
		}
	}

	s.logger.Error("export failed", "user_id", userID, "format", name, "committed", out.written, "error", err)
	if !out.written {
		respondErrorDetails(w, http.StatusInternalServerError, "Failed to export transactions", err.Error())
	}
}

// downloadWriter sets the download headers on the first write, so a writer
// that fails before producing output still leaves room for an error response.
type downloadWriter struct {
	w           http.ResponseWriter
	contentType string
	disposition string
	written     bool
}

func (d *downloadWriter) Write(p []byte) (int, error) {
	if !d.written {
		d.written = true
		d.w.Header().Set("Content-Type", d.contentType)
		d.w.Header().Set("Content-Disposition", d.disposition)
	}
	return d.w.Write(p)
}

type sheetsExportBody struct {
	UserID        string `json:"userId"`
	AccessToken   string `json:"accessToken"`
	SpreadsheetID string `json:"spreadsheetId"`
	Title         string `json:"title"`
}

// handleExportSheets handles POST /expenses/export/sheets.
func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	var body sheetsExportBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		respondError(w, http.StatusBadRequest, msgUserIDRequired)
		return
	}
	if body.AccessToken == "" {
		respondError(w, http.StatusBadRequest, "Access token is required")
		return
	}

	httpClient, err := s.deps.HTTPClient(r.Context(), body.AccessToken)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Access token is required")
		return
	}

	cfg, err := json.Marshal(map[string]string{
		"spreadsheetId": body.SpreadsheetID,
		"title":         body.Title,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to export to Google Sheets")
		return
	}

	writer, err := s.deps.Writers.CreateWriter(r.Context(), "sheets", plugins.Target{HTTPClient: httpClient, Config: cfg}, s.logger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, api.ErrNotFound) {
			status = http.StatusNotImplemented
		}
		s.logger.Error("failed to open spreadsheet", "user_id", body.UserID, "error", err)
		respondErrorDetails(w, status, "Failed to export to Google Sheets", err.Error())
		return
	}

	n, err := export.Run(r.Context(), s.deps.Store, body.UserID, writer)
	if err != nil {
		s.logger.Error("sheets export failed", "user_id", body.UserID, "written", n, "error", err)
		respondErrorDetails(w, http.StatusInternalServerError, "Failed to export to Google Sheets", err.Error())
		return
	}

	result := map[string]any{"count": n}
	if sw, ok := writer.(interface {
		SpreadsheetID() string
		SpreadsheetURL() string
	}); ok {
		result["spreadsheetId"] = sw.SpreadsheetID()
		result["spreadsheetUrl"] = sw.SpreadsheetURL()
	}
	respondData(w, result, fmt.Sprintf("Exported %d transaction(s)", n))
}

package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ArionMiles/autoexpense/internal/scan"
	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/reader/gmail"
)

type scanBody struct {
	AccessToken string `json:"accessToken"`
	IsDemoMode  bool   `json:"isDemoMode"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	// DateFilter is a period shorthand such as "7days"; it replaces
	// startDate and endDate when set.
	DateFilter string `json:"dateFilter"`
	UserID     string `json:"userId"`
}

func (s *Server) scanRequest(b scanBody) (scan.Request, error) {
	req := scan.Request{
		UserID:      strings.TrimSpace(b.UserID),
		AccessToken: b.AccessToken,
		DemoMode:    b.IsDemoMode,
	}
	if req.UserID == "" {
		return req, fmt.Errorf("%w: %s", api.ErrValidation, msgUserIDRequired)
	}
	if req.DemoMode {
		return req, nil
	}

	if req.AccessToken == "" {
		return req, fmt.Errorf("%w: Access token is required for real mode", api.ErrValidation)
	}

	var err error
	switch {
	case b.DateFilter != "":
		req.Range, err = gmail.ParsePeriod(b.DateFilter, s.now())
	case b.StartDate != "" && b.EndDate != "":
		req.Range, err = gmail.ParseRange(b.StartDate, b.EndDate)
	default:
		return req, fmt.Errorf("%w: startDate and endDate are required for real mode", api.ErrValidation)
	}
	return req, err
}

// handleScan handles POST /expenses/scan.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body scanBody
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := s.scanRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, err := s.deps.Scanner.Scan(r.Context(), req)
	if err != nil {
		if statusFor(err) == http.StatusBadRequest {
			respondError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		s.logger.Error("scan failed", "user_id", req.UserID, "demo", req.DemoMode, "error", err)
		respondErrorDetails(w, http.StatusInternalServerError, "Failed to scan inbox", err.Error())
		return
	}

	if res.EmailCount == 0 {
		respondData(w, []api.Transaction{}, "No emails found")
		return
	}
	respondData(w, res.Transactions, fmt.Sprintf("Found %d new transaction(s)", len(res.Transactions)))
}

// handleDemoEmails handles POST /emails/demo.
func (s *Server) handleDemoEmails(w http.ResponseWriter, r *http.Request) {
	if s.deps.Demo == nil {
		respondError(w, http.StatusInternalServerError, "Failed to generate demo emails")
		return
	}

	emails, err := s.deps.Demo.Generate(r.Context(), s.config.DemoEmailCount)
	if err != nil {
		s.logger.Error("failed to generate demo emails", "error", err)
		respondErrorDetails(w, http.StatusInternalServerError, "Failed to generate demo emails", err.Error())
		return
	}

	respondData(w, emails, "")
}

// Package scan runs the fetch, extract and dedup pipeline for one user.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// DefaultMaxResults caps the number of emails a scan reads.
const DefaultMaxResults = 10

// Store is the persistence the pipeline needs.
type Store interface {
	GetEmailFilters(ctx context.Context, userID string) (*api.EmailFilterSettings, error)
	InsertIfAbsent(ctx context.Context, t *api.Transaction, matchMerchant bool) (bool, error)
}

// SourceFactory builds a mailbox source for a bearer access token.
type SourceFactory func(ctx context.Context, accessToken string) (api.EmailSource, error)

// Request is a single scan invocation.
type Request struct {
	UserID      string
	AccessToken string
	DemoMode    bool
	Range       api.DateRange
}

// Result reports what a scan did.
type Result struct {
	// Transactions holds only the newly inserted records, in email order.
	Transactions []api.Transaction
	// EmailCount is the number of bodies the source returned.
	EmailCount int
}

// Config tunes a Scanner.
type Config struct {
	MaxResults    int
	MatchMerchant bool
}

// Scanner wires an email source, an extractor and the dedup gate together.
type Scanner struct {
	mailbox   SourceFactory
	demo      api.EmailSource
	extractor api.Extractor
	store     Store
	cfg       Config
	logger    *slog.Logger
}

// New creates a Scanner. demo may be nil, in which case demo scans fail.
func New(mailbox SourceFactory, demo api.EmailSource, extractor api.Extractor, store Store, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	return &Scanner{
		mailbox:   mailbox,
		demo:      demo,
		extractor: extractor,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Scan reads candidate emails for the request and persists the new
// transactions found in them.
func (s *Scanner) Scan(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", api.ErrValidation)
	}

	source, q, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("user_id", req.UserID, "demo", req.DemoMode)
	logger.Info("starting scan", "max_results", q.MaxResults)

	bodies, err := source.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching emails: %w", err)
	}
	if len(bodies) == 0 {
		logger.Info("no emails found")
		return &Result{Transactions: []api.Transaction{}}, nil
	}

	inserted, err := s.Ingest(ctx, req.UserID, bodies)
	if err != nil {
		return nil, err
	}

	logger.Info("scan complete", "emails", len(bodies), "inserted", len(inserted))
	return &Result{Transactions: inserted, EmailCount: len(bodies)}, nil
}

func (s *Scanner) prepare(ctx context.Context, req Request) (api.EmailSource, api.Query, error) {
	q := api.Query{MaxResults: s.cfg.MaxResults}

	if req.DemoMode {
		if s.demo == nil {
			return nil, q, errors.New("demo mode is not available")
		}
		return s.demo, q, nil
	}

	if req.AccessToken == "" {
		return nil, q, fmt.Errorf("%w: access token is required for real mode", api.ErrValidation)
	}
	if s.mailbox == nil {
		return nil, q, errors.New("no mailbox source configured")
	}

	filters, err := s.store.GetEmailFilters(ctx, req.UserID)
	if err != nil {
		return nil, q, fmt.Errorf("loading email filters: %w", err)
	}
	q.Filter = filters
	q.Range = req.Range

	source, err := s.mailbox(ctx, req.AccessToken)
	if err != nil {
		return nil, q, fmt.Errorf("creating mailbox source: %w", err)
	}
	return source, q, nil
}

// Ingest extracts a transaction from each body and inserts it unless an
// equivalent one already exists. Extraction failures are logged and the
// body skipped; store failures abort.
func (s *Scanner) Ingest(ctx context.Context, userID string, bodies []string) ([]api.Transaction, error) {
	inserted := make([]api.Transaction, 0, len(bodies))

	for i, body := range bodies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t, err := s.extractor.Extract(ctx, body)
		if err != nil {
			s.logger.Warn("failed to extract transaction", "index", i, "error", err)
			continue
		}
		if t == nil {
			s.logger.Debug("email is not a transaction", "index", i)
			continue
		}

		t.UserID = userID
		ok, err := s.store.InsertIfAbsent(ctx, t, s.cfg.MatchMerchant)
		if err != nil {
			return nil, fmt.Errorf("saving transaction: %w", err)
		}
		if !ok {
			s.logger.Debug("skipping duplicate transaction", "merchant", t.Merchant, "amount", t.Amount, "date", t.Date)
			continue
		}
		inserted = append(inserted, *t)
	}

	return inserted, nil
}

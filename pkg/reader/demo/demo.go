// Package demo implements an EmailSource that returns model-generated
// receipt emails instead of reading a real mailbox.
package demo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// DefaultCount is the number of emails generated per scan.
const DefaultCount = 5

// Generator synthesizes n email bodies.
type Generator interface {
	Generate(ctx context.Context, n int) ([]string, error)
}

// Source serves generated emails. Date range and filter settings are ignored.
type Source struct {
	gen    Generator
	count  int
	logger *slog.Logger
}

// New creates a demo source producing count emails per Fetch.
func New(gen Generator, count int, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	if count <= 0 {
		count = DefaultCount
	}
	return &Source{gen: gen, count: count, logger: logger}
}

// Fetch generates up to min(count, q.MaxResults) emails.
func (s *Source) Fetch(ctx context.Context, q api.Query) ([]string, error) {
	n := s.count
	if q.MaxResults > 0 && q.MaxResults < n {
		n = q.MaxResults
	}

	bodies, err := s.gen.Generate(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("generating demo emails: %w", err)
	}
	if len(bodies) > n {
		bodies = bodies[:n]
	}

	s.logger.Info("demo emails ready", "requested", n, "count", len(bodies))
	return bodies, nil
}

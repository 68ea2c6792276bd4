// Package csv implements a Writer that writes transactions as CSV rows.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/writer/buffered"
)

// Headers is the header row written before any transaction.
var Headers = []string{"ID", "Date", "Merchant", "Amount", "Currency", "Category", "Summary", "Type", "Pending"}

// Writer writes transactions to an io.Writer with buffered batching.
type Writer struct {
	writer   *csv.Writer
	mu       sync.Mutex
	buffered *buffered.Writer
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// BatchSize is the number of transactions to buffer before writing.
	BatchSize int
}

// New creates a CSV writer and writes the header row to out.
func New(out io.Writer, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		writer: csv.NewWriter(out),
		logger: logger,
	}

	if err := w.writeHeaders(); err != nil {
		return nil, fmt.Errorf("writing headers: %w", err)
	}

	w.buffered = buffered.New(w.flushBatch, buffered.Config{BatchSize: cfg.BatchSize}, logger.With("component", "csv_buffer"))
	return w, nil
}

func (w *Writer) writeHeaders() error {
	if err := w.writer.Write(Headers); err != nil {
		return err
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Write consumes transactions from the input channel and writes them as CSV.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction) error {
	if err := w.buffered.Write(ctx, in); err != nil {
		return err
	}
	w.logger.Debug("csv export finished", "count", w.buffered.Written())
	return nil
}

// flushBatch writes a batch of transactions.
func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range transactions {
		record := []string{
			t.ID,
			t.Date,
			t.Merchant,
			strconv.FormatFloat(t.Amount, 'f', 2, 64),
			t.Currency,
			t.Category,
			t.Summary,
			string(t.Type),
			strconv.FormatBool(t.IsPending),
		}
		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// Package json implements a Writer that writes transactions as a JSON array.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/writer/buffered"
)

// Writer collects transactions in batches and encodes the full array once the
// input is drained.
type Writer struct {
	out          io.Writer
	transactions []*api.Transaction
	mu           sync.Mutex
	buffered     *buffered.Writer
	logger       *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// BatchSize is the number of transactions to buffer per batch.
	BatchSize int
}

// New creates a JSON writer targeting out.
func New(out io.Writer, cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		out:          out,
		transactions: make([]*api.Transaction, 0),
		logger:       logger,
	}
	w.buffered = buffered.New(w.flushBatch, buffered.Config{BatchSize: cfg.BatchSize}, logger.With("component", "json_buffer"))
	return w, nil
}

// Write consumes transactions from the input channel and, once it is closed,
// writes them as one indented JSON array. Nothing is written on error.
func (w *Writer) Write(ctx context.Context, in <-chan *api.Transaction) error {
	if err := w.buffered.Write(ctx, in); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// JSON doesn't support appending, so the whole array goes out at once.
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w.transactions); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}

	w.logger.Debug("json export finished", "count", len(w.transactions))
	return nil
}

func (w *Writer) flushBatch(_ context.Context, transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.transactions = append(w.transactions, transactions...)
	return nil
}

// TransactionCount returns the number of transactions collected.
func (w *Writer) TransactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}

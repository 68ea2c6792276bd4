// Package export streams a user's stored transactions into a writer.
package export

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// Streamer sends a user's transactions on out and closes it when done.
type Streamer interface {
	StreamTransactions(ctx context.Context, userID string, out chan<- *api.Transaction) error
}

// Run pipes every transaction of userID from s into w and returns how many
// were handed to the writer. If either side fails the other is cancelled.
// The writer's input is closed only after a clean read, so a writer that
// holds its output until the input closes never writes after a failed read.
func Run(ctx context.Context, s Streamer, userID string, w api.Writer) (int, error) {
	g, ctx := errgroup.WithContext(ctx)

	rows := make(chan *api.Transaction, 100)
	counted := make(chan *api.Transaction, 100)
	streamed := make(chan error, 1)
	var n atomic.Int64

	g.Go(func() error {
		err := s.StreamTransactions(ctx, userID, rows)
		streamed <- err
		if err != nil {
			return fmt.Errorf("reading transactions: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for t := range rows {
			select {
			case counted <- t:
				n.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		// On a failed read counted stays open; the writer stops on ctx.
		if err := <-streamed; err != nil {
			return nil
		}
		close(counted)
		return nil
	})

	g.Go(func() error {
		if err := w.Write(ctx, counted); err != nil {
			return fmt.Errorf("writing transactions: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return int(n.Load()), err
	}
	return int(n.Load()), nil
}

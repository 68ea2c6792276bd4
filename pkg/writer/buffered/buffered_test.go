package buffered

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/logging"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (r *recorder) flush(_ context.Context, ts []*api.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	r.batches = append(r.batches, ids)
	return nil
}

func feed(ids ...string) <-chan *api.Transaction {
	ch := make(chan *api.Transaction, len(ids))
	for _, id := range ids {
		ch <- &api.Transaction{ID: id}
	}
	close(ch)
	return ch
}

func TestWrite_BatchesAndFinalFlush(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 2, FlushInterval: time.Hour}, logging.Discard())

	if err := w.Write(context.Background(), feed("a", "b", "c", "d", "e")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if len(rec.batches) != len(want) {
		t.Fatalf("got batches %v, want %v", rec.batches, want)
	}
	for i := range want {
		if len(rec.batches[i]) != len(want[i]) {
			t.Errorf("batch %d = %v, want %v", i, rec.batches[i], want[i])
		}
	}
	if w.Written() != 5 {
		t.Errorf("Written() = %d, want 5", w.Written())
	}
	if w.BufferLen() != 0 {
		t.Errorf("BufferLen() = %d, want 0", w.BufferLen())
	}
}

func TestWrite_EmptyInput(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{}, logging.Discard())

	if err := w.Write(context.Background(), feed()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(rec.batches) != 0 {
		t.Errorf("expected no flushes, got %v", rec.batches)
	}
}

func TestWrite_FlushErrorStops(t *testing.T) {
	boom := errors.New("sheet locked")
	w := New((&recorder{err: boom}).flush, Config{BatchSize: 1}, logging.Discard())

	if err := w.Write(context.Background(), feed("a", "b")); !errors.Is(err, boom) {
		t.Errorf("Write error = %v, want %v", err, boom)
	}
}

func TestWrite_CancelFlushesBuffer(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 10, FlushInterval: time.Hour}, logging.Discard())

	in := make(chan *api.Transaction)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Write(ctx, in) }()

	in <- &api.Transaction{ID: "a"}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want context.Canceled", err)
	}
	if len(rec.batches) != 1 || rec.batches[0][0] != "a" {
		t.Errorf("expected buffered transaction to be flushed, got %v", rec.batches)
	}
}

func TestWrite_IntervalFlush(t *testing.T) {
	rec := &recorder{}
	w := New(rec.flush, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, logging.Discard())

	in := make(chan *api.Transaction, 1)
	done := make(chan error, 1)
	go func() { done <- w.Write(context.Background(), in) }()

	in <- &api.Transaction{ID: "a"}
	deadline := time.After(2 * time.Second)
	for w.Written() == 0 {
		select {
		case <-deadline:
			t.Fatal("interval flush never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}
}

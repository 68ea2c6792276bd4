package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/logging"
)

// fakeSheets serves the spreadsheet endpoints Writer uses.
type fakeSheets struct {
	mu          sync.Mutex
	existing    string
	created     int
	headers     [][]any
	appended    [][]any
	appendCalls int
	rateLimit   int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	const prefix = "/v4/spreadsheets"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == prefix:
		f.created++
		_ = json.NewEncoder(w).Encode(&sheets.Spreadsheet{SpreadsheetId: "new-sheet", SpreadsheetUrl: "https://sheets/new-sheet"})
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, prefix+"/"):
		id := strings.TrimPrefix(r.URL.Path, prefix+"/")
		if id != f.existing {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(&sheets.Spreadsheet{SpreadsheetId: id})
	case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/values/"):
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.headers = append(f.headers, vr.Values...)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":append"):
		f.appendCalls++
		if f.rateLimit > 0 {
			f.rateLimit--
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"slow down"}}`))
			return
		}
		var vr sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		f.appended = append(f.appended, vr.Values...)
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestWriter(t *testing.T, f *fakeSheets, cfg Config) *Writer {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	cfg.RetryDelay = time.Millisecond
	w, err := New(context.Background(), srv.Client(), cfg, logging.Discard(), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func transactions(n int) <-chan *api.Transaction {
	ch := make(chan *api.Transaction, n)
	for i := 0; i < n; i++ {
		ch <- &api.Transaction{Date: "2024-05-01", Merchant: "Cafe", Amount: 4.5, Currency: "USD", Category: "Food", Type: api.KindExpense}
	}
	close(ch)
	return ch
}

func TestNew_CreatesSpreadsheetWithHeaders(t *testing.T) {
	f := &fakeSheets{}
	w := newTestWriter(t, f, Config{SheetID: "missing"})

	if w.SpreadsheetID() != "new-sheet" {
		t.Errorf("SpreadsheetID() = %q", w.SpreadsheetID())
	}
	if w.SpreadsheetURL() != "https://sheets/new-sheet" {
		t.Errorf("SpreadsheetURL() = %q", w.SpreadsheetURL())
	}
	if f.created != 1 {
		t.Errorf("created %d spreadsheets, want 1", f.created)
	}
	if len(f.headers) != 1 || len(f.headers[0]) != len(Headers) || f.headers[0][0] != "Date" {
		t.Errorf("unexpected headers: %v", f.headers)
	}
}

func TestNew_UsesExistingSpreadsheet(t *testing.T) {
	f := &fakeSheets{existing: "abc"}
	w := newTestWriter(t, f, Config{SheetID: "abc"})

	if w.SpreadsheetID() != "abc" {
		t.Errorf("SpreadsheetID() = %q, want abc", w.SpreadsheetID())
	}
	if f.created != 0 || len(f.headers) != 0 {
		t.Errorf("existing spreadsheet should not be created or re-headed")
	}
}

func TestWrite_BatchesRows(t *testing.T) {
	f := &fakeSheets{existing: "abc"}
	w := newTestWriter(t, f, Config{SheetID: "abc", BatchSize: 2})

	if err := w.Write(context.Background(), transactions(5)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if f.appendCalls != 3 {
		t.Errorf("append calls = %d, want 3", f.appendCalls)
	}
	if len(f.appended) != 5 {
		t.Fatalf("appended %d rows, want 5", len(f.appended))
	}
	row := f.appended[0]
	if row[0] != "2024-05-01" || row[1] != "Cafe" || row[2] != 4.5 || row[6] != "expense" {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestWrite_RetriesRateLimit(t *testing.T) {
	f := &fakeSheets{existing: "abc", rateLimit: 1}
	w := newTestWriter(t, f, Config{SheetID: "abc"})

	if err := w.Write(context.Background(), transactions(1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if f.appendCalls != 2 {
		t.Errorf("append calls = %d, want 2", f.appendCalls)
	}
	if len(f.appended) != 1 {
		t.Errorf("appended %d rows, want 1", len(f.appended))
	}
}

func TestWrite_GivesUpAfterAttempts(t *testing.T) {
	f := &fakeSheets{existing: "abc", rateLimit: 10}
	w := newTestWriter(t, f, Config{SheetID: "abc"})

	if err := w.Write(context.Background(), transactions(1)); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if f.appendCalls != 3 {
		t.Errorf("append calls = %d, want 3", f.appendCalls)
	}
}

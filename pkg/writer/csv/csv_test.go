package csv

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/logging"
)

func TestWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf, Config{BatchSize: 1}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan *api.Transaction, 2)
	in <- &api.Transaction{
		ID: "t1", Date: "2024-05-01", Merchant: "Cafe, Inc", Amount: 4.5, Currency: "USD",
		Category: "Food", Summary: "Latte", Type: api.KindExpense,
	}
	in <- &api.Transaction{
		ID: "t2", Date: "2024-05-02", Merchant: "Employer", Amount: 1000, Currency: "EUR",
		Category: "Other", Summary: "Salary", Type: api.KindIncome, IsPending: true,
	}
	close(in)

	if err := w.Write(context.Background(), in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := strings.Join([]string{
		"ID,Date,Merchant,Amount,Currency,Category,Summary,Type,Pending",
		`t1,2024-05-01,"Cafe, Inc",4.50,USD,Food,Latte,expense,false`,
		"t2,2024-05-02,Employer,1000.00,EUR,Other,Salary,income,true",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("output mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriter_HeadersOnlyWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf, Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan *api.Transaction)
	close(in)
	if err := w.Write(context.Background(), in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := strings.TrimSpace(buf.String()); got != strings.Join(Headers, ",") {
		t.Errorf("got %q", got)
	}
}

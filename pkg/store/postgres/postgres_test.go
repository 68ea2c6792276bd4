package postgres

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/logging"
)

var (
	testStore  *Store
	skipReason string
)

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if testing.Short() {
		skipReason = "short mode, skipping PostgreSQL integration tests"
		return m.Run()
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("autoexpense"),
		tcpostgres.WithUsername("autoexpense"),
		tcpostgres.WithPassword("autoexpense"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		skipReason = fmt.Sprintf("postgres container unavailable: %v", err)
		return m.Run()
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		skipReason = fmt.Sprintf("postgres connection string: %v", err)
		return m.Run()
	}

	testStore, err = New(ctx, Config{URL: dsn}, logging.Discard())
	if err != nil {
		skipReason = fmt.Sprintf("connecting to postgres container: %v", err)
		return m.Run()
	}
	defer testStore.Close()

	return m.Run()
}

func requireStore(t *testing.T) *Store {
	t.Helper()
	if testStore == nil {
		t.Skip(skipReason)
	}
	return testStore
}

func newUserID() string { return "user-" + uuid.NewString() }

// TestNew_ConnectionFailure tests that the store returns an error when the database is unreachable.
func TestNew_ConnectionFailure(t *testing.T) {
	cfg := Config{
		Host:            "nonexistent-host",
		Port:            5432,
		Database:        "autoexpense",
		User:            "autoexpense",
		Password:        "password",
		ConnectAttempts: 1,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := New(ctx, cfg, logging.Discard()); err == nil {
		t.Error("expected error when connecting to nonexistent host, got nil")
	}
}

func TestPing(t *testing.T) {
	s := requireStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConfig_ConnString(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "url wins",
			cfg:  Config{URL: "postgres://a@b/c", Host: "ignored"},
			want: "postgres://a@b/c",
		},
		{
			name: "discrete fields",
			cfg:  Config{Host: "db", Port: 5433, Database: "ae", User: "u", Password: "p@ss", SSLMode: "require"},
			want: "postgres://u:p%40ss@db:5433/ae?sslmode=require",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.connString(); got != tc.want {
				t.Errorf("connString() = %q, want %q", got, tc.want)
			}
		})
	}
}

func sampleTransaction(userID string) *api.Transaction {
	return &api.Transaction{
		ID:       uuid.NewString(),
		UserID:   userID,
		Merchant: "Blue Bottle",
		Amount:   12.35,
		Currency: "USD",
		Date:     "2024-03-14",
		Category: "Food",
		Summary:  "Coffee and pastry",
		Type:     api.KindExpense,
	}
}

func TestUpsertTransaction_RoundTrip(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	in := sampleTransaction(userID)
	in.Date = "2024-03-14T09:30:00Z"
	in.IsPending = true

	if _, err := s.UpsertTransaction(ctx, in); err != nil {
		t.Fatalf("UpsertTransaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, userID, in.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if *got != *in {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, *in)
	}
}

func TestUpsertTransaction_SecondCallWins(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	first := sampleTransaction(userID)
	if _, err := s.UpsertTransaction(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := *first
	second.Merchant = "Sightglass"
	second.Amount = 7.5
	second.Type = api.KindIncome
	if _, err := s.UpsertTransaction(ctx, &second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := s.GetTransaction(ctx, userID, first.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Merchant != "Sightglass" || got.Amount != 7.5 || got.Type != api.KindIncome {
		t.Errorf("expected second write to win, got %+v", got)
	}

	list, err := s.ListTransactions(ctx, userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 record, got %d", len(list))
	}
}

func TestUpsertTransaction_OtherUsersID(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()

	owned := sampleTransaction(newUserID())
	if _, err := s.UpsertTransaction(ctx, owned); err != nil {
		t.Fatalf("UpsertTransaction: %v", err)
	}

	hijack := *owned
	hijack.UserID = newUserID()
	if _, err := s.UpsertTransaction(ctx, &hijack); !errors.Is(err, api.ErrConflict) {
		t.Errorf("error = %v, want ErrConflict", err)
	}
}

func TestListTransactions(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	for _, date := range []string{"2024-01-02", "2024-03-01", "2023-12-31"} {
		tx := sampleTransaction(userID)
		tx.Date = date
		if _, err := s.UpsertTransaction(ctx, tx); err != nil {
			t.Fatalf("UpsertTransaction: %v", err)
		}
	}

	list, err := s.ListTransactions(ctx, userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	want := []string{"2024-03-01", "2024-01-02", "2023-12-31"}
	if len(list) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(list))
	}
	for i, d := range want {
		if list[i].Date != d {
			t.Errorf("list[%d].Date = %q, want %q", i, list[i].Date, d)
		}
	}

	empty, err := s.ListTransactions(ctx, newUserID())
	if err != nil {
		t.Fatalf("ListTransactions unknown user: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestDeleteTransaction(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	tx := sampleTransaction(userID)
	if _, err := s.UpsertTransaction(ctx, tx); err != nil {
		t.Fatalf("UpsertTransaction: %v", err)
	}

	if err := s.DeleteTransaction(ctx, userID, "does-not-exist"); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("delete missing: error = %v, want ErrNotFound", err)
	}
	if list, _ := s.ListTransactions(ctx, userID); len(list) != 1 {
		t.Errorf("store changed after failed delete: %d records", len(list))
	}

	if err := s.DeleteTransaction(ctx, userID, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := s.GetTransaction(ctx, userID, tx.ID); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("get after delete: error = %v, want ErrNotFound", err)
	}
}

func TestInsertIfAbsent(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	first := sampleTransaction(userID)
	inserted, err := s.InsertIfAbsent(ctx, first, false)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	dup := sampleTransaction(userID)
	dup.Merchant = "Different Merchant"
	inserted, err = s.InsertIfAbsent(ctx, dup, false)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if inserted {
		t.Error("expected same amount+date to be rejected")
	}

	inserted, err = s.InsertIfAbsent(ctx, dup, true)
	if err != nil {
		t.Fatalf("merchant-matching insert: %v", err)
	}
	if !inserted {
		t.Error("expected different merchant to be accepted when matching merchant")
	}

	other := sampleTransaction(newUserID())
	inserted, err = s.InsertIfAbsent(ctx, other, false)
	if err != nil || !inserted {
		t.Errorf("other user insert: inserted=%v err=%v", inserted, err)
	}
}

func TestInsertIfAbsent_Concurrent(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	const workers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := s.InsertIfAbsent(ctx, sampleTransaction(userID), false)
			if err != nil {
				t.Errorf("InsertIfAbsent: %v", err)
				return
			}
			if inserted {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count != 1 {
		t.Errorf("expected exactly 1 insert, got %d", count)
	}
}

func TestEmailFilters(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	userID := newUserID()

	got, err := s.GetEmailFilters(ctx, userID)
	if err != nil {
		t.Fatalf("GetEmailFilters: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil settings for new user, got %+v", got)
	}

	first, err := s.SaveEmailFilters(ctx, &api.EmailFilterSettings{
		UserID:          userID,
		SenderEmail:     "receipts@shop.example",
		SubjectKeywords: "receipt, invoice",
	})
	if err != nil {
		t.Fatalf("SaveEmailFilters: %v", err)
	}

	second, err := s.SaveEmailFilters(ctx, &api.EmailFilterSettings{
		UserID:        userID,
		HasAttachment: true,
		Label:         "Receipts",
	})
	if err != nil {
		t.Fatalf("SaveEmailFilters again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected one row per user, ids %q and %q", first.ID, second.ID)
	}

	got, err = s.GetEmailFilters(ctx, userID)
	if err != nil {
		t.Fatalf("GetEmailFilters: %v", err)
	}
	if got.SenderEmail != "" || !got.HasAttachment || got.Label != "Receipts" {
		t.Errorf("expected latest save to win, got %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("unexpected timestamps: created %v updated %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestUpsertUser(t *testing.T) {
	s := requireStore(t)
	ctx := context.Background()
	email := uuid.NewString() + "@example.com"

	created, err := s.UpsertUser(ctx, api.User{ID: "google-1-" + email, Email: email, Name: "Ada"})
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	updated, err := s.UpsertUser(ctx, api.User{Email: email, Name: "Ada Lovelace", Picture: "p.png"})
	if err != nil {
		t.Fatalf("UpsertUser again: %v", err)
	}
	if updated.ID != created.ID {
		t.Errorf("id changed on update: %q -> %q", created.ID, updated.ID)
	}
	if updated.Name != "Ada Lovelace" || updated.Picture != "p.png" {
		t.Errorf("profile not refreshed: %+v", updated)
	}
}

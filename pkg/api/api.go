// Package api defines the core interfaces and data structures for autoexpense.
package api

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared across packages. The HTTP layer maps them to status codes.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrMissingAPIKey   = errors.New("gemini api key is not configured")
	ErrMalformedOutput = errors.New("malformed model output")
)

// Kind is the direction of a transaction.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// Categories is the fixed category list the extractor may assign.
var Categories = []string{"Food", "Transport", "Shopping", "Utilities", "Subscription", "Other"}

// Transaction is a single expense or income record owned by one user.
type Transaction struct {
	ID       string  `json:"id"`
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	// Date is a calendar date (YYYY-MM-DD) or a date-time string, stored as given.
	Date      string `json:"date"`
	Category  string `json:"category"`
	Summary   string `json:"summary"`
	IsPending bool   `json:"isPending"`
	Type      Kind   `json:"type"`
	UserID    string `json:"userId,omitempty"`
}

// EmailFilterSettings narrows which messages a real-mode scan considers.
type EmailFilterSettings struct {
	ID              string    `json:"id,omitempty"`
	UserID          string    `json:"userId"`
	SenderEmail     string    `json:"fromEmail"`
	SubjectKeywords string    `json:"subjectKeywords"`
	HasAttachment   bool      `json:"hasAttachment"`
	Label           string    `json:"label"`
	CustomQuery     string    `json:"customQuery"`
	CreatedAt       time.Time `json:"createdAt,omitzero"`
	UpdatedAt       time.Time `json:"updatedAt,omitzero"`
}

// User is an account identified by email address.
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// DateRange bounds a scan. Zero values mean unbounded on that side.
// End is inclusive.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Query describes which emails a source should return.
type Query struct {
	// MaxResults caps the number of bodies returned.
	MaxResults int
	Range      DateRange
	// Filter is optional; nil means the source default.
	Filter *EmailFilterSettings
}

// EmailSource produces plain-text email bodies. Each call re-queries live state.
type EmailSource interface {
	Fetch(ctx context.Context, q Query) ([]string, error)
}

// Extractor turns one email body into a transaction, or nil when the body is
// not a transaction.
type Extractor interface {
	Extract(ctx context.Context, body string) (*Transaction, error)
}

// Writer consumes transactions from a channel and writes them to a destination.
type Writer interface {
	Write(ctx context.Context, in <-chan *Transaction) error
}

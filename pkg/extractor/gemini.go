// Package extractor turns receipt emails into transactions with Gemini and
// synthesizes demo emails for the demo scan mode.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/currency"
	"google.golang.org/genai"

	"github.com/ArionMiles/autoexpense/pkg/api"
)

// Default model names.
const (
	DefaultModel     = "gemini-2.5-flash-lite"
	DefaultDemoModel = "gemini-2.5-flash"
)

// demoSeparator divides generated demo emails in the model output.
const demoSeparator = "---SPLIT---"

const systemInstruction = "You extract financial transactions from emails. " +
	"Read receipts, order confirmations, invoices, payment notices and bank alerts, " +
	"and report the merchant, the total charged, its ISO 4217 currency code, the transaction date, " +
	"one category and a summary of at most five words. " +
	"Marketing, newsletters and anything without a completed payment are not transactions."

const extractPrompt = "Extract the transaction from the email below. " +
	"If the email does not describe a transaction, respond with null.\n\nEmail:\n"

var transactionSchema = &genai.Schema{
	Type:     genai.TypeObject,
	Nullable: genai.Ptr(true),
	Properties: map[string]*genai.Schema{
		"merchant": {Type: genai.TypeString, Description: "Business that was paid"},
		"amount":   {Type: genai.TypeNumber, Description: "Total amount charged"},
		"currency": {Type: genai.TypeString, Description: "ISO 4217 currency code, e.g. USD"},
		"date":     {Type: genai.TypeString, Description: "Transaction date as YYYY-MM-DD"},
		"category": {Type: genai.TypeString, Enum: api.Categories},
		"summary":  {Type: genai.TypeString, Description: "What was bought, at most 5 words"},
	},
	Required: []string{"merchant", "amount", "currency", "date", "category", "summary"},
}

// Model is the subset of the genai client used here. *genai.Models satisfies it.
type Model interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds extractor configuration.
type Config struct {
	APIKey string
	// Model is used for extraction. Defaults to DefaultModel.
	Model string
	// DemoModel is used for demo email generation. Defaults to DefaultDemoModel.
	DemoModel string
}

// Gemini implements api.Extractor on top of the Gemini API.
type Gemini struct {
	models    Model
	model     string
	demoModel string
	logger    *slog.Logger
}

// New creates a Gemini extractor. A missing API key is not fatal: every call
// then fails with api.ErrMissingAPIKey.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, extraction and demo generation will fail")
		return NewWithModel(nil, cfg, logger), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return NewWithModel(client.Models, cfg, logger), nil
}

// NewWithModel creates a Gemini extractor around an existing model client.
func NewWithModel(m Model, cfg Config, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.DemoModel == "" {
		cfg.DemoModel = DefaultDemoModel
	}
	return &Gemini{
		models:    m,
		model:     cfg.Model,
		demoModel: cfg.DemoModel,
		logger:    logger,
	}
}

type extracted struct {
	Merchant string  `json:"merchant"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Date     string  `json:"date"`
	Category string  `json:"category"`
	Summary  string  `json:"summary"`
}

// Extract returns the transaction described by body, or nil when the body is
// empty or the model says it is not a transaction.
func (g *Gemini) Extract(ctx context.Context, body string) (*api.Transaction, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	if g.models == nil {
		return nil, api.ErrMissingAPIKey
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(extractPrompt+body), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    transactionSchema,
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", err)
	}

	raw := cleanModelJSON(resp.Text())
	if raw == "" || raw == "null" {
		return nil, nil
	}

	var out extracted
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrMalformedOutput, err)
	}
	if out.Merchant == "" && out.Amount == 0 {
		return nil, nil
	}

	t := &api.Transaction{
		ID:       uuid.NewString(),
		Merchant: strings.TrimSpace(out.Merchant),
		Amount:   out.Amount,
		Currency: NormalizeCurrency(out.Currency),
		Date:     strings.TrimSpace(out.Date),
		Category: normalizeCategory(out.Category),
		Summary:  strings.TrimSpace(out.Summary),
		Type:     api.KindExpense,
	}

	g.logger.Debug("extracted transaction",
		"merchant", t.Merchant,
		"amount", t.Amount,
		"currency", t.Currency,
		"date", t.Date,
	)
	return t, nil
}

// Generate asks the model for n fabricated receipt emails. A model that
// returns no text yields an empty slice.
func (g *Gemini) Generate(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	if g.models == nil {
		return nil, api.ErrMissingAPIKey
	}

	prompt := fmt.Sprintf(
		"Write %d different realistic but fictional emails a person might receive about purchases or payments: "+
			"restaurant receipts, ride-share trips, online orders, utility bills and subscription renewals. "+
			"Include the merchant, the total with currency and a date in each. "+
			"Mix in at most one email that is not a transaction. "+
			"Output plain text only and put a line containing %s between consecutive emails.",
		n, demoSeparator,
	)

	resp, err := g.models.GenerateContent(ctx, g.demoModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generating demo emails: %w", err)
	}

	emails := SplitDemoEmails(resp.Text())
	if len(emails) > n {
		emails = emails[:n]
	}
	g.logger.Info("generated demo emails", "count", len(emails))
	return emails, nil
}

// SplitDemoEmails splits generator output on the separator, trimming each
// piece and dropping empties.
func SplitDemoEmails(text string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(text, demoSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NormalizeCurrency upper-cases a currency code and canonicalizes it when it
// is a known ISO 4217 code.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if unit, err := currency.ParseISO(code); err == nil {
		return unit.String()
	}
	return code
}

func normalizeCategory(c string) string {
	c = strings.TrimSpace(c)
	if slices.Contains(api.Categories, c) {
		return c
	}
	return "Other"
}

// cleanModelJSON strips Markdown code fences the model may wrap around JSON.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

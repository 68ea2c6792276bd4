// Command importer scans a local mbox export and stores the transactions it
// finds for one user, using the same extraction and dedup path as the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArionMiles/autoexpense/internal/scan"
	"github.com/ArionMiles/autoexpense/pkg/api"
	"github.com/ArionMiles/autoexpense/pkg/config"
	"github.com/ArionMiles/autoexpense/pkg/extractor"
	"github.com/ArionMiles/autoexpense/pkg/logging"
	"github.com/ArionMiles/autoexpense/pkg/reader/gmail"
	"github.com/ArionMiles/autoexpense/pkg/reader/mbox"
	"github.com/ArionMiles/autoexpense/pkg/store/postgres"
)

type options struct {
	mboxPath   string
	userID     string
	period     string
	start      string
	end        string
	maxResults int
	useFilters bool
}

func main() {
	var opts options
	flag.StringVar(&opts.mboxPath, "mbox", "", "path to the mbox file (e.g. a Google Takeout export)")
	flag.StringVar(&opts.userID, "user", "", "user id the transactions belong to")
	flag.StringVar(&opts.period, "period", "", "period shorthand: today, 7days, 14days, 30days, lastweek, all")
	flag.StringVar(&opts.start, "start", "", "inclusive start date (YYYY-MM-DD)")
	flag.StringVar(&opts.end, "end", "", "inclusive end date (YYYY-MM-DD)")
	flag.IntVar(&opts.maxResults, "max", 0, "maximum number of emails to process (default SCAN_MAX_RESULTS)")
	flag.BoolVar(&opts.useFilters, "filters", true, "apply the user's saved email filter settings")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig()).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging())

	if opts.mboxPath == "" || opts.userID == "" {
		logger.Error("both -mbox and -user are required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger) error {
	r, err := dateRange(opts, time.Now())
	if err != nil {
		return err
	}
	if opts.maxResults <= 0 {
		opts.maxResults = cfg.ScanMaxResults
	}

	store, err := postgres.New(ctx, postgres.Config{
		URL:         cfg.DatabaseURL,
		Host:        cfg.PostgresHost,
		Port:        cfg.PostgresPort,
		Database:    cfg.PostgresDB,
		User:        cfg.PostgresUser,
		Password:    cfg.PostgresPassword,
		SSLMode:     cfg.PostgresSSLMode,
		MaxPoolSize: cfg.PostgresMaxConns,
	}, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	q := api.Query{MaxResults: opts.maxResults, Range: r}
	if opts.useFilters {
		if q.Filter, err = store.GetEmailFilters(ctx, opts.userID); err != nil {
			return fmt.Errorf("loading email filters: %w", err)
		}
	}

	bodies, err := mbox.New(opts.mboxPath, logger).Fetch(ctx, q)
	if err != nil {
		return err
	}
	logger.Info("read mailbox", "path", opts.mboxPath, "emails", len(bodies))
	if len(bodies) == 0 {
		return nil
	}

	gemini, err := extractor.New(ctx, extractor.Config{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating extractor: %w", err)
	}

	scanner := scan.New(nil, nil, gemini, store,
		scan.Config{MaxResults: opts.maxResults, MatchMerchant: cfg.DedupMatchMerchant}, logger)

	added, err := scanner.Ingest(ctx, opts.userID, bodies)
	if err != nil {
		return err
	}

	logger.Info("import complete", "user_id", opts.userID, "emails", len(bodies), "new_transactions", len(added))
	for _, t := range added {
		fmt.Printf("%s\t%s\t%.2f %s\t%s\n", t.Date, t.Merchant, t.Amount, t.Currency, t.Category)
	}
	return nil
}

// dateRange resolves -period or -start/-end. Neither means unbounded.
func dateRange(opts options, now time.Time) (api.DateRange, error) {
	if opts.period != "" {
		if opts.start != "" || opts.end != "" {
			return api.DateRange{}, fmt.Errorf("-period cannot be combined with -start or -end: %w", api.ErrValidation)
		}
		return gmail.ParsePeriod(opts.period, now)
	}
	return gmail.ParseRange(opts.start, opts.end)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/effortless/internal/app"
	"github.com/dvloznov/effortless/internal/config"
	"github.com/dvloznov/effortless/internal/domain"
	"github.com/dvloznov/effortless/internal/gcsuploader"
	infraBQ "github.com/dvloznov/effortless/internal/infra/bigquery"
	"github.com/dvloznov/effortless/internal/ingest"
	"github.com/dvloznov/effortless/internal/insights"
	"github.com/dvloznov/effortless/internal/logger"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "enrich":
		runEnrich(log)
	case "rewards":
		runRewards(log)
	case "dashboard":
		runDashboard(log)
	case "upload":
		runUpload(log)
	case "load":
		runLoad(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Effortless CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  enrich     Enrich and match a user's transactions")
	fmt.Println("  rewards    List the reward catalog")
	fmt.Println("  dashboard  Show a user's savings dashboard and summary")
	fmt.Println("  upload     Upload a CSV dataset to GCS")
	fmt.Println("  load       Load a CSV dataset into BigQuery")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup loads configuration and builds the services for a command.
func setup(log zerolog.Logger, configPath string, timeout time.Duration) (context.Context, context.CancelFunc, *app.App) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = log.Level(logger.ParseLevel(cfg.Log.Level))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	return ctx, cancel, svc
}

func runEnrich(log zerolog.Logger) {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	userID := fs.String("user", "", "User id to enrich (default: all users)")
	sinceStr := fs.String("since", "", "Only enrich transactions on or after YYYY-MM-DD")
	fs.Parse(os.Args[2:])

	var since time.Time
	if *sinceStr != "" {
		d, err := time.Parse("2006-01-02", *sinceStr)
		if err != nil {
			log.Fatal().Err(err).Str("since", *sinceStr).Msg("Error: invalid since format, expected YYYY-MM-DD")
		}
		since = d
	}

	ctx, cancel, svc := setup(log, *configPath, 10*time.Minute)
	defer cancel()
	defer svc.Close()

	userIDs := []string{*userID}
	if *userID == "" {
		users, err := svc.Repo.ListUsers(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list users")
		}
		userIDs = userIDs[:0]
		for _, u := range users {
			userIDs = append(userIDs, u.ID)
		}
	}

	failed := false
	for _, id := range userIDs {
		report, err := svc.Enricher.EnrichUser(ctx, id, since)
		if report != nil {
			fmt.Printf("%-10s processed=%d enriched=%d applied=%d missed=%d notified=%d failed=%d saved=%d\n",
				report.UserID, report.Processed, report.Enriched, report.Applied,
				report.Missed, report.Notified, report.Failed, report.Saved)
		}
		if err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("Enrichment failed")
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func runRewards(log zerolog.Logger) {
	fs := flag.NewFlagSet("rewards", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	category := fs.String("category", "", "Only list rewards in this category")
	all := fs.Bool("all", false, "Include rewards outside their validity window")
	fs.Parse(os.Args[2:])

	_, cancel, svc := setup(log, *configPath, time.Minute)
	defer cancel()
	defer svc.Close()

	snap := svc.Catalog.Current()
	rewards := snap.ActiveNow(time.Now(), *category)
	if *all {
		rewards = nil
		for _, r := range snap.Rewards() {
			if *category == "" || r.Category == *category {
				rewards = append(rewards, r)
			}
		}
	}

	fmt.Printf("Catalog %s (%d rewards)\n\n", snap.Version(), snap.Len())
	for _, r := range rewards {
		auto := ""
		if r.AutoApplicable() {
			auto = "auto"
		}
		fmt.Printf("%-12s %-22s %-20s %-14s %s\n", r.ID, r.MerchantName, r.Type, r.Category, auto)
	}
}

func runDashboard(log zerolog.Logger) {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a config file")
	userID := fs.String("user", "", "User id (required)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user is required")
	}

	ctx, cancel, svc := setup(log, *configPath, 2*time.Minute)
	defer cancel()
	defer svc.Close()

	user, err := svc.Users.User(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get user")
	}
	txs, err := svc.Repo.QueryTransactionsByUser(ctx, *userID, time.Time{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query transactions")
	}

	now := time.Now()
	window := svc.Config.InsightsWindow()
	var recent []*domain.Transaction
	for _, tx := range txs {
		if insights.InWindow(tx.TransactionAt, now, window) {
			recent = append(recent, tx)
		}
	}

	dash := insights.BuildDashboard(txs, now, window)
	summary := svc.Summarizer(ctx).Summarize(ctx, insights.NewInput(user, recent, dash, window))

	fmt.Printf("\n=== %s (%s) ===\n", user.Name, user.ID)
	fmt.Printf("Balance:              %s\n", dash.TotalBalance.StringFixed(2))
	fmt.Printf("Transactions:         %d\n", dash.TotalTransactions)
	fmt.Printf("Saved (auto-apply):   %s\n", dash.SavedViaAutoApply.StringFixed(2))
	fmt.Printf("Saved (notification): %s\n", dash.SavedViaNotifications.StringFixed(2))

	if len(dash.RewardsByCategory) > 0 {
		fmt.Println("\n=== Savings by category ===")
		for _, c := range dash.RewardsByCategory {
			fmt.Printf("%-16s %8s  (%d)\n", c.Category, c.TotalSavings.StringFixed(2), c.Count)
		}
	}

	fmt.Printf("\n=== Summary (%s) ===\n%s\n", summary.Kind, summary.Text)
	for _, s := range summary.Insights {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Println()
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	dir := fs.String("dir", "data/sample", "Local dataset directory")
	dest := fs.String("dest", "", "Destination prefix, e.g. gs://bucket/snapshots/2024-01")
	fs.Parse(os.Args[2:])

	if *dest == "" {
		log.Fatal().Msg("Usage: cli upload -dir PATH -dest gs://BUCKET/PREFIX")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := gcsuploader.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer client.Close()

	for _, name := range []string{ingest.UsersFile, ingest.PreferencesFile, ingest.TransactionsFile, ingest.RewardsFile} {
		path := filepath.Join(*dir, name)
		if _, err := os.Stat(path); err != nil {
			log.Warn().Str("file", path).Msg("Skipping missing file")
			continue
		}

		uri := gcsuploader.JoinURI(*dest, name)
		bucket, object, err := gcsuploader.ParseURI(uri)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid destination")
		}

		log.Info().Str("file", path).Str("uri", uri).Msg("Uploading file to GCS")
		if err := client.UploadFile(ctx, bucket, object, path); err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Printf("Uploaded %s to %s\n", path, uri)
	}
}

func runLoad(log zerolog.Logger) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	dir := fs.String("dir", "data/sample", "Dataset directory or gs:// prefix")
	project := fs.String("project", os.Getenv("EFFORTLESS_BIGQUERY_PROJECT_ID"), "BigQuery project id")
	dataset := fs.String("dataset", "effortless", "BigQuery dataset")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var data *ingest.Dataset
	var err error
	if gcsuploader.IsURI(*dir) {
		client, cerr := gcsuploader.NewClient(ctx)
		if cerr != nil {
			log.Fatal().Err(cerr).Msg("Failed to create GCS client")
		}
		defer client.Close()
		data, err = ingest.LoadDataset(ctx, *dir, client)
	} else {
		data, err = ingest.LoadDataset(ctx, *dir, nil)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load dataset")
	}

	repo, err := infraBQ.NewBigQueryRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	defer repo.Close()

	users := data.Users()
	if err := repo.InsertUsers(ctx, users); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert users")
	}
	for _, u := range users {
		p, ok, err := data.GetPreferences(ctx, u.ID)
		if err != nil || !ok {
			continue
		}
		if err := repo.UpsertPreferences(ctx, p); err != nil {
			log.Fatal().Err(err).Str("user_id", u.ID).Msg("Failed to store preferences")
		}
	}

	rewards, _ := data.ListRewards(ctx)
	if err := repo.InsertRewards(ctx, rewards, 0); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert rewards")
	}

	txs := data.Transactions()
	if err := repo.InsertTransactions(ctx, txs); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert transactions")
	}

	fmt.Printf("Loaded %d users, %d rewards and %d transactions into %s.%s\n",
		len(users), len(rewards), len(txs), *project, *dataset)
}

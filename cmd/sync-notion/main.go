package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/effortless/internal/app"
	"github.com/dvloznov/effortless/internal/config"
	"github.com/dvloznov/effortless/internal/logger"
	"github.com/dvloznov/effortless/internal/notionsync"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	configPath := flag.String("config", "", "Path to a config file (or set EFFORTLESS_CONFIG)")
	usersFlag := flag.String("users", "", "Comma separated user ids to sync (default: all users)")
	sinceStr := flag.String("since", "", "Only sync transactions on or after YYYY-MM-DD")
	prune := flag.Bool("prune", false, "Archive pages of transactions that no longer exist (full syncs only)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = app.Logger(cfg)

	if cfg.Notion.Token == "" {
		log.Fatal().Msg("Error: notion.token is required (EFFORTLESS_NOTION_TOKEN)")
	}
	if cfg.Notion.DatabaseID == "" {
		log.Fatal().Msg("Error: notion.database_id is required (EFFORTLESS_NOTION_DATABASE_ID)")
	}

	var since time.Time
	if *sinceStr != "" {
		since, err = time.Parse("2006-01-02", *sinceStr)
		if err != nil {
			log.Fatal().Err(err).Str("since", *sinceStr).Msg("Error: invalid since format, expected YYYY-MM-DD")
		}
	}

	userIDs := splitIDs(*usersFlag)
	if len(userIDs) > 0 && *prune {
		log.Fatal().Msg("Error: --prune requires syncing all users")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	if len(userIDs) == 0 {
		users, err := svc.Repo.ListUsers(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list users")
		}
		for _, u := range users {
			userIDs = append(userIDs, u.ID)
		}
	}

	notionClient := notionsync.NewNotionClient(cfg.Notion.Token, 3)

	txColumns := notionsync.TransactionColumns
	if cfg.Notion.RewardsDatabaseID != "" {
		txColumns = append(txColumns[:len(txColumns):len(txColumns)], notionsync.PropReward)
		if err := notionClient.CheckDatabase(ctx, cfg.Notion.RewardsDatabaseID, notionsync.RewardColumns...); err != nil {
			log.Fatal().Err(err).Msg("Rewards database is not usable")
		}
	}
	if err := notionClient.CheckDatabase(ctx, cfg.Notion.DatabaseID, txColumns...); err != nil {
		log.Fatal().Err(err).Msg("Transactions database is not usable")
	}

	var rewardPages map[string]string
	if cfg.Notion.RewardsDatabaseID != "" {
		pages, res, err := notionsync.SyncRewards(ctx, svc.Catalog.Current().Rewards(), notionClient, cfg.Notion.RewardsDatabaseID, *dryRun)
		if err != nil {
			log.Fatal().Err(err).Msg("Reward sync failed")
		}
		rewardPages = pages
		fmt.Printf("Rewards: %d created, %d updated, %d failed\n", res.Created, res.Updated, res.Failed)
	}

	res, err := notionsync.SyncTransactions(ctx, svc.Repo, userIDs, notionClient, cfg.Notion.DatabaseID, rewardPages, notionsync.Options{
		Since:  since,
		Prune:  *prune,
		DryRun: *dryRun,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Transactions: %d created, %d updated, %d archived, %d failed\n", res.Created, res.Updated, res.Archived, res.Failed)
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

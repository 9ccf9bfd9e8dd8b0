package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	infraBQ "github.com/finum/finum/internal/infra/bigquery"
	"github.com/finum/finum/internal/jobs"
	"github.com/finum/finum/internal/jobs/inmemory"
	"github.com/finum/finum/internal/ledger"
	"github.com/finum/finum/internal/logger"
	"github.com/finum/finum/internal/notionsync"
	"github.com/finum/finum/internal/patterns"
)

func main() {
	var (
		users        = flag.String("users", os.Getenv("FINUM_USERS"), "comma-separated user IDs to maintain (or set FINUM_USERS env)")
		refreshSpec  = flag.String("refresh-schedule", "0 3 * * *", "cron schedule for pattern refresh")
		reconcSpec   = flag.String("reconcile-schedule", "0 4 * * 1", "cron schedule for bucket reconcile")
		notionSpec   = flag.String("notion-schedule", "30 3 * * *", "cron schedule for Notion sync")
		notionPatDB  = flag.String("notion-patterns-db", os.Getenv("NOTION_PATTERNS_DB"), "Notion database ID for subscriptions")
		notionBudgDB = flag.String("notion-budgets-db", os.Getenv("NOTION_BUDGETS_DB"), "Notion database ID for budgets")
	)
	flag.Parse()

	log := logger.New()

	userIDs := splitUsers(*users)
	if len(userIDs) == 0 {
		log.Fatal().Msg("No users configured - set -users or FINUM_USERS")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := infraBQ.NewRepository(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	ledgerSvc := ledger.NewService(repo, log)
	patternsSvc := patterns.NewService(repo, log)

	notionToken := os.Getenv("NOTION_TOKEN")
	var notionClient notionsync.NotionService
	if notionToken != "" {
		notionClient = notionsync.NewNotionClient(notionToken)
	} else {
		log.Warn().Msg("NOTION_TOKEN not set - Notion sync is disabled")
	}

	// Job store and queue. In production, this would be replaced with
	// Cloud Tasks or Pub/Sub.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, jobStore)

	log.Info().Strs("users", userIDs).Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		userJob, ok := job.(*jobs.UserJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", userJob.JobID).
			Str("type", string(userJob.Type)).
			Str("user_id", userJob.UserID).
			Msg("Processing job")

		switch userJob.Type {
		case jobs.JobTypeRefreshPatterns:
			detected, err := patternsSvc.Refresh(ctx, userJob.UserID, userJob.LookbackMonths)
			if err != nil {
				return err
			}
			log.Info().
				Str("user_id", userJob.UserID).
				Int("patterns", len(detected)).
				Msg("Pattern refresh completed")
			return nil
		case jobs.JobTypeReconcileBuckets:
			drifts, err := ledgerSvc.Reconcile(ctx, userJob.UserID)
			if err != nil {
				return err
			}
			if len(drifts) > 0 {
				log.Warn().
					Str("user_id", userJob.UserID).
					Int("drifts", len(drifts)).
					Msg("Reconcile repaired drifted buckets")
			}
			return nil
		default:
			return fmt.Errorf("unknown job type: %s", userJob.Type)
		}
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Scheduled maintenance. Each tick enqueues per-user jobs so the
	// queue's retry policy applies to scheduled runs too.
	scheduler := cron.New()

	if _, err := scheduler.AddFunc(*refreshSpec, func() {
		for _, userID := range userIDs {
			job := &jobs.UserJob{Type: jobs.JobTypeRefreshPatterns, UserID: userID}
			if err := jobQueue.Publish(ctx, job); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue scheduled pattern refresh")
			}
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Invalid refresh schedule")
	}

	if _, err := scheduler.AddFunc(*reconcSpec, func() {
		for _, userID := range userIDs {
			job := &jobs.UserJob{Type: jobs.JobTypeReconcileBuckets, UserID: userID}
			if err := jobQueue.Publish(ctx, job); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to enqueue scheduled reconcile")
			}
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Invalid reconcile schedule")
	}

	if notionClient != nil {
		if _, err := scheduler.AddFunc(*notionSpec, func() {
			syncCtx := logger.WithContext(ctx, log)
			for _, userID := range userIDs {
				if *notionPatDB != "" {
					if err := notionsync.SyncPatterns(syncCtx, repo, notionClient, *notionPatDB, userID, false); err != nil {
						log.Error().Err(err).Str("user_id", userID).Msg("Notion pattern sync failed")
					}
				}
				if *notionBudgDB != "" {
					if err := notionsync.SyncBuckets(syncCtx, repo, notionClient, *notionBudgDB, userID, false); err != nil {
						log.Error().Err(err).Str("user_id", userID).Msg("Notion bucket sync failed")
					}
				}
			}
		}); err != nil {
			log.Fatal().Err(err).Msg("Invalid Notion schedule")
		}
	}

	scheduler.Start()

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

func splitUsers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

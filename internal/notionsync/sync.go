// Package notionsync mirrors Finum data into Notion databases so
// budgets and subscriptions stay visible next to the rest of a
// personal workspace. Notion is a mirror, never a source: sync always
// overwrites from storage.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/finum/finum/internal/domain"
	"github.com/finum/finum/internal/logger"
)

// Store is the subset of storage the sync reads from.
type Store interface {
	ListPatterns(ctx context.Context, userID string) ([]*domain.Pattern, error)
	ListBuckets(ctx context.Context, userID string) ([]*domain.Bucket, error)
}

// SyncPatterns mirrors the user's recurring patterns into the Notion
// Subscriptions database. Pages whose pattern no longer exists are
// archived; existing pages are updated in place; the rest are created.
func SyncPatterns(ctx context.Context, store Store, notionClient NotionService, notionDBID, userID string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("user_id", userID).
		Bool("dry_run", dryRun).
		Msg("Starting pattern sync to Notion")

	patterns, err := store.ListPatterns(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to query patterns: %w", err)
	}

	validIDs := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		validIDs[p.ID] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	// Archive stale pages and remember which patterns already exist.
	existingPageIDs := make(map[string]string)
	var deleted int
	for _, page := range notionPages {
		patternID := extractRichTextProp(page, "Pattern ID")

		if patternID != "" && validIDs[patternID] {
			existingPageIDs[patternID] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().
				Str("pattern_id", patternID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would delete stale Notion page")
			deleted++
			continue
		}
		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("pattern_id", patternID).
				Str("page_id", string(page.ID)).
				Msg("Failed to delete stale Notion page")
			continue
		}
		deleted++
	}

	var created, updated int
	for _, p := range patterns {
		props := PatternToNotionProperties(p)

		if pageID, ok := existingPageIDs[p.ID]; ok {
			if dryRun {
				log.Info().Str("pattern_id", p.ID).Msg("[DRY RUN] Would update Notion page")
				updated++
				continue
			}
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().
					Err(err).
					Str("pattern_id", p.ID).
					Str("page_id", pageID).
					Msg("Failed to update Notion page")
				continue
			}
			updated++
			continue
		}

		if dryRun {
			log.Info().Str("pattern_id", p.ID).Msg("[DRY RUN] Would create Notion page")
			created++
			continue
		}
		if _, err := notionClient.CreatePage(ctx, notionDBID, props); err != nil {
			log.Warn().
				Err(err).
				Str("pattern_id", p.ID).
				Msg("Failed to create Notion page")
			continue
		}
		created++
	}

	log.Info().
		Int("deleted", deleted).
		Int("created", created).
		Int("updated", updated).
		Int("total", len(patterns)).
		Msg("Pattern sync completed")

	return nil
}

// SyncBuckets mirrors the user's budget buckets into the Notion
// Budgets database using the same archive/update/create diff.
func SyncBuckets(ctx context.Context, store Store, notionClient NotionService, notionDBID, userID string, dryRun bool) error {
	log := logger.FromContext(ctx)

	log.Info().
		Str("user_id", userID).
		Bool("dry_run", dryRun).
		Msg("Starting bucket sync to Notion")

	buckets, err := store.ListBuckets(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to query buckets: %w", err)
	}

	validIDs := make(map[string]bool, len(buckets))
	for _, b := range buckets {
		validIDs[b.ID] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return fmt.Errorf("failed to query Notion pages: %w", err)
	}

	existingPageIDs := make(map[string]string)
	var deleted int
	for _, page := range notionPages {
		bucketID := extractRichTextProp(page, "Bucket ID")

		if bucketID != "" && validIDs[bucketID] {
			existingPageIDs[bucketID] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().
				Str("bucket_id", bucketID).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would delete stale Notion page")
			deleted++
			continue
		}
		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("bucket_id", bucketID).
				Str("page_id", string(page.ID)).
				Msg("Failed to delete stale Notion page")
			continue
		}
		deleted++
	}

	var created, updated int
	for _, b := range buckets {
		props := BucketToNotionProperties(b)

		if pageID, ok := existingPageIDs[b.ID]; ok {
			if dryRun {
				log.Info().Str("bucket_id", b.ID).Msg("[DRY RUN] Would update Notion page")
				updated++
				continue
			}
			if _, err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().
					Err(err).
					Str("bucket_id", b.ID).
					Str("page_id", pageID).
					Msg("Failed to update Notion page")
				continue
			}
			updated++
			continue
		}

		if dryRun {
			log.Info().Str("bucket_id", b.ID).Msg("[DRY RUN] Would create Notion page")
			created++
			continue
		}
		if _, err := notionClient.CreatePage(ctx, notionDBID, props); err != nil {
			log.Warn().
				Err(err).
				Str("bucket_id", b.ID).
				Msg("Failed to create Notion page")
			continue
		}
		created++
	}

	log.Info().
		Int("deleted", deleted).
		Int("created", created).
		Int("updated", updated).
		Int("total", len(buckets)).
		Msg("Bucket sync completed")

	return nil
}

// queryAllNotionPages queries all pages from a Notion database.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// extractRichTextProp reads a rich-text property's plain text from a
// Notion page. Returns empty string if absent.
func extractRichTextProp(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name]; ok {
		if richText, ok := prop.(*notionapi.RichTextProperty); ok {
			if len(richText.RichText) > 0 {
				return richText.RichText[0].PlainText
			}
		}
	}
	return ""
}

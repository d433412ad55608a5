package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lepinkainen/bookfetch/internal/config"
	"github.com/lepinkainen/bookfetch/internal/kakao"
)

// SearchCmd searches books by free text.
type SearchCmd struct {
	Query string `arg:"" help:"Search text" required:""`
	Sort  string `help:"Sort mode: accuracy or latest" default:"accuracy" enum:"accuracy,latest"`
	Page  int    `help:"Result page" default:"1"`
	Size  int    `help:"Results per page (max 50)" default:"10"`
}

func (s *SearchCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	result := a.api.Search(context.Background(), kakao.SearchParams{
		Query: s.Query,
		Sort:  kakao.SortMode(s.Sort),
		Page:  s.Page,
		Size:  s.Size,
	})
	return printJSON(result)
}

// ISBNCmd looks a single book up by identifier.
type ISBNCmd struct {
	ISBN string `arg:"" help:"ISBN-10 or ISBN-13, separators allowed" required:""`
}

func (i *ISBNCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	return printJSON(a.api.GetByISBN(context.Background(), i.ISBN))
}

// BatchCmd runs several searches sequentially with inter-call spacing.
type BatchCmd struct {
	Queries []string `arg:"" help:"Search queries" required:""`
}

func (b *BatchCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	// Batch runs can live long enough for the periodic flush and sweep to
	// matter; stop them when the run ends.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.api.StartBackground(ctx)

	return printJSON(a.api.SearchBatch(ctx, b.Queries))
}

// PopularCmd fetches the predefined popular-book categories.
type PopularCmd struct{}

func (p *PopularCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.api.StartBackground(ctx)

	return printJSON(a.api.PopularBooks(ctx))
}

// UsageCmd shows today's quota usage and the retained history.
type UsageCmd struct {
	History bool `help:"Include the last seven daily windows"`
}

func (u *UsageCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if u.History {
		return printJSON(map[string]any{
			"today":   a.api.UsageStatus(),
			"history": a.api.UsageHistory(),
		})
	}
	return printJSON(a.api.UsageStatus())
}

// StatsCmd shows cache effectiveness and endpoint telemetry.
type StatsCmd struct {
	Days int `help:"Aggregation window in days" default:"7"`
}

func (s *StatsCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	daily, err := a.usage.DailyStats("")
	if err != nil {
		return fmt.Errorf("failed to read daily stats: %w", err)
	}
	trend, err := a.usage.GetTrend("daily", s.Days)
	if err != nil {
		return fmt.Errorf("failed to read usage trend: %w", err)
	}
	popular, err := a.usage.PopularEndpoints(s.Days, 10)
	if err != nil {
		return fmt.Errorf("failed to read popular endpoints: %w", err)
	}
	errorPatterns, err := a.usage.ErrorPatterns(s.Days)
	if err != nil {
		return fmt.Errorf("failed to read error patterns: %w", err)
	}

	return printJSON(map[string]any{
		"cache":          a.api.CacheStats(),
		"daily":          daily,
		"trend":          trend,
		"popular":        popular,
		"error_patterns": errorPatterns,
	})
}

// CacheCmd groups cache maintenance subcommands.
type CacheCmd struct {
	Cleanup    CacheCleanupCmd    `cmd:"" help:"Remove expired entries and old usage rows"`
	Clear      CacheClearCmd      `cmd:"" help:"Empty the cache completely"`
	Invalidate CacheInvalidateCmd `cmd:"" help:"Remove entries whose key contains a substring"`
	Top        CacheTopCmd        `cmd:"" help:"Show the most-read persistent cache keys"`
}

// CacheCleanupCmd sweeps expired cache entries and aged usage aggregates.
type CacheCleanupCmd struct{}

func (c *CacheCleanupCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	removed := a.tiered.Cleanup()
	usageRemoved, err := a.usage.Cleanup(config.UsageRetentionDays())
	if err != nil {
		return fmt.Errorf("failed to clean usage aggregates: %w", err)
	}

	return printJSON(map[string]any{
		"cache_entries_removed": removed,
		"usage_rows_removed":    usageRemoved,
	})
}

// CacheClearCmd empties both cache tiers.
type CacheClearCmd struct{}

func (c *CacheClearCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	a.tiered.Clear()
	return nil
}

// CacheInvalidateCmd removes entries by key substring.
type CacheInvalidateCmd struct {
	Pattern string `arg:"" help:"Substring to match against cache keys" required:""`
}

func (c *CacheInvalidateCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	removed := a.tiered.DeletePattern(c.Pattern)
	return printJSON(map[string]any{"removed": removed})
}

// CacheTopCmd lists warm-up candidates from the persistent tier.
type CacheTopCmd struct {
	Limit int `help:"Number of keys to show" default:"10"`
}

func (c *CacheTopCmd) Run() error {
	a, cleanup, err := newApp()
	if err != nil {
		return err
	}
	defer cleanup()

	top, err := a.tiered.TopPersistentKeys(c.Limit)
	if err != nil {
		return fmt.Errorf("failed to read top keys: %w", err)
	}
	return printJSON(top)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

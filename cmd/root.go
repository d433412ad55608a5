// Package cmd wires the kong CLI for bookfetch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/bookfetch/internal/books"
	"github.com/lepinkainen/bookfetch/internal/cache"
	"github.com/lepinkainen/bookfetch/internal/config"
	"github.com/lepinkainen/bookfetch/internal/kakao"
	"github.com/lepinkainen/bookfetch/internal/quota"
	"github.com/lepinkainen/bookfetch/internal/usagelog"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"
)

// CLI represents the complete command structure for bookfetch.
type CLI struct {
	// Global flags
	APIKey      string `help:"Kakao REST API key (overrides config and KAKAO_API_KEY)"`
	CacheDBFile string `help:"Path to SQLite database file" default:"./bookfetch.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 24h)" default:"24h"`

	Search  SearchCmd  `cmd:"" help:"Search books by free text"`
	ISBN    ISBNCmd    `cmd:"" help:"Look a book up by ISBN"`
	Batch   BatchCmd   `cmd:"" help:"Run multiple searches sequentially"`
	Popular PopularCmd `cmd:"" help:"Fetch the predefined popular-book categories"`
	Usage   UsageCmd   `cmd:"" help:"Show daily quota usage"`
	Stats   StatsCmd   `cmd:"" help:"Show cache and endpoint statistics"`
	Cache   CacheCmd   `cmd:"" help:"Cache maintenance"`
}

// Execute runs the Kong-based CLI.
func Execute() {
	initLogging()
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("bookfetch"),
		kong.Description("Kakao book-search client with quota tracking, caching and usage analytics."),
		kong.UsageOnError(),
	)

	updateGlobalConfig(&cli)

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()
	if err := viper.BindEnv("kakao.api_key", "KAKAO_API_KEY"); err != nil {
		slog.Error("Failed to bind environment variable", "error", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("Fatal error reading config file", "error", err)
			os.Exit(1)
		}
	}
}

func updateGlobalConfig(cli *CLI) {
	if cli.APIKey != "" {
		viper.Set("kakao.api_key", cli.APIKey)
	}
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
}

func initLogging() {
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// app bundles the wired subsystem for a single command invocation.
type app struct {
	api        *books.API
	tiered     *cache.Tiered
	usage      *usagelog.Logger
	usageStore *usagelog.Store
}

// newApp wires the facade from configuration. The returned cleanup flushes
// telemetry and closes both SQLite handles.
func newApp() (*app, func(), error) {
	apiKey := config.APIKey()
	if apiKey == "" {
		return nil, nil, fmt.Errorf("kakao API key is required (set kakao.api_key in config or KAKAO_API_KEY)")
	}

	store, err := cache.NewStore(config.CacheDBFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	usageStore, err := usagelog.NewStore(config.CacheDBFile())
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to open usage store: %w", err)
	}

	tiered := cache.NewTiered(store,
		cache.WithTTL(config.CacheTTL()),
		cache.WithMaxSize(config.CacheMaxSize()),
		cache.WithPolicy(cache.Policy(config.EvictionPolicy())),
	)
	usage := usagelog.New(usageStore)
	tracker := quota.New(config.QuotaCeiling())
	client := kakao.NewClient(apiKey,
		kakao.WithMaxRetries(config.MaxRetries()),
		kakao.WithTimeout(config.RequestTimeout()),
	)

	a := &app{
		api:        books.New(client, tiered, tracker, usage),
		tiered:     tiered,
		usage:      usage,
		usageStore: usageStore,
	}
	cleanup := func() {
		usage.Close()
		if err := a.tiered.Close(); err != nil {
			slog.Warn("Failed to close cache store", "error", err)
		}
		if err := usageStore.Close(); err != nil {
			slog.Warn("Failed to close usage store", "error", err)
		}
	}
	return a, cleanup, nil
}

// Command catalog-etl fetches an artist's Spotify catalog into a CSV
// snapshot and loads snapshots into PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/justestif/spotify-catalog-etl/internal/config"
	"github.com/justestif/spotify-catalog-etl/internal/db"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
	"github.com/justestif/spotify-catalog-etl/internal/pipeline"
	"github.com/justestif/spotify-catalog-etl/internal/spotify"
	"github.com/justestif/spotify-catalog-etl/internal/storage"
	"github.com/justestif/spotify-catalog-etl/internal/web"
)

var rootCmd = &cobra.Command{
	Use:           "catalog-etl",
	Short:         "Spotify artist catalog ETL",
	Long:          `catalog-etl walks an artist's Spotify catalog into a dated CSV snapshot in object storage, and replaces a PostgreSQL table with a snapshot's rows.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch an artist's catalog and publish a snapshot",
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Replace the destination table with a snapshot",
	Args:  cobra.NoArgs,
	RunE:  runLoad,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve HTTP triggers for fetch and load",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(serveCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Detail requests in flight per level (default from config)")
	rootCmd.PersistentFlags().Bool("skip-failed-albums", false, "Drop albums whose details fail instead of aborting")

	fetchCmd.Flags().String("artist", "", "Artist to fetch (default from config)")
	loadCmd.Flags().String("key", "", "Snapshot key to load (default: configured load key or today's key)")
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file, the environment and flags, in
// increasing order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	logger.SetDebugMode(debug)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		cfg.Pipeline.Concurrency = n
	}
	if cmd.Flags().Changed("skip-failed-albums") {
		cfg.Pipeline.SkipFailedAlbums, _ = cmd.Flags().GetBool("skip-failed-albums")
	}

	logger.Debug("Configuration loaded - bucket: %s, table: %s, timezone: %s",
		cfg.Storage.Bucket, cfg.Database.Table, cfg.Pipeline.Timezone)
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func withRunTimeout(ctx context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Pipeline.RunTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.Pipeline.RunTimeout)
}

func newStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	if cfg.Storage.Dir != "" {
		logger.Debug("Using local snapshot directory %s", cfg.Storage.Dir)
		return storage.NewFileStore(cfg.Storage.Dir), nil
	}
	return storage.NewS3Store(ctx, storage.S3Config{
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
	})
}

func newPublisher(cfg *config.Config, store storage.ObjectStore) (*pipeline.Publisher, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return pipeline.NewPublisher(store, loc), nil
}

func newFetchService(cfg *config.Config, publisher *pipeline.Publisher) *pipeline.FetchService {
	provider := spotify.NewTokenProvider(cfg.SpotifyID, cfg.SpotifySecret)
	newSession := func(ctx context.Context) (spotify.Fetcher, error) {
		client, err := spotify.NewSession(ctx, provider, cfg.Pipeline.RequestTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return pipeline.NewFetchService(newSession, publisher, cfg.Pipeline.DefaultArtist,
		spotify.WithConcurrency(cfg.Pipeline.Concurrency),
		spotify.WithSkipFailedAlbums(cfg.Pipeline.SkipFailedAlbums),
	)
}

func newLoader(ctx context.Context, cfg *config.Config, store storage.ObjectStore, publisher *pipeline.Publisher) (*pipeline.Loader, *db.DB, error) {
	database, err := db.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	defaultKey := func() string {
		if cfg.Pipeline.LoadKey != "" {
			return cfg.Pipeline.LoadKey
		}
		return publisher.Key(cfg.Pipeline.DefaultArtist)
	}
	return pipeline.NewLoader(store, database.Snapshots(cfg.Database.Table), defaultKey), database, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireSpotify(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := withRunTimeout(ctx, cfg)
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	publisher, err := newPublisher(cfg, store)
	if err != nil {
		return err
	}

	artist, _ := cmd.Flags().GetString("artist")
	result, err := newFetchService(cfg, publisher).Run(ctx, artist)
	if err != nil {
		return err
	}

	for _, f := range result.Report.Failed {
		logger.Warn("Album %s (%s) skipped: %v", f.AlbumID, f.Name, f.Err)
	}
	fmt.Printf("%s\n%s: %d rows, %s\n", result.Message, result.Artist, result.Rows, result.Report)
	return nil
}

func runLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	ctx, cancel := withRunTimeout(ctx, cfg)
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	publisher, err := newPublisher(cfg, store)
	if err != nil {
		return err
	}

	loader, database, err := newLoader(ctx, cfg, store, publisher)
	if err != nil {
		return err
	}
	defer database.Close()

	key, _ := cmd.Flags().GetString("key")
	result, err := loader.Load(ctx, key)
	if err != nil {
		return err
	}

	fmt.Println(result.Message)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if err := errors.Join(cfg.RequireSpotify(), cfg.RequireDatabase()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	publisher, err := newPublisher(cfg, store)
	if err != nil {
		return err
	}

	loader, database, err := newLoader(ctx, cfg, store, publisher)
	if err != nil {
		return err
	}
	defer database.Close()

	server := web.NewServer(web.ServerConfig{
		Addr:       cfg.Server.Addr,
		RunTimeout: cfg.Pipeline.RunTimeout,
	}, newFetchService(cfg, publisher), loader)

	return server.Run()
}

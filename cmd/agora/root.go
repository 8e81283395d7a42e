package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"agora/internal/auth"
	"agora/internal/config"
	"agora/internal/database"
	"agora/internal/feed"
	"agora/internal/lock"
	"agora/internal/rss"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	envFile string

	cfg    config.Config
	db     *database.DB
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agora",
	Short: "Agora news discussion platform",
	Long: `Agora publishes posts imported from RSS feeds and lets members
discuss them. The serve command runs the HTTP API; the other commands
operate on the same database from the shell.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFile(envFile); err != nil {
			return err
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		logger = log.New(os.Stdout, "agora: ", log.LstdFlags|log.Lshortfile)

		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		db, err = database.NewDB(cfg.DBPath, database.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if db != nil {
			if err := db.Close(); err != nil {
				return fmt.Errorf("failed to close database: %w", err)
			}
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file path (default: data/agora.db or AGORA_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

// loadEnvFile loads path into the environment. A missing file is not an error;
// variables already set win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// services holds everything built from the configuration.
type services struct {
	auth   *auth.Service
	feeds  *feed.Service
	locker lock.Locker
}

func (s *services) Close() {
	if c, ok := s.locker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Printf("Error closing lock backend: %v", err)
		}
	}
}

func newServices(cfg config.Config, db *database.DB, logger *log.Logger) (*services, error) {
	var parser rss.Parser = rss.LenientParser{}
	if cfg.FeedParser == config.ParserStrict {
		parser = rss.NewStrictParser()
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		redisLocker, err := lock.NewRedis(lock.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, err
		}
		locker = redisLocker
		logger.Printf("Using Redis import locks at %s", cfg.RedisAddr)
	}

	fetcher := feed.NewFetcher(logger, feed.FetcherConfig{
		Timeout:  cfg.FetchTimeout,
		MaxBytes: cfg.MaxFeedBytes,
	})
	importer := feed.NewImporter(fetcher, parser, db, db, logger)

	return &services{
		auth:   auth.NewService(cfg.SessionTTL, cfg.AdminEmails),
		feeds:  feed.NewService(db, fetcher, importer, locker, logger),
		locker: locker,
	}, nil
}

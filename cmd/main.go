package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"neowhatai/internal/config"
	"neowhatai/internal/infrastructure"
	"neowhatai/internal/repository"
)

var (
	envFile string

	cfg         config.Config
	logger      *slog.Logger
	closeLogger = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "neowhatai",
	Short: "Multi-tenant WhatsApp assistant answering from each client's knowledge base",
	Long: `NeoWhatAI receives WhatsApp messages through a gateway webhook (or a direct
whatsmeow session), finds the client owning the session, retrieves passages
from that client's knowledge base and answers with an LLM.

Configuration is read from the environment, optionally preloaded from a .env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		envErr := godotenv.Load(envFile)
		if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, envErr)
		}

		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, closeLogger = config.NewLogger(cfg.LogOptions(cmd.Name()))
		slog.SetDefault(logger)
		if envErr != nil {
			logger.Warn("no env file, using process environment only", "file", envFile)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tenantsCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(versionCmd)
}

// stores holds the repositories shared by every command that needs the database.
type stores struct {
	db        *infrastructure.PostgresClient
	tenants   *repository.TenantRepository
	documents *repository.DocumentRepository
	ledger    *repository.LedgerRepository
	logs      *repository.LogRepository
}

func openStores(ctx context.Context) (*stores, error) {
	db, err := infrastructure.NewPostgresClient(ctx, cfg.DatabaseURL, cfg.EmbedDimension, logger.With("component", "postgres"))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &stores{
		db:        db,
		tenants:   repository.NewTenantRepository(db.Pool),
		documents: repository.NewDocumentRepository(db.Pool),
		ledger:    repository.NewLedgerRepository(db.Pool),
		logs:      repository.NewLogRepository(db.Pool),
	}, nil
}

func (s *stores) Close() {
	s.db.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

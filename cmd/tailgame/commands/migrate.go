package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tailgame/internal/picks"
	"github.com/wonny/tailgame/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the picks schema in PostgreSQL",
	Long: `Connects to $DATABASE_URL and creates the tailgame schema (picks, cycles).
Safe to run repeatedly.

Example:
  go run ./cmd/tailgame migrate
  go run ./cmd/tailgame migrate --print`,
	RunE: runMigrate,
}

var migratePrint bool

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "print the schema instead of applying it")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		fmt.Print(picks.Schema())
		return nil
	}

	cfg, log, err := loadConfig(true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	health := db.HealthCheck(ctx)
	log.WithField("total_conns", health.TotalConns).Debug("Connected to database")

	if err := picks.NewRepository(db.Pool).Migrate(ctx); err != nil {
		return err
	}

	PrintSuccess("Schema tailgame is up to date")
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/wonny/tailgame/pkg/redis"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Probe every configured quote source once",
	Long: `Fetches one snapshot from each source in SOURCE_ORDER, bypassing the
fallback chain, and prints rows, duration and errors.

Example:
  go run ./cmd/tailgame sources`,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(true)
	if err != nil {
		return err
	}

	rc, err := redis.New(cfg)
	if err != nil {
		rc = redis.Disabled()
	}
	defer rc.Close()

	sources, _, err := buildSources(cfg, log, rc, redis.NewCache(rc, cachePrefix))
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"source", "rows", "duration", "columns", "result"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	failed := 0
	for _, src := range sources {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		start := time.Now()
		snap, err := src.Fetch(ctx)
		cancel()
		elapsed := time.Since(start).Round(time.Millisecond).String()

		if err != nil {
			failed++
			table.Rich(
				[]string{string(src.Name()), "0", elapsed, "", err.Error()},
				[]tablewriter.Colors{{}, {}, {}, {}, {tablewriter.FgRedColor}},
			)
			continue
		}
		table.Append([]string{
			string(src.Name()),
			strconv.Itoa(snap.Len()),
			elapsed,
			strconv.Itoa(len(snap.Columns)),
			"OK",
		})
	}
	table.Render()

	if failed == len(sources) {
		return fmt.Errorf("all %d sources failed", failed)
	}
	return nil
}

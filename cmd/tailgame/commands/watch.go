package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tailgame/internal/external/tencent"
	"github.com/wonny/tailgame/internal/market"
	sig "github.com/wonny/tailgame/internal/signal"
	"github.com/wonny/tailgame/pkg/httputil"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch one symbol against a support line",
	Long: `Polls one symbol and prints a signal each interval:

  BUY          price touches support from above (within 1%)
  REDUCE       support broken
  TAKE_PROFIT  volume ratio > 3 with change > 7%
  HOLD         otherwise
  LINK_DOWN    quote fetch failed

Example:
  go run ./cmd/tailgame watch --symbol 002400 --support 12.26
  go run ./cmd/tailgame watch --symbol 600000 --support 8.5 --interval 30s`,
	RunE: runWatch,
}

var (
	watchSymbol   string
	watchSupport  float64
	watchInterval time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchSymbol, "symbol", "", "6-digit stock code")
	watchCmd.Flags().Float64Var(&watchSupport, "support", 0, "support price")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Minute, "poll interval")
	watchCmd.MarkFlagRequired("symbol")
	watchCmd.MarkFlagRequired("support")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(true)
	if err != nil {
		return err
	}
	if watchInterval < time.Second {
		return fmt.Errorf("interval must be at least 1s")
	}

	hc := httputil.NewWithTimeout(cfg, log, cfg.Sources.HTTPTimeout)
	source := tencent.NewClient(hc, log, cfg.Sources.TencentBaseURL, market.StaticCodes{market.PrefixCode(watchSymbol)}, 1)

	watcher, err := sig.NewWatcher(sig.DefaultConfig(watchSymbol, watchSupport), source, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintDoubleSeparator()
	fmt.Printf("  Watching %s, support %.2f, every %s\n", watchSymbol, watchSupport, watchInterval)
	PrintDoubleSeparator()

	err = watcher.Run(ctx, watchInterval, printSignal)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func printSignal(s sig.Signal) {
	if s.Factors == nil {
		PrintError(fmt.Sprintf("[%s] %s %s: %s", time.Now().Format("15:04:05"), s.Action, s.Message, s.Error))
		PrintSeparator()
		return
	}

	f := s.Factors
	fmt.Printf("[%s] %s %s 现价:%.2f (%+.2f%%) | 离支撑:%.2f%% | 回撤:%.2f%% | 量比:%.2f\n",
		f.Time.Format("15:04:05"), f.Code, f.Name, f.Price, f.ChangePct,
		f.Distance*100, f.Retracement*100, f.VolumeRatio)
	if f.Unusual {
		PrintWarning("成交量异动")
	}
	fmt.Printf("📢 %s  %s\n", s.Action, s.Message)
	PrintSeparator()
}

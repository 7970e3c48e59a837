package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/tailgame/internal/api"
	"github.com/wonny/tailgame/internal/scheduler"
	"github.com/wonny/tailgame/internal/scheduler/jobs"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server and poll loop",
	Long: `Starts the web dashboard and the scheduler driving the poll loop.

Jobs:
  poll_trading  - every 30s during the session ($POLL_TRADING_SCHEDULE)
  poll_idle     - every minute outside the session ($POLL_IDLE_SCHEDULE)
  daily_reset   - midnight, rolls the session to the new trade date

Endpoints:
  GET    /                      - dashboard
  GET    /ws                    - live dashboard stream
  GET    /health
  GET    /api/state
  GET    /api/sectors
  GET    /api/candidates?limit=
  GET    /api/picks
  GET    /api/picks/history?days=
  GET    /api/cycles?limit=
  GET    /api/logs
  GET    /api/jobs
  POST   /api/refresh
  POST   /api/picks/first
  POST   /api/picks/lock
  DELETE /api/picks
  PUT    /api/weights
  PUT    /api/clock

Example:
  go run ./cmd/tailgame serve
  go run ./cmd/tailgame serve --port 9000 --strategy config/strategy/tailgame.yaml`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (default is $PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(false)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	log.WithFields(map[string]interface{}{
		"strategy":    a.decision.StrategyID,
		"version":     a.decision.Version,
		"config_hash": a.decision.ConfigHash,
		"sources":     cfg.Sources.Order,
	}).Info("Strategy loaded")

	// Scheduler
	opts := scheduler.DefaultOptions()
	opts.Location = cfg.Location()
	sched := scheduler.New(opts, log)
	for _, job := range []scheduler.Job{
		jobs.NewTradingPollJob(a.engine, cfg.Poll.TradingSchedule, log),
		jobs.NewIdlePollJob(a.engine, cfg.Poll.IdleSchedule, log),
		jobs.NewDailyResetJob(a.engine, log),
	} {
		if err := sched.AddJob(job); err != nil {
			return fmt.Errorf("add job: %w", err)
		}
	}

	// HTTP
	page, err := api.NewPage(a.engine, log)
	if err != nil {
		return err
	}
	handler := api.NewHandler(a.engine, sched, log)
	router := api.NewRouter(handler, page, api.NewStream(a.engine, log), log)
	server := api.New(cfg, log, router)

	// first cycle so the page is never empty
	if _, err := a.engine.Cycle(ctx); err != nil {
		log.WithError(err).Warn("Initial cycle failed")
	}
	sched.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Dashboard running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		sched.Stop()
		return err
	}

	log.Info("Shutting down...")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

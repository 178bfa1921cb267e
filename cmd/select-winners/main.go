// Command select-winners picks winners for every ended giveaway that has entries
// and no winner yet.
//
//	select-winners              scan and select synchronously
//	select-winners --dry-run    only list the giveaways that would be processed
//	select-winners --giveaway=<id>
//	select-winners --async      dispatch through the chunked worker pool and wait
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raildrops/config"
	"raildrops/database"
	"raildrops/metrics"
	"raildrops/services"
	"raildrops/workers"

	"github.com/google/logger"
	"gorm.io/gorm"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "list eligible giveaways without selecting winners")
	giveawayID := flag.String("giveaway", "", "select a winner for this giveaway only")
	async := flag.Bool("async", false, "dispatch selection in chunks and wait for the report")
	flag.Parse()

	defer logger.Init("select-winners", false, false, io.Discard).Close()

	cfg := config.Load()
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	mc := metrics.NewCollector(nil)
	ctx = metrics.WithCollector(ctx, mc)

	winners := services.NewWinnerService(db)

	if *giveawayID != "" {
		w, err := winners.SelectWinner(ctx, *giveawayID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error selecting winner for giveaway %s: %v\n", *giveawayID, err)
			os.Exit(1)
		}
		fmt.Printf("Winner for giveaway %s: user %s (entry %s)\n", w.GiveawayID, w.UserID, w.EntryID)
		fmt.Printf("Selection took %s\n", mc.Get("select_random_winner").Duration)
		return
	}

	ids, err := winners.FindEligibleGiveaways(ctx, time.Now().UTC())
	if err != nil {
		logger.Fatalf("failed to scan giveaways: %v", err)
	}
	fmt.Printf("Found %d giveaway(s) eligible for winner selection\n", len(ids))

	if *dryRun {
		for _, id := range ids {
			fmt.Printf("  - %s\n", id)
		}
		return
	}

	if *async {
		report, err := runAsync(ctx, cfg, db, winners, ids)
		if err != nil {
			logger.Fatalf("async selection failed: %v", err)
		}
		printJSON(report)
		return
	}

	printJSON(winners.ProcessBatch(ctx, ids))
}

func runAsync(ctx context.Context, cfg config.Config, db *gorm.DB, winners *services.WinnerService, ids []string) (*workers.BatchStatus, error) {
	d := workers.NewDispatcher(db, winners, workers.DispatcherOptions{
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		MaxRetries: cfg.ChunkMaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.Start(runCtx)

	run, err := d.Dispatch(ctx, ids, cfg.ChunkSize)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Dispatched task %s (%d chunks)\n", run.ID, run.Chunks)

	statusCtx := context.WithoutCancel(ctx)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := d.Status(statusCtx, run.ID)
		if err != nil || st.Ready {
			cancel()
			_ = d.Wait()
			return st, err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			// Stopping the workers records unfinished chunks as cancelled.
			cancel()
			_ = d.Wait()
			return d.Status(statusCtx, run.ID)
		}
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Errorf("failed to print result: %v", err)
	}
}

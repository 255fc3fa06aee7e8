// Command bagtrackerd runs the bag/bid tracker daemon: it polls a
// Bitcoin-like node for new blocks and periodically sweeps for reorgs,
// keeping a durable bag → confirmation mapping up to date.
//
// Usage:
//
//	bagtrackerd [options]  Run the daemon
//	bagtrackerd --help     Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/bagtracker/internal/blog"
	"github.com/Klingon-tech/bagtracker/internal/config"
	"github.com/Klingon-tech/bagtracker/internal/store"
	"github.com/Klingon-tech/bagtracker/internal/store/kvstore"
	"github.com/Klingon-tech/bagtracker/internal/store/memstore"
	"github.com/Klingon-tech/bagtracker/internal/store/sqlstore"
	"github.com/Klingon-tech/bagtracker/internal/tracker"
	"github.com/Klingon-tech/bagtracker/pkg/chainclient"
	"github.com/rs/zerolog"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	if err := blog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := blog.WithComponent("daemon")

	logger.Info().
		Str("rpc_endpoint", cfg.RPC.Endpoint).
		Str("store", cfg.StoreScheme()).
		Dur("poll_interval", cfg.PollInterval).
		Int64("base_height", cfg.BaseHeight).
		Msg("Starting bagtrackerd")

	// ── 3. Open storage backend ──────────────────────────────────────────
	bidStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("dsn", cfg.StoreDSN).Msg("Failed to open storage backend")
	}
	defer bidStore.Close()

	// ── 4. Create chain client ───────────────────────────────────────────
	client := chainclient.NewRPCClient(cfg.RPC.Endpoint, cfg.RPC.User, cfg.RPC.Pass)

	// ── 5. Create tracker (roots its height/tip at the configured base
	// height on every start; the storage backends persist bag records
	// only, not the tracker's height or tip) ───────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr, err := tracker.New(ctx, client, bidStore, cfg.BaseHeight)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracker")
	}

	logger.Info().
		Int64("height", tr.CurrentHeight()).
		Str("tip", tr.CurrentTip().String()).
		Msg("Tracker initialized")

	// ── 6. Run the poll/reorg-sweep loop ─────────────────────────────────
	go runSweepLoop(ctx, tr, cfg.ReorgSweepInterval, logger)

	// ── 7. Wait for shutdown ──────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	cancel()
	logger.Info().Msg("Goodbye!")
}

// openStore opens the storage backend named by cfg.StoreDSN.
func openStore(cfg *config.Config) (store.BidStore, error) {
	switch cfg.StoreScheme() {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlstore.Open(cfg.StorePath())
	case "badger":
		return kvstore.Open(cfg.StorePath())
	default:
		return nil, fmt.Errorf("bagtrackerd: unrecognized store scheme %q", cfg.StoreScheme())
	}
}

// runSweepLoop periodically checks the chain for reorgs and advances the
// tracker's confirmed set. Runs until ctx is cancelled.
func runSweepLoop(ctx context.Context, tr *tracker.Tracker, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := tr.CheckReorgs(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("Reorg sweep failed")
				continue
			}
			if info != nil {
				logger.Info().
					Int64("fork_height", info.HeightWhenFork).
					Str("fork_root", info.ForkRoot.String()).
					Int("discarded", len(info.DiscardedBlocks)).
					Msg("Reorg detected and resolved")
			}
			logger.Debug().
				Int64("height", tr.CurrentHeight()).
				Str("tip", tr.CurrentTip().String()).
				Msg("Sweep complete")
		}
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hallbook/schedule"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func sweepCmd() *cobra.Command {
	var watch bool
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close out bookings that have ended",
		Long: "Moves reserved and confirmed bookings whose end has passed to completed or no_show.\n" +
			"With --watch the sweep repeats until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("every") {
				every = cfg.SweepInterval.Duration
			}
			if watch && every <= 0 {
				return fmt.Errorf("--every must be positive, got %s", every)
			}
			return withSession(func(ctx context.Context, s *session) error {
				if !watch {
					result, err := s.engine.Statistics.ProcessPastBookings(ctx, time.Now())
					if err != nil {
						return err
					}
					return renderSweep(result)
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				return sweepLoop(ctx, s.engine.Statistics, every)
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Keep sweeping until interrupted")
	cmd.Flags().DurationVar(&every, "every", 0, "Interval between sweeps (default from config)")
	return cmd
}

// sweepLoop runs a sweep immediately and then on every tick. A sweep that
// loses a lock race is logged and retried on the next tick.
func sweepLoop(ctx context.Context, stats *schedule.StatisticsService, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		result, err := stats.ProcessPastBookings(ctx, time.Now())
		switch {
		case err == nil:
			if result.Completed+result.NoShow > 0 {
				logger.Info("sweep", zap.Int("completed", result.Completed), zap.Int("no_show", result.NoShow))
			}
		case errors.Is(err, schedule.ErrConcurrency):
			logger.Warn("sweep skipped", zap.Error(err))
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func renderSweep(result schedule.SweepResult) error {
	if outputJSON {
		return writeJSON(result)
	}
	fmt.Printf("Completed %d, no-show %d.\n", result.Completed, result.NoShow)
	return nil
}

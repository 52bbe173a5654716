package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"TradeLoop/internal/di"
	"TradeLoop/internal/domain/models"
	"TradeLoop/pkg/config"
	"TradeLoop/pkg/market"
	"TradeLoop/pkg/util"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "tradeloop",
		Short:         "Autonomous trading decision loop",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	load := func() (*config.Config, error) { return config.LoadWithEnv(configPath) }
	root.AddCommand(
		serveCmd(load),
		onceCmd(load),
		inspectCmd(load),
		checkConfigCmd(load),
		calendarCmd(load),
	)
	return root
}

type loader func() (*config.Config, error)

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the decision loop and HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run()
		},
	}
}

func onceCmd(load loader) *cobra.Command {
	var deadline time.Duration
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print its record as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if deadline <= 0 {
				deadline = cfg.Loop.Cadence
			}
			rec := app.Cycle().RunOnce(cmd.Context(), deadline)
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "cycle deadline (defaults to loop.cadence)")
	return cmd
}

// inspectCmd reads the newest persisted cycle record. A fresh process has no in-memory
// record, so this needs the ClickHouse cycle store.
func inspectCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the last persisted cycle record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			l, err := di.ProvideLogger(cfg)
			if err != nil {
				return err
			}
			ch, closeCH := di.ProvideClickHouseClient(cfg, l)
			defer closeCH()
			store, closeStore := di.ProvideCycleStore(l, ch)
			defer closeStore()
			if store == nil {
				return errors.New("cycle store unavailable: enable clickhouse")
			}

			rec, err := store.Last(cmd.Context())
			if errors.Is(err, models.ErrNotFound) {
				return errors.New("no cycle has been recorded yet")
			}
			if err != nil {
				return fmt.Errorf("read last cycle: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func checkConfigCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print the stage budget",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: env=%s symbols=%v cadence=%s stages=%s producers=%v\n",
				cfg.Environment, cfg.Loop.Symbols, cfg.Loop.Cadence, cfg.StageBudget(), cfg.Producers.Enabled)
			return nil
		},
	}
}

func calendarCmd(load loader) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show the market session status at a given time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := market.NewSchedule(market.Mode(cfg.Schedule.Mode), cfg.Schedule.Timezone)
			if err != nil {
				return fmt.Errorf("%w: schedule: %v", config.ErrFatalConfig, err)
			}
			t := time.Now()
			if at != "" {
				parsed, ok := util.ParseTime(at)
				if !ok {
					return fmt.Errorf("cannot parse --at %q", at)
				}
				t = parsed
			}
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"at":          t.In(s.Location()),
				"status":      s.Status(t),
				"open":        s.IsOpen(t),
				"trading_day": s.IsTradingDay(t),
				"holiday":     s.IsHoliday(t),
				"next_open":   s.NextOpen(t),
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "time to inspect (RFC3339, date or unix seconds)")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

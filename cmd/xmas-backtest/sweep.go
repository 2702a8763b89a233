package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xmasladder/internal/app"
	"xmasladder/internal/domain"
)

func newSweepCmd() *cobra.Command {
	f := &runFlags{}
	var from, to int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the ladder for every year in a range and compare them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if from <= 0 || to < from {
				return fmt.Errorf("%w: --from %d --to %d is not a year range", domain.ErrInput, from, to)
			}
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			cfg.Strategy.Year = from
			a, err := app.New(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			base, err := a.Request()
			if err != nil {
				return err
			}
			years := make([]int, 0, to-from+1)
			for y := from; y <= to; y++ {
				years = append(years, y)
			}
			reports, err := a.Backtester.Sweep(cmd.Context(), base, years)
			if err != nil {
				return err
			}
			renderSweep(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().IntVar(&from, "from", 0, "first year")
	cmd.Flags().IntVar(&to, "to", 0, "last year")
	return cmd
}

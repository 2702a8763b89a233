package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"xmasladder/internal/app"
	"xmasladder/internal/gather"
)

func newFetchCmd() *cobra.Command {
	f := &runFlags{}
	var out string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download bars for the backtest window and write them as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := a.Request()
			if err != nil {
				return err
			}
			bars, err := a.Feed.History(cmd.Context(), req.Params.Symbol, req.Range, req.Interval)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating %s: %w", out, err)
				}
				defer file.Close()
				w = file
			}
			if err := gather.WriteBarsCSV(w, bars); err != nil {
				return err
			}
			a.Log.Info("bars written", "symbol", req.Params.Symbol, "bars", len(bars), "out", out)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&out, "out", "-", "CSV destination, - for stdout")
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"PerspectiveLens/internal/app"
)

var clearAll bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and reset per-model rate-limit state",
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show availability of every configured model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		return withApplication(ctx, func(ctx context.Context, application *app.Application) error {
			statuses, err := application.Analyzer().Status(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tAVAILABLE\tREMAINING\tQUOTA")
			for _, s := range statuses {
				quota := "-"
				if s.Block != nil && s.Block.QuotaID != "" {
					quota = s.Block.QuotaID
				}
				fmt.Fprintf(w, "%s\t%t\t%ds\t%s\n", s.Model, s.Available, s.TimeRemaining, quota)
			}
			return w.Flush()
		})
	},
}

var modelsClearCmd = &cobra.Command{
	Use:   "clear [model]",
	Short: "Lift the rate-limit block on a model (or --all)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model := ""
		if len(args) == 1 {
			model = args[0]
		}
		if model == "" && !clearAll {
			return errors.New("name a model or pass --all")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		return withApplication(ctx, func(ctx context.Context, application *app.Application) error {
			if err := application.Analyzer().Clear(ctx, model); err != nil {
				return err
			}
			if model == "" {
				model = "all models"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", model)
			return nil
		})
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check the API key and reachability for every configured model",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		return withApplication(ctx, func(ctx context.Context, application *app.Application) error {
			for _, result := range application.Analyzer().Probe(ctx) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", result.Model, result.Availability)
			}
			return nil
		})
	},
}

func init() {
	modelsClearCmd.Flags().BoolVar(&clearAll, "all", false, "clear every model")
	modelsCmd.AddCommand(modelsStatusCmd, modelsClearCmd)
}

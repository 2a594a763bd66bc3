package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/cashflow-reports-bfa/internal/aggregation"
	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newBuildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Aggregate a transaction file into a cashflow report",
		Long: `Build reads transactions as JSON and prints the cashflow report:
grain-aligned buckets with income and expenses, totals and the top
spending categories. --from and --to are inclusive days in --tz.`,
		Example: `  reportctl build --input tx.json --grain month --top 3
  cat tx.json | reportctl build --from 2024-01-01 --to 2024-06-30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBuild(cmd)
		},
	}
	cmd.Flags().String("input", "-", "transactions JSON file, - for stdin")
	cmd.Flags().String("grain", "", "day, week, month or year (default: chosen from the span)")
	cmd.Flags().Int("top", aggregation.DefaultTopN, "number of ranked spending categories")
	cmd.Flags().String("tz", "UTC", "IANA time zone calendar periods are computed in")
	cmd.Flags().String("from", "", "first day of the report window (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last day of the report window (YYYY-MM-DD)")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command) error {
	loc, err := time.LoadLocation(a.v.GetString("tz"))
	if err != nil {
		return fmt.Errorf("invalid --tz: %w", err)
	}
	grain, err := domain.ParseTimeGrain(a.v.GetString("grain"))
	if err != nil {
		return err
	}
	window, err := parseWindow(a.v.GetString("from"), a.v.GetString("to"), loc)
	if err != nil {
		return err
	}

	txns, err := readTransactions(a.v.GetString("input"), cmd.InOrStdin())
	if err != nil {
		return err
	}

	engine := aggregation.NewEngine(a.logger, aggregation.WithLocation(loc))
	report, err := engine.Build(txns, aggregation.Request{
		Grain:  grain,
		TopN:   a.v.GetInt("top"),
		Window: window,
	})
	if err != nil {
		return err
	}
	report.ID = uuid.NewString()
	report.GeneratedAt = time.Now().UTC()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// parseWindow turns inclusive --from/--to days into a half-open window.
func parseWindow(from, to string, loc *time.Location) (*aggregation.Window, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from == "" || to == "" {
		return nil, &domain.ErrValidation{Field: "window", Message: "--from and --to must be given together"}
	}
	lo, err := time.ParseInLocation("2006-01-02", from, loc)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "from", Message: "must be a date in YYYY-MM-DD format"}
	}
	hi, err := time.ParseInLocation("2006-01-02", to, loc)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "to", Message: "must be a date in YYYY-MM-DD format"}
	}
	return &aggregation.Window{From: lo, To: hi.AddDate(0, 0, 1)}, nil
}

package main

import (
	"fmt"

	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/sqlite"
	"github.com/boddenberg/cashflow-reports-bfa/internal/port"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a transaction file into the SQLite store",
		Long: `Import upserts transactions for one customer into the SQLite database
served by the BFA when DATA_BACKEND=sqlite. Transactions without an id get one.`,
		Example: `  reportctl import --db ./data/transactions.db --customer cust-1 --input tx.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runImport(cmd)
		},
	}
	cmd.Flags().String("db", "./data/transactions.db", "SQLite database path")
	cmd.Flags().String("customer", "", "customer the transactions belong to")
	cmd.Flags().String("input", "-", "transactions JSON file, - for stdin")
	return cmd
}

func (a *app) runImport(cmd *cobra.Command) error {
	customerID := a.v.GetString("customer")
	if customerID == "" {
		return fmt.Errorf("--customer is required")
	}

	txns, err := readTransactions(a.v.GetString("input"), cmd.InOrStdin())
	if err != nil {
		return err
	}

	store, err := sqlite.Open(a.v.GetString("db"), a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var writer port.TransactionsWriter = store
	n, err := writer.InsertTransactions(cmd.Context(), customerID, txns)
	if err != nil {
		return err
	}
	a.logger.Info("transactions imported", zap.String("customer_id", customerID), zap.Int("count", n))
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d transactions for %s\n", n, customerID)
	return nil
}

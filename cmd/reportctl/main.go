package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/boddenberg/cashflow-reports-bfa/internal/domain"
	"github.com/boddenberg/cashflow-reports-bfa/internal/infra/observability"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	_ "time/tzdata"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the state shared by subcommands.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("REPORTCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Build cashflow reports from transaction files",
		Long: `reportctl runs the cashflow aggregation engine offline.
It builds chart-ready reports from JSON transaction files and imports
transactions into the local SQLite store used by the BFA.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if path := a.v.GetString("config"); path != "" {
				a.v.SetConfigFile(path)
				if err := a.v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file: %w", err)
				}
			}
			a.logger = observability.NewLogger(a.v.GetString("log-level"))
			return nil
		},
	}
	root.PersistentFlags().String("config", "", "config file (toml, yaml or json)")
	root.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	if err := a.v.BindPFlags(root.PersistentFlags()); err != nil {
		panic(err)
	}

	root.AddCommand(newBuildCmd(a), newImportCmd(a))
	return root
}

// readTransactions accepts either a JSON array of transactions or an
// object with a "transactions" array. "-" reads stdin.
func readTransactions(path string, stdin io.Reader) ([]domain.Transaction, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var txns []domain.Transaction
		if err := json.Unmarshal(data, &txns); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
		return txns, nil
	}

	var doc struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return doc.Transactions, nil
}

package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/topolane/topolane/internal/config"
	"github.com/topolane/topolane/internal/iql"
)

var queryExplainOnly bool

var queryCmd = &cobra.Command{
	Use:   "query <iql-statement>",
	Short: "Run an Infrastructure Query Language statement against the store",
	Args:  cobra.ExactArgs(1),
	Run:   runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryExplainOnly, "explain", false, "Parse and print the query plan without executing it")
}

func runQuery(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err, "configuration error")
	}
	if err := setupLog(); err != nil {
		HandleError(err, "failed to set up logging")
	}

	if queryExplainOnly {
		result, err := iql.Explain(args[0])
		if err != nil {
			HandleError(err, "invalid query")
		}
		printQueryResult(result)
		return
	}

	ctx := context.Background()
	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		HandleError(err, "failed to open store")
	}

	q, err := iql.Parse(args[0])
	if err != nil {
		HandleError(err, "invalid query")
	}

	result, err := iql.Execute(ctx, st, q)
	if err != nil {
		HandleError(err, "query execution failed")
	}
	printQueryResult(result)
}

func printQueryResult(result iql.Result) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		HandleError(err, "failed to encode result")
	}
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/config"
	"github.com/topolane/topolane/internal/engine"
	"github.com/topolane/topolane/internal/logging"
	"github.com/topolane/topolane/internal/models"
)

var syncFixturePath string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one discover/reconcile cycle against a fixture adapter",
	Long: `Loads a JSON fixture describing a batch of discovered nodes and
edges, registers it as a static adapter, and runs one engine sync cycle
against the configured store. Intended for local testing and demos since
this module ships no concrete cloud SDK integrations.`,
	Run: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncFixturePath, "fixture", "", "Path to a JSON discovery fixture (required)")
	syncCmd.MarkFlagRequired("fixture")
}

type syncFixture struct {
	Name     string             `json:"name"`
	Provider models.Provider    `json:"provider"`
	Nodes    []models.NodeInput `json:"nodes"`
	Edges    []models.EdgeInput `json:"edges"`
}

func runSync(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err, "configuration error")
	}
	if err := setupLog(); err != nil {
		HandleError(err, "failed to set up logging")
	}
	logger := logging.GetLogger("sync")

	ctx := context.Background()
	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		HandleError(err, "failed to open store")
	}

	raw, err := os.ReadFile(syncFixturePath)
	if err != nil {
		HandleError(err, "failed to read fixture")
	}
	var fixture syncFixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		HandleError(err, "failed to parse fixture")
	}

	eng := engine.New(st)
	eng.RegisterAdapter(cloud.NewStaticAdapter(fixture.Name, fixture.Provider, fixture.Nodes, fixture.Edges))

	records, err := eng.Sync(ctx, []models.Provider{fixture.Provider})
	if err != nil {
		HandleError(err, "sync failed")
	}

	for _, rec := range records {
		logger.InfoWithFields("sync record",
			logging.Field("provider", rec.Provider),
			logging.Field("status", rec.Status),
			logging.Field("discovered", rec.NodesDiscovered),
			logging.Field("disappeared", rec.NodesDisappeared))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		HandleError(err, "failed to encode sync records")
	}
	fmt.Fprintln(os.Stderr, "sync complete")
}

package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/topolane/topolane/internal/cloud"
	"github.com/topolane/topolane/internal/config"
	"github.com/topolane/topolane/internal/governor"
	"github.com/topolane/topolane/internal/models"
	"github.com/topolane/topolane/internal/reconcile"
)

var planValidator = validator.New()

var (
	reconcilePlanPath      string
	reconcileExecutionPath string
	reconcileFixturePath   string
	reconcileAutoRemediate bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run reconciliation cycles against declared plans",
}

var reconcileRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation cycle for a plan/execution pair",
	Long: `Loads a declared Plan and its Execution, builds a fixture
adapter reporting the plan resources' live properties, and runs one
reconciliation cycle: drift detection, compliance checks, cost-anomaly
detection, and (if --auto-remediate is set) governor-mediated remediation.`,
	Run: runReconcileRun,
}

func init() {
	reconcileRunCmd.Flags().StringVar(&reconcilePlanPath, "plan", "", "Path to a Plan JSON file (required)")
	reconcileRunCmd.Flags().StringVar(&reconcileExecutionPath, "execution", "", "Path to an Execution JSON file (required)")
	reconcileRunCmd.Flags().StringVar(&reconcileFixturePath, "fixture", "", "Path to a JSON discovery fixture reporting the plan's live state (required)")
	reconcileRunCmd.Flags().BoolVar(&reconcileAutoRemediate, "auto-remediate", false, "Submit recommended actions to the governor for execution")
	reconcileRunCmd.MarkFlagRequired("plan")
	reconcileRunCmd.MarkFlagRequired("execution")
	reconcileRunCmd.MarkFlagRequired("fixture")

	reconcileCmd.AddCommand(reconcileRunCmd)
}

func runReconcileRun(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err, "configuration error")
	}
	if err := setupLog(); err != nil {
		HandleError(err, "failed to set up logging")
	}

	var plan models.Plan
	if err := readJSONFile(reconcilePlanPath, &plan); err != nil {
		HandleError(err, "failed to read plan")
	}
	if err := planValidator.Struct(plan); err != nil {
		HandleError(err, "invalid plan")
	}
	var execution models.Execution
	if err := readJSONFile(reconcileExecutionPath, &execution); err != nil {
		HandleError(err, "failed to read execution")
	}
	var fixture syncFixture
	if err := readJSONFile(reconcileFixturePath, &fixture); err != nil {
		HandleError(err, "failed to read fixture")
	}

	ctx := context.Background()
	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		HandleError(err, "failed to open store")
	}

	gov := governor.New(st, governor.WithConfirmationTTL(cfg.Governor.ConfirmationTTL))
	adapter := cloud.NewStaticAdapter(fixture.Name, fixture.Provider, fixture.Nodes, fixture.Edges)
	adapters := map[models.Provider]cloud.Adapter{fixture.Provider: adapter}

	rec := reconcile.New(adapters, gov, reconcile.WithCostAnomalyThreshold(cfg.Reconcile.CostAnomalyPct))

	result, err := rec.Run(ctx, plan, execution, reconcileAutoRemediate)
	if err != nil {
		HandleError(err, "reconcile failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		HandleError(err, "failed to encode result")
	}
}

func readJSONFile(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

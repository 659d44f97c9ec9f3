package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/topolane/topolane/internal/config"
	"github.com/topolane/topolane/internal/governor"
)

var governorCmd = &cobra.Command{
	Use:   "governor",
	Short: "Inspect and decide pending change requests",
	Long: `The governor's pending queue lives in the memory of a running
serve process, not in the store; a CLI invocation does not share that
state. These subcommands are provided as the shape a full admin CLI
would take (per spec.md's CLI-behavior non-goal, a real implementation
would reach a running serve process over RPC instead of touching a
local, empty governor).`,
}

var governorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending change requests recorded in the audit trail",
	Run:   runGovernorList,
}

var (
	governorApproveBy string
	governorRejectBy  string
)

var governorApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending change request",
	Args:  cobra.ExactArgs(1),
	Run:   runGovernorApprove,
}

var governorRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending change request",
	Args:  cobra.ExactArgs(1),
	Run:   runGovernorReject,
}

func init() {
	governorApproveCmd.Flags().StringVar(&governorApproveBy, "by", "cli", "Actor recorded as having approved the request")
	governorRejectCmd.Flags().StringVar(&governorRejectBy, "by", "cli", "Actor recorded as having rejected the request")

	governorCmd.AddCommand(governorListCmd)
	governorCmd.AddCommand(governorApproveCmd)
	governorCmd.AddCommand(governorRejectCmd)
}

// loadGovernor opens the configured store and constructs a fresh
// Governor over it. Its pending-request map starts empty; see the
// governorCmd long description.
func loadGovernor() *governor.Governor {
	cfg, err := config.Load(configPath)
	if err != nil {
		HandleError(err, "configuration error")
	}
	if err := setupLog(); err != nil {
		HandleError(err, "failed to set up logging")
	}

	ctx := context.Background()
	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		HandleError(err, "failed to open store")
	}
	return governor.New(st, governor.WithConfirmationTTL(cfg.Governor.ConfirmationTTL))
}

func runGovernorList(cmd *cobra.Command, args []string) {
	gov := loadGovernor()
	pending := gov.GetPendingRequests()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tTARGET\tRISK\tCREATED")
	for _, req := range pending {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s (%d)\t%s\n",
			req.ID, req.Action, req.TargetResourceID, req.Risk.Level, req.Risk.Score, req.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	w.Flush()
}

func runGovernorApprove(cmd *cobra.Command, args []string) {
	gov := loadGovernor()
	req, err := gov.Approve(context.Background(), args[0], governorApproveBy)
	if err != nil {
		HandleError(err, "approve failed")
	}
	fmt.Printf("approved %s (status=%s)\n", req.ID, req.Status)
}

func runGovernorReject(cmd *cobra.Command, args []string) {
	gov := loadGovernor()
	req, err := gov.Reject(context.Background(), args[0], governorRejectBy)
	if err != nil {
		HandleError(err, "reject failed")
	}
	fmt.Printf("rejected %s (status=%s)\n", req.ID, req.Status)
}

package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/attackls/display"
	"github.com/teranos/attackls/lsp"
)

// CompleteCmd shows the completion candidates an editor would get for a term
var CompleteCmd = &cobra.Command{
	Use:   "complete <term>",
	Short: "Show completion candidates for a term",
	Long: `Run the completion matcher on a term as if the cursor sat at its end.

Terms shorter than attack.min_term_length get every candidate. With --manual
the request counts as explicitly invoked, which enables description search
when no technique name matches.

Examples:
  attackls complete power
  attackls complete T1059.001
  attackls complete Subsystem --manual`,
	Args: cobra.ExactArgs(1),
	RunE: runComplete,
}

var completeManual bool

func init() {
	CompleteCmd.Flags().BoolVar(&completeManual, "manual", false, "Treat the request as explicitly invoked")
	CompleteCmd.Flags().Bool("json", false, "Output candidates as JSON")
}

func runComplete(cmd *cobra.Command, args []string) error {
	svc, err := serviceFromFlags(cmd)
	if err != nil {
		return err
	}

	term := args[0]
	trigger := lsp.TriggerAuto
	if completeManual {
		trigger = lsp.TriggerManual
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	items, err := svc.GetCompletions(ctx, lsp.CompletionRequest{
		Text:    term,
		Offset:  len(term),
		Trigger: trigger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(out, items)
	}

	if len(items) == 0 {
		fmt.Fprintln(out, pterm.Info.Sprintf("No candidates for %q", term))
		return nil
	}

	data := pterm.TableData{{"Label", "Inserts", "Technique", "Status"}}
	for _, item := range items {
		status := ""
		if item.Deprecated {
			status = "deprecated"
		}
		data = append(data, []string{item.Label, item.InsertText, item.TechniqueID, status})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	return nil
}

package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// LsCmd lists techniques by id prefix
var LsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List techniques by id prefix",
	Long: `List techniques whose id starts with prefix, sorted by id.
Without a prefix every technique is listed.

Examples:
  attackls ls
  attackls ls T1059
  attackls ls --revoked`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var lsRevoked bool

func init() {
	LsCmd.Flags().BoolVar(&lsRevoked, "revoked", false, "Include revoked techniques")
}

func runLs(cmd *cobra.Command, args []string) error {
	svc, err := serviceFromFlags(cmd)
	if err != nil {
		return err
	}

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	data := pterm.TableData{{"ID", "Name", "Tactics", "Status"}}
	for _, t := range svc.Index().WithPrefix(prefix) {
		status := ""
		switch {
		case t.Revoked:
			if !lsRevoked {
				continue
			}
			status = "revoked"
		case t.Deprecated:
			status = "deprecated"
		}
		data = append(data, []string{t.ID, t.FullName(), strings.Join(t.Tactics, ", "), status})
	}

	out := cmd.OutOrStdout()
	if len(data) == 1 {
		fmt.Fprintln(out, pterm.Info.Sprintf("No techniques match %q", prefix))
		return nil
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(out, table)
	return nil
}

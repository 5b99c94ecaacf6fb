package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teranos/attackls/attack"
	"github.com/teranos/attackls/display"
	"github.com/teranos/attackls/server"
)

// LookupCmd describes a technique by id
var LookupCmd = &cobra.Command{
	Use:     "lookup <technique-id>",
	Aliases: []string{"describe"},
	Short:   "Describe a technique by id",
	Long: `Print the markdown description of a technique.

The id is matched case-insensitively and accepts the URL form T1059/001.
Revoked techniques are described too, marked (REVOKED).

Examples:
  attackls lookup T1059
  attackls lookup t1059/001 --mode long
  attackls lookup T1566 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var lookupMode string

func init() {
	LookupCmd.Flags().StringVar(&lookupMode, "mode", "", "short, long or link (default: attack.description)")
	LookupCmd.Flags().Bool("json", false, "Output the technique as JSON")
}

func runLookup(cmd *cobra.Command, args []string) error {
	var mode attack.Mode
	if lookupMode != "" {
		parsed, err := attack.ParseMode(lookupMode)
		if err != nil {
			return err
		}
		mode = parsed
	}

	svc, err := serviceFromFlags(cmd)
	if err != nil {
		return err
	}

	markdown, err := svc.Describe(args[0], mode)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !display.ShouldOutputJSON(cmd) {
		fmt.Fprint(out, markdown)
		return nil
	}

	t, _ := svc.Index().ByID(attack.NormalizeID(args[0]))
	resp := server.NewTechniqueResponse(t)
	resp.Markdown = markdown
	return display.OutputJSON(out, resp)
}

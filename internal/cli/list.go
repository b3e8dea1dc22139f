package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available strategies",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}
	current := initTracker(cfg, newLogger(cfg)).CurrentStrategy()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, " \tSTRATEGY\tDESCRIPTION\tFILE\n")
	for _, e := range catalog.Entries() {
		marker := " "
		if e.Name == current {
			marker = "*"
		}
		file := e.File
		if _, err := os.Stat(e.File); err != nil {
			file += " (missing)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, e.Name, e.Description, file)
	}
	w.Flush()

	return nil
}

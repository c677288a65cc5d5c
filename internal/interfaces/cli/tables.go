package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
)

// tablesSummary is the json form of `tables show` and `tables validate`.
type tablesSummary struct {
	Source  string         `json:"source"`
	Version string         `json:"version"`
	Counts  map[string]int `json:"counts"`
}

// NewTablesCmd creates the tables command group.
func NewTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Inspect and validate resolution tables",
	}

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a tables YAML file compiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			t, err := er.LoadTablesFile(args[0])
			if err != nil {
				return err
			}
			sum := tablesSummary{Source: args[0], Version: t.Version(), Counts: t.Stats()}
			if cliCtx.OutputFormat == FormatJSON {
				return printJSON(cmd, sum)
			}
			PrintSuccess(cmd, fmt.Sprintf("%s is valid (version %s)", args[0], t.Version()))
			return nil
		},
	}

	var dump bool
	showCmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Show the tables in use: the file argument, resolver.tables_path or the built-in defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}

			source := cliCtx.Config.Resolver.TablesPath
			if len(args) == 1 {
				source = args[0]
			}

			if dump {
				data := er.DefaultTablesYAML()
				if source != "" {
					if data, err = os.ReadFile(source); err != nil {
						return err
					}
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			t := er.DefaultTables()
			if source != "" {
				if t, err = er.LoadTablesFile(source); err != nil {
					return err
				}
			} else {
				source = "built-in"
			}
			sum := tablesSummary{Source: source, Version: t.Version(), Counts: t.Stats()}

			switch cliCtx.OutputFormat {
			case FormatJSON:
				return printJSON(cmd, sum)
			case FormatTable:
				return renderTablesSummary(cmd, sum)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "source:  %s\nversion: %s\n", sum.Source, sum.Version)
				for _, k := range sortedKeys(sum.Counts) {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %d\n", k, sum.Counts[k])
				}
				return nil
			}
		},
	}
	showCmd.Flags().BoolVar(&dump, "yaml", false, "print the raw tables YAML instead of a summary")

	cmd.AddCommand(validateCmd, showCmd)
	return cmd
}

func renderTablesSummary(cmd *cobra.Command, sum tablesSummary) error {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (version %s)\n", sum.Source, sum.Version)
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Table", "Entries")
	for _, k := range sortedKeys(sum.Counts) {
		if err := table.Append([]string{k, strconv.Itoa(sum.Counts[k])}); err != nil {
			return err
		}
	}
	return table.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

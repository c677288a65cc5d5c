package cli

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/textclean"
)

// NewCleanCmd creates the clean command, which prints text exactly as the
// resolver sees it when resolver.clean_text is on.  Taggers should run on
// this output so token offsets line up.
func NewCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [file|-]",
		Short: "Normalise raw extracted text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			out := textclean.New(textclean.DefaultOptions()).Clean(string(data))
			if cliCtx.OutputFormat == FormatJSON {
				return printJSON(cmd, map[string]interface{}{
					"text":  out,
					"runes": utf8.RuneCountInString(out),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// NewVersionCmd prints build information.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "legaldoc %s\ncommit:  %s\nbuilt:   %s\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}

//Personal.AI order the ending

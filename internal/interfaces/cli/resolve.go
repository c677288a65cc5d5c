package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/turtacn/LegalDoc-Intelligence/internal/bootstrap"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// resolveOutput is what `resolve -o json` prints per document.
type resolveOutput struct {
	*entity.Result
	Trace *er.Trace `json:"trace,omitempty"`
	Error string    `json:"error,omitempty"`
}

// NewResolveCmd creates the resolve command.
func NewResolveCmd() *cobra.Command {
	var explain, stats bool

	cmd := &cobra.Command{
		Use:   "resolve [file|-]",
		Short: "Resolve entities of a tagged document",
		Long: "Reads one document object or an array of documents as JSON from file or\n" +
			"stdin and prints the resolved entities.  Each document carries its text and\n" +
			"the tagger's BIO tokens.",
		Example: "  legaldoc resolve doc.json -o table --stats\n  cat batch.json | legaldoc resolve -o json",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			docs, err := decodeDocuments(data)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
			defer cancel()

			// Tables objects need MinIO, which the CLI does not connect to.
			rcfg := cliCtx.Config.Resolver
			rcfg.TablesObject = ""
			engine, err := bootstrap.NewEngine(ctx, rcfg, nil, cliCtx.Logger, nil)
			if err != nil {
				return err
			}

			outs := make([]resolveOutput, len(docs))
			failed := 0
			for i, doc := range docs {
				var (
					res   *entity.Result
					trace *er.Trace
				)
				if explain {
					res, trace, err = engine.ResolveExplain(ctx, doc)
				} else {
					res, err = engine.Resolve(ctx, doc)
				}
				outs[i] = resolveOutput{Result: res, Trace: trace}
				if err != nil {
					failed++
					outs[i].Error = err.Error()
					cliCtx.Logger.Warn("document failed", logging.DocumentID(doc.ID), logging.Err(err))
				}
			}

			if err := printResolve(cmd, cliCtx.OutputFormat, outs, stats); err != nil {
				return err
			}
			if failed > 0 {
				return errors.Newf(errors.ErrCodeValidation, "%d of %d document(s) failed", failed, len(docs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "include intermediate pipeline stages (json output)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print per-stage counters after the entities")
	return cmd
}

// decodeDocuments accepts a single document object or an array.
func decodeDocuments(data []byte) ([]*entity.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New(errors.ErrCodeBadRequest, "empty input")
	}

	var docs []*entity.Document
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "invalid document array")
		}
	} else {
		var doc entity.Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "invalid document")
		}
		docs = []*entity.Document{&doc}
	}

	for i, d := range docs {
		if d == nil {
			return nil, errors.Newf(errors.ErrCodeValidation, "document %d is null", i)
		}
		if d.ID == "" {
			d.ID = strconv.Itoa(i + 1)
		}
	}
	return docs, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Rendering
// ─────────────────────────────────────────────────────────────────────────────

func printResolve(cmd *cobra.Command, format string, outs []resolveOutput, stats bool) error {
	if format == FormatJSON {
		if len(outs) == 1 {
			return printJSON(cmd, outs[0])
		}
		return printJSON(cmd, outs)
	}

	w := cmd.OutOrStdout()
	for i, out := range outs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if out.Error != "" {
			fmt.Fprintf(w, "%s %s\n", color.RedString("FAILED"), out.Error)
			continue
		}
		if len(outs) > 1 {
			fmt.Fprintf(w, "%s %s\n", color.New(color.Bold).Sprint("Document"), out.DocumentID)
		}
		var err error
		if format == FormatTable {
			err = renderEntityTable(w, out.Entities)
		} else {
			renderEntityText(w, out.Entities)
		}
		if err != nil {
			return err
		}
		if stats {
			renderStats(w, out.Result)
		}
	}
	return nil
}

func renderEntityText(w io.Writer, ents []entity.Entity) {
	if len(ents) == 0 {
		fmt.Fprintln(w, color.YellowString("no entities"))
		return
	}
	for _, e := range ents {
		line := fmt.Sprintf("%-13s %5d %5d  %s", colorizeLabel(e.Label), e.Start, e.End, e.Text)
		if canonical := canonicalForm(e); canonical != "" {
			line += "  => " + canonical
		}
		fmt.Fprintln(w, line)
	}
}

func renderEntityTable(w io.Writer, ents []entity.Entity) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Label", "Start", "End", "Source", "Sentence", "Text", "Normalized")
	for i, e := range ents {
		if err := table.Append([]string{
			strconv.Itoa(i + 1),
			e.Label,
			strconv.Itoa(e.Start),
			strconv.Itoa(e.End),
			string(e.Source),
			strconv.Itoa(e.SentenceIdx),
			e.Text,
			canonicalForm(e),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderStats(w io.Writer, res *entity.Result) {
	s := res.Stats
	fmt.Fprintf(w, "\n%s tables=%s sentences=%d\n", color.New(color.Bold).Sprint("Stats"), res.TablesVersion, res.Sentences)
	fmt.Fprintf(w, "  tokens=%d statistical: found=%d unlocated=%d filtered=%d split=%d kept=%d overlapped=%d\n",
		s.TokensIn, s.StatisticalFound, s.StatisticalUnlocated, s.StatisticalFiltered,
		s.StatisticalSplit, s.StatisticalKept, s.StatisticalOverlapped)
	fmt.Fprintf(w, "  rule_based=%d materializer_dropped=%d final=%d\n", s.RuleBased, s.MaterializerDropped, s.Final)
	if len(s.Labels) > 0 {
		fmt.Fprintf(w, "  labels: %s\n", formatCounts(s.Labels))
	}
	if len(s.FilterReasons) > 0 {
		fmt.Fprintf(w, "  filter: %s\n", formatCounts(s.FilterReasons))
	}
}

// formatCounts renders a count map as "a=1 b=2" in key order.
func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%s=%d", k, m[k])
	}
	return buf.String()
}

func canonicalForm(e entity.Entity) string {
	if e.DateISO != "" {
		return e.DateISO
	}
	if e.Normalized != e.Text {
		return e.Normalized
	}
	return ""
}

func colorizeLabel(label string) string {
	switch label {
	case entity.LabelPerson:
		return color.CyanString(label)
	case entity.LabelOrganization:
		return color.GreenString(label)
	case entity.LabelLocation:
		return color.BlueString(label)
	case entity.LabelDecisionID, entity.LabelIssueDate:
		return color.MagentaString(label)
	default:
		return label
	}
}

package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/couchcryptid/station-data-etl/internal/adapter/jsonfile"
	"github.com/couchcryptid/station-data-etl/internal/domain"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	nameStyle  = lipgloss.NewStyle().Width(28)
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

var errQualityCheck = errors.New("quality checks reported warnings")

func newAuditCmd(c *cli) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "audit [dataset.json]",
		Short: "Report missing values and duplicates in a written dataset",
		Long: `audit reads a dataset written by run (the configured output path unless one
is given) and reports per-field missing values and exact duplicate records.
The report is advisory; --strict turns warnings into a failing exit status.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.OutputPath
			if len(args) == 1 {
				path = args[0]
			}
			ds, err := jsonfile.ReadDataset(path)
			if err != nil {
				return err
			}
			report := domain.Audit(ds)
			report.Log(c.logger)
			renderReport(cmd.OutOrStdout(), path, report)
			if strict && !reportClean(report) {
				return errQualityCheck
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any check warns")
	return cmd
}

func reportClean(r domain.QualityReport) bool {
	if r.Duplicates > 0 {
		return false
	}
	for _, c := range r.Columns {
		if c.Missing > 0 {
			return false
		}
	}
	return true
}

// renderReport prints one PASS/WARN line per check followed by the column
// profile.
func renderReport(w io.Writer, path string, r domain.QualityReport) {
	fmt.Fprintln(w, titleStyle.Render("=== Data Quality Report ==="))
	fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("%s: %d records, generated %s",
		path, r.Rows, r.GeneratedAt.Format(domain.TimestampLayout))))
	fmt.Fprintln(w)

	var incomplete []string
	for _, c := range r.Columns {
		if c.Missing > 0 {
			incomplete = append(incomplete, c.Name)
		}
	}
	status := passStyle.Render("PASS")
	if len(incomplete) > 0 {
		status = warnStyle.Render(fmt.Sprintf("WARN (%d fields)", len(incomplete)))
	}
	fmt.Fprintf(w, "  %s %s\n", nameStyle.Render("missing values"), status)

	status = passStyle.Render("PASS")
	if r.Duplicates > 0 {
		status = warnStyle.Render(fmt.Sprintf("WARN (%d records)", r.Duplicates))
	}
	fmt.Fprintf(w, "  %s %s\n", nameStyle.Render("duplicate records"), status)

	fmt.Fprintln(w)
	for _, c := range r.Columns {
		line := fmt.Sprintf("  %s missing %-6d %s", nameStyle.Render(c.Name), c.Missing, formatKinds(c.Kinds))
		if c.Missing > 0 {
			line = warnStyle.Render(line)
		}
		fmt.Fprintln(w, line)
	}
	if len(r.Excluded) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, infoStyle.Render("excluded from duplicate check: "+strings.Join(r.Excluded, ", ")))
	}
}

func formatKinds(kinds map[string]int) string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%d", k, kinds[k])
	}
	return strings.Join(parts, " ")
}

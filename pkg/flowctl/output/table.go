package output

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/telekom/flowctl/pkg/flowctl/retention"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
}

// WriteVersionTable lists Flow versions, numbered from 1.
func WriteVersionTable(w io.Writer, records []retention.VersionRecord) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "#\tNAME\tVERSION\tSTATUS\tID")
	for i, r := range records {
		_, _ = fmt.Fprintf(tw, "%d\t%s\tv%d\t%s\t%s\n", i+1, valueOrDash(r.DeveloperName), r.VersionNumber, r.Status, r.ID)
	}
	_ = tw.Flush()
}

func WriteSummaryTable(w io.Writer, summaries []retention.DefinitionSummary) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "NAME\tLABEL\tVERSIONS\tDELETABLE\tLATEST")
	for _, s := range summaries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\tv%d\n", valueOrDash(s.DeveloperName), valueOrDash(s.Label), s.Versions, s.Deletable, s.LatestVersion)
	}
	_ = tw.Flush()
}

// Row is a generic table row for callers that own their column layout.
type Row []string

func WriteTable(w io.Writer, header Row, rows []Row) {
	tw := newTabWriter(w)
	writeRow(tw, header)
	for _, row := range rows {
		writeRow(tw, row)
	}
	_ = tw.Flush()
}

func writeRow(w io.Writer, row Row) {
	for i, cell := range row {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, valueOrDash(cell))
	}
	_, _ = fmt.Fprintln(w)
}

func valueOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

// Package formatter renders the end of run report as a kubectl style table.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/younsl/snapshooter/internal/models"
)

// MaxTrustWidth is the maximum width of the TRUST column; AWS role ARNs are long
const MaxTrustWidth = 40

// Tenant statuses shown in the report
const (
	StatusOK      = "OK"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
)

// Report is the outcome of one run
type Report struct {
	// Action names the processed column, e.g. CREATED or DESTROYED
	Action    string
	Summaries []models.Summary
	// Skipped are the tenants denied for lack of rights
	Skipped   []models.Scope
	StartTime time.Time
	Duration  time.Duration
}

type reportRow struct {
	scope     models.Scope
	processed string
	errors    string
	status    string
}

// PrintReportTable writes one row per tenant followed by the totals
func PrintReportTable(w io.Writer, report Report) {
	if len(report.Summaries) == 0 && len(report.Skipped) == 0 {
		fmt.Fprintln(w, "No tenants found.")
		return
	}

	rows := make([]reportRow, 0, len(report.Summaries)+len(report.Skipped))
	processed, errs := 0, 0
	for _, summary := range report.Summaries {
		status := StatusOK
		if !summary.Success() {
			status = StatusFailed
		}
		rows = append(rows, reportRow{
			scope:     summary.Scope,
			processed: fmt.Sprint(summary.Processed),
			errors:    fmt.Sprint(summary.Errors),
			status:    status,
		})
		processed += summary.Processed
		errs += summary.Errors
	}
	for _, scope := range report.Skipped {
		rows = append(rows, reportRow{scope: scope, processed: "-", errors: "-", status: StatusSkipped})
	}

	// Failed tenants first, then by project
	sort.SliceStable(rows, func(i, j int) bool {
		if (rows[i].status == StatusFailed) != (rows[j].status == StatusFailed) {
			return rows[i].status == StatusFailed
		}
		return rows[i].scope.ProjectID < rows[j].scope.ProjectID
	})

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "PROJECT\tTRUST\t%s\tERRORS\tSTATUS\n", report.Action)
	for _, row := range rows {
		trust := row.scope.TrustID
		if trust == "" {
			trust = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			row.scope.ProjectID,
			Truncate(trust, MaxTrustWidth),
			row.processed,
			row.errors,
			row.status,
		)
	}
	fmt.Fprintf(tw, "Total:\t\t%d\t%d\t\n", processed, errs)
	tw.Flush()

	if !report.StartTime.IsZero() {
		printTimestamp(w, report.StartTime, report.Duration)
	}
}
